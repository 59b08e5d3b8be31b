// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"sync"

	"github.com/exccoin/spvpeer/bloom"
	"github.com/exccoin/spvpeer/chaincfg/chainhash"
	"github.com/exccoin/spvpeer/headerchain"
	"github.com/exccoin/spvpeer/wire"
)

// downloadState holds the fields only meaningful while this Peer is
// elected as PeerGroup's download peer: the header chain it extends,
// the currently loaded Bloom filter, and the bookkeeping needed to
// attribute MsgTx frames that follow a MsgMerkleBlock to that filtered
// block's partial merkle tree (spec.md §4.3 step 3).
type downloadState struct {
	mtx sync.Mutex

	chain  *headerchain.Chain
	filter *bloom.Filter

	// fastCatchup is the Unix time before which filtered blocks are not
	// requested (only their headers are kept). Zero means download every
	// filtered block from the start of the sync.
	fastCatchup int64

	inFlight    map[chainhash.Hash]struct{}
	maxInFlight int

	pending *pendingMerkleBlock
}

// pendingMerkleBlock tracks the filtered block currently being
// reassembled: the transaction hashes ExtractMatches says should follow
// that have not arrived yet (each is removed as its transaction arrives).
type pendingMerkleBlock struct {
	header   wire.BlockHeader
	expected map[chainhash.Hash]struct{}
}

func newDownloadState() *downloadState {
	return &downloadState{
		inFlight:    make(map[chainhash.Hash]struct{}),
		maxInFlight: kMaxInFlight,
	}
}

func (p *Peer) dl() *downloadState {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.download == nil {
		p.download = newDownloadState()
	}
	return p.download
}

// SetChain attaches the header chain this peer extends while driving
// download. PeerGroup calls this once, on election.
func (p *Peer) SetChain(chain *headerchain.Chain) {
	d := p.dl()
	d.mtx.Lock()
	d.chain = chain
	d.mtx.Unlock()
}

// SetFastCatchupTime sets the Unix time before which the download
// pipeline requests headers only, skipping the filtered-block bodies.
// A wallet whose earliest key postdates most of the chain has no
// transactions to find in the skipped range.
func (p *Peer) SetFastCatchupTime(unixSeconds int64) {
	d := p.dl()
	d.mtx.Lock()
	d.fastCatchup = unixSeconds
	d.mtx.Unlock()
}

// SetFilter installs the Bloom filter used to request filtered blocks
// and pushes it to the remote via filterload (or filterclear if nil).
// Returns ErrNotReady if the handshake has not completed.
func (p *Peer) SetFilter(filter *bloom.Filter) error {
	if p.State() != StateReady {
		return ErrNotReady
	}
	d := p.dl()
	d.mtx.Lock()
	d.filter = filter
	d.mtx.Unlock()

	if filter == nil {
		return p.QueueMessage(&wire.MsgFilterClear{})
	}
	return p.QueueMessage(filter.MsgFilterLoad())
}

// RequestHeaders sends a getheaders built from the attached chain's
// current locator. SetChain must have been called first.
func (p *Peer) RequestHeaders() error {
	d := p.dl()
	d.mtx.Lock()
	chain := d.chain
	d.mtx.Unlock()
	if chain == nil {
		return ErrNotReady
	}

	getHeaders := wire.NewMsgGetHeaders(chainhash.Hash{})
	locator := chain.Locator()
	for i := range locator {
		if err := getHeaders.AddBlockLocatorHash(&locator[i]); err != nil {
			return err
		}
	}
	return p.QueueMessage(getHeaders)
}

// RequestFilteredBlocks queues getdata requests for hashes as
// filtered-block inventory, capped at the download pipeline's
// in-flight limit (spec.md §4.3 step 3's kMaxInFlight). Hashes beyond
// the available window are silently skipped; the caller re-requests
// them once earlier ones complete.
func (p *Peer) RequestFilteredBlocks(hashes []chainhash.Hash) error {
	d := p.dl()

	getData := wire.NewMsgGetData()
	d.mtx.Lock()
	for _, h := range hashes {
		if len(d.inFlight) >= d.maxInFlight {
			break
		}
		if _, already := d.inFlight[h]; already {
			continue
		}
		d.inFlight[h] = struct{}{}
		if err := getData.AddInvVect(wire.NewInvVect(wire.InvTypeFilteredBlock, &h)); err != nil {
			d.mtx.Unlock()
			return err
		}
	}
	d.mtx.Unlock()

	if len(getData.InvList) == 0 {
		return nil
	}
	return p.QueueMessage(getData)
}

// InFlightCount reports how many filtered blocks are currently
// outstanding, used by PeerGroup to decide whether to top up the
// window.
func (p *Peer) InFlightCount() int {
	d := p.dl()
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return len(d.inFlight)
}

func (p *Peer) handleHeaders(msg *wire.MsgHeaders) {
	d := p.dl()
	d.mtx.Lock()
	chain := d.chain
	fastCatchup := d.fastCatchup
	d.mtx.Unlock()
	if chain == nil {
		return
	}

	var toFetch []chainhash.Hash
	for _, h := range msg.Headers {
		if _, err := chain.Extend(h); err != nil {
			log.Debugf("%s: rejecting header: %v", p, err)
			p.disconnect(ReasonProtocolViolation)
			return
		}
		if h.Timestamp.Unix() >= fastCatchup {
			toFetch = append(toFetch, h.BlockHash())
		}
	}

	// Request the filtered-block bodies for everything past the catchup
	// point, in header order; RequestFilteredBlocks enforces the
	// in-flight window.
	if len(toFetch) > 0 {
		_ = p.RequestFilteredBlocks(toFetch)
	}

	if len(msg.Headers) == wire.MaxBlockHeadersPerMsg {
		_ = p.RequestHeaders()
	}
}

func (p *Peer) handleMerkleBlock(msg *wire.MsgMerkleBlock) {
	matches, err := bloom.ExtractMatches(msg)
	if err != nil {
		log.Debugf("%s: invalid merkleblock: %v", p, err)
		p.disconnect(ReasonProtocolViolation)
		return
	}

	blockHash := msg.Header.BlockHash()

	d := p.dl()
	d.mtx.Lock()
	delete(d.inFlight, blockHash)
	expected := make(map[chainhash.Hash]struct{}, len(matches))
	for _, m := range matches {
		expected[*m] = struct{}{}
	}
	d.pending = &pendingMerkleBlock{header: msg.Header, expected: expected}
	d.mtx.Unlock()

	if p.cfg.Listeners.OnMerkleBlock != nil {
		p.cfg.Listeners.OnMerkleBlock(p, msg)
	}

	if len(expected) == 0 {
		d.mtx.Lock()
		d.pending = nil
		d.mtx.Unlock()
	}
}

func (p *Peer) handleTx(msg *wire.MsgTx) {
	hash := msg.TxHash()
	p.knownInventory.Add(hash)

	d := p.dl()
	d.mtx.Lock()
	if d.pending != nil {
		if _, ok := d.pending.expected[hash]; ok {
			delete(d.pending.expected, hash)
			if len(d.pending.expected) == 0 {
				d.pending = nil
			}
		}
	}
	d.mtx.Unlock()

	if p.cfg.Listeners.OnTx != nil {
		p.cfg.Listeners.OnTx(p, msg)
	}
}

func (p *Peer) handleInv(msg *wire.MsgInv) {
	for _, iv := range msg.InvList {
		p.knownInventory.Add(iv.Hash)
	}
	if p.cfg.Listeners.OnInv != nil {
		p.cfg.Listeners.OnInv(p, msg)
	}
}

func (p *Peer) handleNotFound(msg *wire.MsgNotFound) {
	d := p.dl()
	d.mtx.Lock()
	for _, iv := range msg.InvList {
		delete(d.inFlight, iv.Hash)
	}
	d.mtx.Unlock()
}
