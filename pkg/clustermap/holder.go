package clustermap

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/marmos91/osdc/internal/logger"
	"github.com/marmos91/osdc/internal/telemetry"
)

// ErrFsidMismatch is returned when an incoming map update's filesystem
// identifier does not match the one learned at mount.
var ErrFsidMismatch = errors.New("clustermap: fsid mismatch, map rejected")

// Delta is one incremental or full map payload carried in an OSD_MAP message.
type Delta struct {
	Epoch uint32
	Bytes []byte
}

// Update is the decoded body of an OSD_MAP message: a fsid followed by a
// count-prefixed list of incremental deltas and a count-prefixed list of
// full maps.
type Update struct {
	Fsid         Fsid
	Incremental  []Delta
	Full         []Delta
}

// Decoder turns a raw incremental or full delta into a new Map built on top
// of (optionally) the previous one. Supplied by pkg/wire; kept as an
// interface here so clustermap has no decoding dependency of its own.
type Decoder interface {
	DecodeIncremental(prev *Map, d Delta) (*Map, error)
	DecodeFull(d Delta) (*Map, error)
}

// Holder publishes the current Map snapshot behind a lock-free pointer.
// Readers (placement, dispatch, the timeout walk) call Current and never
// block. Writers serialize through mu; once a new Map is built it is
// published with a single atomic store, so a reader never observes a
// partially applied update. This is the "equivalent publish-then-read-share
// protocol" the design notes permit in place of a true readers-writer
// downgrade.
type Holder struct {
	mu      sync.Mutex
	current atomic.Pointer[Map]
	fsid    Fsid
	decoder Decoder

	// OnReplace is invoked after a new epoch is published, with the writer
	// hold already released (holder readers, including OnReplace itself,
	// only ever take a read-style atomic load). Typically bound to the
	// dispatch engine's kick(none) and the monitor client's got_osdmap.
	OnReplace func(ctx context.Context, epoch uint32)
}

// NewHolder creates a Holder seeded with an initial Map and the fsid learned
// at mount.
func NewHolder(initial *Map, decoder Decoder) *Holder {
	h := &Holder{fsid: initial.Fsid, decoder: decoder}
	h.current.Store(initial)
	return h
}

// Current returns the current published Map snapshot. Safe to call
// concurrently and never blocks.
func (h *Holder) Current() *Map {
	return h.current.Load()
}

// TestPublish replaces the current snapshot directly, bypassing Apply's
// fsid and epoch-ordering checks. Exported for use by other packages' tests
// that need to simulate a map advance without constructing a full Update.
func (h *Holder) TestPublish(m *Map) {
	h.mu.Lock()
	h.current.Store(m)
	h.mu.Unlock()
	if h.OnReplace != nil {
		h.OnReplace(context.Background(), m.Epoch)
	}
}

// Apply processes a decoded OSD_MAP update under the writer hold, per the
// cluster map ingestion rules:
//
//  1. Reject the whole update if its fsid does not match the mount's.
//  2. Apply each incremental whose epoch equals current.epoch+1, in order;
//     skip any other incremental.
//  3. If no incremental advanced the map, consider fulls: skip all but the
//     last; skip it too if its epoch is <= current.epoch; otherwise replace
//     wholesale.
//  4. If a replacement happened, publish it and invoke OnReplace with the
//     writer hold already released.
func (h *Holder) Apply(ctx context.Context, update Update) error {
	if update.Fsid != h.fsid {
		logger.WarnCtx(ctx, "map update fsid mismatch, dropping", "fsid", update.Fsid.String())
		return ErrFsidMismatch
	}

	h.mu.Lock()
	cur := h.current.Load()
	next := cur
	advanced := false

	for _, inc := range update.Incremental {
		if inc.Epoch != next.Epoch+1 {
			continue
		}
		m, err := h.decoder.DecodeIncremental(next, inc)
		if err != nil {
			h.mu.Unlock()
			logger.ErrorCtx(ctx, "map incremental decode failed", logger.Err(err))
			return err
		}
		next = m
		advanced = true
	}

	if !advanced && len(update.Full) > 0 {
		last := update.Full[len(update.Full)-1]
		if last.Epoch > next.Epoch {
			m, err := h.decoder.DecodeFull(last)
			if err != nil {
				h.mu.Unlock()
				logger.ErrorCtx(ctx, "map full decode failed", logger.Err(err))
				return err
			}
			next = m
			advanced = true
		}
	}

	if !advanced {
		h.mu.Unlock()
		return nil
	}

	h.current.Store(next)
	h.mu.Unlock()

	telemetry.AddEvent(ctx, telemetry.SpanMapUpdate, telemetry.Epoch(next.Epoch))
	logger.InfoCtx(ctx, "cluster map advanced", logger.Epoch(next.Epoch))

	if h.OnReplace != nil {
		h.OnReplace(ctx, next.Epoch)
	}
	return nil
}
