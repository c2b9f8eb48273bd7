// Package request defines the Request object: the unit of work tracked
// from construction through dispatch, resubmission and completion.
package request

import (
	"sync"
	"sync/atomic"

	"github.com/marmos91/osdc/pkg/clustermap"
	"github.com/marmos91/osdc/pkg/layout"
	"github.com/marmos91/osdc/pkg/vino"
)

// Flag bits for the OP request header.
const (
	FlagAck        uint32 = 1 << 0
	FlagOnDisk     uint32 = 1 << 1
	FlagModify     uint32 = 1 << 2
	FlagOrderSnap  uint32 = 1 << 3
	FlagRetry      uint32 = 1 << 4
)

// SnapContext is the reference-counted, immutable set of snapshot ids in
// effect when a write was issued. The client never mutates it.
type SnapContext struct {
	Seq     uint64
	SnapIDs []uint64
}

// Message is the minimal shape pkg/request needs from an outgoing or
// incoming wire message: a reference count and a page-vector slot guarded
// by its own mutex, per the page-buffer contract with the messenger.
type Message struct {
	pageMu sync.Mutex
	pages  [][]byte
	refs   int32
}

// NewMessage wraps pages (may be nil) in a new Message with one reference.
func NewMessage(pages [][]byte) *Message {
	return &Message{pages: pages, refs: 1}
}

// Get increments the message's reference count.
func (msg *Message) Get() {
	atomic.AddInt32(&msg.refs, 1)
}

// Put decrements the message's reference count.
func (msg *Message) Put() int32 {
	return atomic.AddInt32(&msg.refs, -1)
}

// SetPages installs pages as this message's destination page vector,
// guarded by page_mutex. Used by the payload pre-landing hook.
func (msg *Message) SetPages(pages [][]byte) {
	msg.pageMu.Lock()
	msg.pages = pages
	msg.pageMu.Unlock()
}

// Pages returns the currently installed page vector, or nil if revoked.
func (msg *Message) Pages() [][]byte {
	msg.pageMu.Lock()
	defer msg.pageMu.Unlock()
	return msg.pages
}

// RevokePages clears this message's page pointer under page_mutex, the
// operation cancellation uses to make an in-flight reply harmless.
func (msg *Message) RevokePages() {
	msg.pageMu.Lock()
	msg.pages = nil
	msg.pageMu.Unlock()
}

// Header is the little-endian OP header fields a Request stamps into its
// outgoing message. See pkg/wire for on-wire encode/decode.
type Header struct {
	ClientInc   uint64
	Flags       uint32
	OsdmapEpoch uint32
	Tid         uint64
	Ino         uint64
	Bno         uint64 // object number
	Snap        uint64
	Layout      layout.Layout
	NumSnaps    uint32
	SnapSeq     uint64
	NumOps      uint32
	Opcode      uint32
	Offset      uint64
	Length      uint64
}

// Request is the unit of work tracked from construction through
// completion. Reference counting and dispatch bookkeeping are lock-free
// atomics; aborted and reply are guarded together by replyMu because
// installing a reply and aborting the request are a compound check-then-act
// pair that must serialize against each other the same way Message guards
// its page vector with page_mutex — see Abort, SetReply and RevokePages.
type Request struct {
	Tid  uint64 // monotonic id, assigned at registration; 0 before
	Pgid clustermap.PGID
	Vino vino.VINO

	Header Header
	Out    *Message

	Pages    [][]byte
	NumPages int
	SnapCtx  *SnapContext

	replyMu sync.Mutex
	aborted bool
	reply   *Message // nil until SetReply installs one

	refs atomic.Int32

	lastTarget     atomic.Int32
	lastTargetAddr atomic.Value // string
	lastStamp      atomic.Int64 // unix nanos

	completion chan struct{}
	completed  atomic.Bool
	result     atomic.Int64 // byte count (positive) or negative error code

	Callback func(req *Request)
}

// New creates a Request owned by its caller (ref count starts at 1).
func New(v vino.VINO, pgid clustermap.PGID) *Request {
	r := &Request{
		Vino:       v,
		Pgid:       pgid,
		completion: make(chan struct{}),
	}
	r.refs.Store(1)
	r.lastTarget.Store(-1)
	r.lastTargetAddr.Store("")
	return r
}

// Get increments the reference count. Every owner (caller, registry, each
// live outgoing message enqueue, any transient lookup) must pair this with
// exactly one Put.
func (r *Request) Get() int32 {
	return r.refs.Add(1)
}

// Put decrements the reference count and reports whether this was the last
// reference. The caller must not touch r after Put returns true.
func (r *Request) Put() bool {
	n := r.refs.Add(-1)
	if n < 0 {
		panic("request: ref count went negative")
	}
	return n == 0
}

// RefCount returns the current reference count, for tests and diagnostics.
func (r *Request) RefCount() int32 {
	return r.refs.Load()
}

// Abort sets the aborted flag, atomically with respect to SetReply: once
// Abort returns, no SetReply call — in flight or future — can install a
// reply. Resubmission must not re-send and the reply handler must not
// write into Pages once this is set.
func (r *Request) Abort() {
	r.replyMu.Lock()
	r.aborted = true
	r.replyMu.Unlock()
}

// Aborted reports whether Abort has been called.
func (r *Request) Aborted() bool {
	r.replyMu.Lock()
	defer r.replyMu.Unlock()
	return r.aborted
}

// Reply returns the message installed as this request's reply slot by
// SetReply, or nil if none has landed yet.
func (r *Request) Reply() *Message {
	r.replyMu.Lock()
	defer r.replyMu.Unlock()
	return r.reply
}

// SetReply installs msg as the reply slot, unless the request is already
// aborted or a reply slot is already installed, atomically with both. It
// reports whether the install took effect; a false return means the caller
// must not act on msg's pages on this request's behalf — either the
// request was aborted out from under it, or another reply already owns the
// slot.
func (r *Request) SetReply(msg *Message) bool {
	r.replyMu.Lock()
	defer r.replyMu.Unlock()
	if r.aborted || r.reply != nil {
		return false
	}
	r.reply = msg
	return true
}

// SetRetry ORs the RETRY flag into the header flags; called on every resend
// after the first.
func (r *Request) SetRetry() {
	r.Header.Flags |= FlagRetry
}

// RecordDispatch stores the last dispatch decision, read by resubmit and by
// the timeout engine.
func (r *Request) RecordDispatch(target int32, addr string, stampNanos int64) {
	r.lastTarget.Store(target)
	r.lastTargetAddr.Store(addr)
	r.lastStamp.Store(stampNanos)
}

// LastTarget returns the last node id this request was dispatched to, or -1
// if never dispatched.
func (r *Request) LastTarget() int32 {
	return r.lastTarget.Load()
}

// LastTargetAddr returns the address of the last dispatch target.
func (r *Request) LastTargetAddr() string {
	addr, _ := r.lastTargetAddr.Load().(string)
	return addr
}

// LastStamp returns the unix-nanosecond timestamp of the last dispatch.
func (r *Request) LastStamp() int64 {
	return r.lastStamp.Load()
}

// Complete marks the request done with result (positive byte count, zero,
// or a negative error code) and fires the callback or signals completion.
// Safe to call at most once; a second call is a no-op.
func (r *Request) Complete(result int64) {
	if !r.completed.CompareAndSwap(false, true) {
		return
	}
	r.result.Store(result)
	if r.Callback != nil {
		r.Callback(r)
		return
	}
	close(r.completion)
}

// Wait blocks until Complete has been called, then returns the result.
// When Callback is set, Complete invokes it instead of signalling the
// channel, and Wait does not return.
func (r *Request) Wait() int64 {
	<-r.completion
	return r.result.Load()
}

// Result returns the completion result without blocking; only meaningful
// after Wait returns or the callback has fired.
func (r *Request) Result() int64 {
	return r.result.Load()
}

// IsCompleted reports whether Complete has already been called.
func (r *Request) IsCompleted() bool {
	return r.completed.Load()
}

// RevokePages implements the cancellation sequence from the page-buffer
// lifecycle: atomically set aborted and snapshot whatever reply slot
// existed at that instant — this is the same critical section SetReply
// uses, so no reply can install itself after this point — then clear the
// pages pointer on the outgoing message and, if a reply had already
// landed, on it too, each under its own page_mutex.
//
// It reports whether a reply was already installed when cancellation took
// effect. False means no reply can ever reach r.Pages from here on, so the
// caller may free r.Pages immediately. True means a reply had already
// started landing and may be mid-copy into a page slice it captured
// earlier via Message.Pages; the caller must wait for the request to
// actually complete (Wait) before freeing r.Pages.
func (r *Request) RevokePages() bool {
	r.replyMu.Lock()
	r.aborted = true
	reply := r.reply
	r.replyMu.Unlock()

	if r.Out != nil {
		r.Out.RevokePages()
	}
	if reply != nil {
		reply.RevokePages()
	}
	return reply != nil
}
