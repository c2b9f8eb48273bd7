// Package replypath implements the payload pre-landing hook and the reply
// handler that demultiplex incoming OP_REPLY messages onto registered
// requests.
package replypath

import (
	"context"
	"errors"

	"github.com/marmos91/osdc/internal/logger"
	"github.com/marmos91/osdc/internal/telemetry"
	"github.com/marmos91/osdc/pkg/registry"
	"github.com/marmos91/osdc/pkg/request"
)

// sizeofReplyHead is the encoded size of an OP_REPLY's fixed header, kept in
// sync with wire.SizeofReplyHead. Duplicated here (rather than imported)
// because pkg/wire depends on this package's ReplyHeader type; importing it
// back would cycle.
const sizeofReplyHead = 24

// ErrNoSuchRequest is returned by PreparePayload when tid names no
// registered request, when the request has fewer pages than the message
// wants, or when its reply slot cannot be claimed. The incoming message's
// type is not checked against the request.
var ErrNoSuchRequest = errors.New("replypath: no such request")

// ReplyHeader carries the decoded fixed-size fields of an OP_REPLY message,
// ahead of its per-op results.
type ReplyHeader struct {
	Tid     uint64
	Flags   uint32
	Result  int32
	NumOps  uint32
}

// Path binds the registry to the messenger's payload pre-landing hook and
// reply handler.
type Path struct {
	Registry *registry.Registry
}

// New creates a Path bound to reg.
func New(reg *registry.Registry) *Path {
	return &Path{Registry: reg}
}

// PreparePayload is called by the messenger before the body of an incoming
// OP_REPLY is read off the wire. If the request is found, has room for
// wantPages, and SetReply succeeds in claiming its reply slot, its page
// vector is installed as msg's destination. This is the hook that delivers
// bulk reply data directly into the caller's pages with no extra copy.
//
// SetReply is the single serialization point against cancellation: it
// fails if the request has been aborted or already has a reply installed,
// so a racing Request.RevokePages can never free pages out from under a
// landing this call just started.
func (p *Path) PreparePayload(tid uint64, wantPages int, msg *request.Message) error {
	req, ok := p.Registry.Lookup(tid)
	if !ok {
		return ErrNoSuchRequest
	}
	if req.NumPages < wantPages {
		return ErrNoSuchRequest
	}
	if !req.SetReply(msg) {
		return ErrNoSuchRequest
	}

	msg.SetPages(req.Pages)
	msg.Get()
	return nil
}

// OnReply is the reply handler: validates the front length, looks the
// request up by tid, lands msg as the reply slot if the pre-landing hook
// did not already do so, unregisters the request, and fires its completion.
func (p *Path) OnReply(ctx context.Context, hdr ReplyHeader, frontLen, expectedOpSize int, msg *request.Message) {
	wantLen := sizeofReplyHead + int(hdr.NumOps)*expectedOpSize
	if frontLen != wantLen {
		logger.WarnCtx(ctx, "corrupt reply front length, dropping",
			logger.Tid(hdr.Tid), "front_len", frontLen, "want_len", wantLen)
		return
	}

	req, ok := p.Registry.Lookup(hdr.Tid)
	if !ok {
		logger.DebugCtx(ctx, "reply for unknown tid, dropping", logger.Tid(hdr.Tid))
		return
	}

	if req.SetReply(msg) {
		msg.Get()
	} else if req.Reply() != msg {
		logger.WarnCtx(ctx, "duplicate reply message for request", logger.Tid(hdr.Tid))
	}

	p.Registry.Unregister(req)

	ctx, span := telemetry.StartRequestSpan(ctx, telemetry.SpanReply, req.Tid, req.Pgid.String(), 0, req.LastTarget())
	span.SetAttributes(telemetry.Result(hdr.Result))
	defer span.End()

	req.Complete(int64(hdr.Result))

	msg.Put()
}
