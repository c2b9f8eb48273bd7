// Package messenger defines the wire messenger contract the dispatch and
// reply-path components depend on. The real network messenger is an
// external collaborator out of scope for this module; this package only
// names the interface it must expose, plus an in-process fake useful for
// tests.
package messenger

import (
	"context"

	"github.com/marmos91/osdc/pkg/request"
)

// Entity identifies a message's destination within the cluster: a node of
// a given type (OSD, monitor, ...) reachable at addr.
type Entity struct {
	Type int32
	Node int32
	Addr string
}

const (
	EntityOSD int32 = iota
	EntityMon
)

// Messenger sends encoded request bytes to an addressed host and reports
// peer resets. The caller takes one reference on req.Out before Send (see
// dispatch.Engine.Send) and the messenger consumes it, handing the bytes off
// asynchronously; replies arrive out of band through the reply path, not as
// a return value.
type Messenger interface {
	// Send transmits req's outgoing message to dest. Send takes ownership of
	// one reference on req.Out (see request.Message.Get/Put); it must call Put once
	// it no longer needs the bytes, whether or not the send succeeds.
	Send(ctx context.Context, dest Entity, req *request.Request) error

	// Ping sends a liveness probe to dest with no associated request.
	Ping(ctx context.Context, dest Entity) error
}

// ResetListener is implemented by components (the dispatch engine) that
// need to react to a messenger-reported TCP-level peer reset.
type ResetListener interface {
	OnReset(ctx context.Context, addr string)
}
