package messenger

import (
	"context"
	"sync"

	"github.com/marmos91/osdc/pkg/request"
)

// Fake is an in-process Messenger recording every send and ping, for use in
// dispatch and reply-path tests.
type Fake struct {
	mu    sync.Mutex
	Sent  []FakeSend
	Pinged []Entity

	SendErr error
	PingErr error
}

// FakeSend records one Send call.
type FakeSend struct {
	Dest Entity
	Req  *request.Request
}

func (f *Fake) Send(_ context.Context, dest Entity, req *request.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, FakeSend{Dest: dest, Req: req})
	if req.Out != nil {
		req.Out.Put()
	}
	return f.SendErr
}

func (f *Fake) Ping(_ context.Context, dest Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pinged = append(f.Pinged, dest)
	return f.PingErr
}

// SendCount returns how many times Send was called for tid.
func (f *Fake) SendCount(tid uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.Sent {
		if s.Req.Tid == tid {
			n++
		}
	}
	return n
}

// LastSend returns the most recent send recorded for tid.
func (f *Fake) LastSend(tid uint64) (FakeSend, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Sent) - 1; i >= 0; i-- {
		if f.Sent[i].Req.Tid == tid {
			return f.Sent[i], true
		}
	}
	return FakeSend{}, false
}
