// Package registry indexes outstanding requests by tid and drives the
// single oldest-request timeout timer.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/osdc/internal/logger"
	"github.com/marmos91/osdc/pkg/request"
)

// Registry is the indexed collection of outstanding requests, keyed by
// monotonic tid. It owns timeout scheduling: one timer, anchored on the
// oldest outstanding request, per the single-handed timer design.
type Registry struct {
	mu      sync.Mutex
	lastTid uint64
	byTid   map[uint64]*request.Request
	order   []uint64 // live tids, ascending; tids are assigned monotonically so appends stay sorted

	timeoutTid uint64
	timer      *time.Timer
	osdTimeout time.Duration

	// RequestMap asks the monitor client for a newer map, opportunistically,
	// on every timer fire.
	RequestMap func()
	// Ping sends a liveness probe to req's current target.
	Ping func(req *request.Request)
}

// New creates an empty Registry whose timer uses osdTimeout as the liveness
// threshold.
func New(osdTimeout time.Duration) *Registry {
	return &Registry{
		byTid:      make(map[uint64]*request.Request),
		osdTimeout: osdTimeout,
	}
}

// Register assigns the next monotonic tid to req, stamps it into the
// request header, indexes it, and takes the registry's own reference. If
// the registry was empty, it arms the timeout timer.
func (r *Registry) Register(req *request.Request) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastTid++
	tid := r.lastTid
	req.Tid = tid
	req.Header.Tid = tid

	r.byTid[tid] = req
	r.order = append(r.order, tid)
	req.Get()

	if len(r.byTid) == 1 {
		r.timeoutTid = tid
		r.arm(req)
	}

	return tid
}

// Unregister removes req from the index, advances or cancels the timeout
// timer if req was the timed request, and releases the registry's
// reference.
func (r *Registry) Unregister(req *request.Request) {
	r.mu.Lock()

	delete(r.byTid, req.Tid)
	r.removeFromOrder(req.Tid)

	if req.Tid == r.timeoutTid {
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
		if len(r.order) > 0 {
			next := r.byTid[r.order[0]]
			r.timeoutTid = r.order[0]
			r.arm(next)
		} else {
			r.timeoutTid = 0
		}
	}

	r.mu.Unlock()
	req.Put()
}

// Lookup returns the request registered under tid, if any.
func (r *Registry) Lookup(tid uint64) (*request.Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byTid[tid]
	return req, ok
}

// ScanFrom returns, in ascending tid order, every request with id >= tid.
func (r *Registry) ScanFrom(tid uint64) []*request.Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := sort.Search(len(r.order), func(i int) bool { return r.order[i] >= tid })
	out := make([]*request.Request, 0, len(r.order)-idx)
	for _, t := range r.order[idx:] {
		out = append(out, r.byTid[t])
	}
	return out
}

// Len returns the number of outstanding requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byTid)
}

func (r *Registry) removeFromOrder(tid uint64) {
	idx := sort.Search(len(r.order), func(i int) bool { return r.order[i] >= tid })
	if idx < len(r.order) && r.order[idx] == tid {
		r.order = append(r.order[:idx], r.order[idx+1:]...)
	}
}

// arm schedules the timer to fire osdTimeout after oldest's last dispatch
// stamp. Must be called with mu held.
func (r *Registry) arm(oldest *request.Request) {
	delay := r.osdTimeout
	if stamp := oldest.LastStamp(); stamp != 0 {
		elapsed := time.Since(time.Unix(0, stamp))
		delay = r.osdTimeout - elapsed
		if delay < 0 {
			delay = 0
		}
	}
	r.timer = time.AfterFunc(delay, r.handleTimeout)
}

// handleTimeout never removes a request from the registry and never
// delivers a completion; it only nudges the network and requests a map
// refresh. It:
//  1. unconditionally asks the monitor for a newer map;
//  2. pings every request whose last_stamp has aged past osd_timeout;
//  3. re-arms for the next oldest request.
func (r *Registry) handleTimeout() {
	if r.RequestMap != nil {
		r.RequestMap()
	}

	r.mu.Lock()
	if len(r.order) == 0 {
		r.mu.Unlock()
		return
	}
	stale := make([]*request.Request, 0)
	now := time.Now()
	for _, tid := range r.order {
		req := r.byTid[tid]
		stamp := req.LastStamp()
		if stamp != 0 && now.Sub(time.Unix(0, stamp)) >= r.osdTimeout {
			stale = append(stale, req)
		}
	}
	oldest := r.byTid[r.order[0]]
	r.timeoutTid = r.order[0]
	r.arm(oldest)
	r.mu.Unlock()

	for _, req := range stale {
		logger.DebugCtx(context.Background(), "pinging stale request", logger.Tid(req.Tid))
		if r.Ping != nil {
			r.Ping(req)
		}
	}
}
