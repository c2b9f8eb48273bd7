// Package dispatch binds requests to targets via the placement engine and
// hands them to the messenger, re-binding and re-sending on map advances or
// peer resets.
package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/osdc/internal/logger"
	"github.com/marmos91/osdc/internal/telemetry"
	"github.com/marmos91/osdc/pkg/clustermap"
	"github.com/marmos91/osdc/pkg/messenger"
	"github.com/marmos91/osdc/pkg/monclient"
	"github.com/marmos91/osdc/pkg/placement"
	"github.com/marmos91/osdc/pkg/registry"
	"github.com/marmos91/osdc/pkg/request"
)

// MaxKickFanOut bounds how many requests kick resends concurrently, so a
// registry holding thousands of outstanding requests cannot flood the
// messenger in one burst.
const MaxKickFanOut = 16

// Engine is the dispatch & resubmit engine: send binds one request to a
// target and hands it to the messenger; kick walks the registry and
// resubmits requests affected by a map advance or a peer reset.
type Engine struct {
	Map       *clustermap.Holder
	Registry  *registry.Registry
	Messenger messenger.Messenger
	MonClient monclient.MonClient

	// OnResend, if set, is called each time resend actually resubmits a
	// non-aborted request. Used by callers that want to count resubmissions
	// without this package taking a metrics dependency of its own.
	OnResend func(req *request.Request)
}

// New wires an Engine and registers it as the map holder's resubmit trigger
// (kick(none) on every published epoch) per the dispatch/resubmit contract.
func New(m *clustermap.Holder, reg *registry.Registry, msgr messenger.Messenger, mon monclient.MonClient) *Engine {
	e := &Engine{Map: m, Registry: reg, Messenger: msgr, MonClient: mon}
	m.OnReplace = func(ctx context.Context, _ uint32) {
		if err := e.Kick(ctx, ""); err != nil {
			logger.ErrorCtx(ctx, "kick after map advance failed", logger.Err(err))
		}
	}
	reg.RequestMap = func() {
		cur := m.Current()
		mon.RequestOSDMap(context.Background(), cur.Epoch+1)
	}
	reg.Ping = func(req *request.Request) {
		addr := req.LastTargetAddr()
		if addr == "" {
			return
		}
		dest := messenger.Entity{Type: messenger.EntityOSD, Node: req.LastTarget(), Addr: addr}
		if err := msgr.Ping(context.Background(), dest); err != nil {
			logger.Warnf("ping to %s failed: %v", addr, err)
		}
	}
	return e
}

// Send is the initial dispatch of a registered request: pick a target from
// the current map, stamp the outgoing header, record the dispatch decision,
// and hand the message to the messenger.
//
// If placement yields no target, the request stays registered; the monitor
// is asked for a newer map and Send still reports success (not an error at
// this layer, per the no-target error-handling rule).
func (e *Engine) Send(ctx context.Context, req *request.Request) error {
	m := e.Map.Current()

	node, ok := placement.PickTarget(m, req.Pgid)
	if !ok {
		logger.InfoCtx(ctx, "no placement target, awaiting newer map", logger.Pgid(req.Pgid.String()))
		e.MonClient.RequestOSDMap(ctx, m.Epoch+1)
		return nil
	}

	addr := m.Addr(node)
	req.Header.OsdmapEpoch = m.Epoch
	dest := messenger.Entity{Type: messenger.EntityOSD, Node: node, Addr: addr}

	req.RecordDispatch(node, addr, time.Now().UnixNano())

	ctx, span := telemetry.StartRequestSpan(ctx, telemetry.SpanDispatch, req.Tid, req.Pgid.String(), m.Epoch, node)
	defer span.End()

	if req.Out != nil {
		req.Out.Get()
	}
	if err := e.Messenger.Send(ctx, dest, req); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	return nil
}

// Kick re-evaluates placement for every registered request and resubmits
// those whose target changed, or whose last target matches who (a peer that
// just reset). who == "" means "a map advance happened"; who == addr means
// "the messenger reported a reset for addr".
//
// If any request currently has no viable target, the monitor is asked once
// for the next epoch after the walk completes.
func (e *Engine) Kick(ctx context.Context, who string) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanKick)
	defer span.End()

	m := e.Map.Current()
	reqs := e.Registry.ScanFrom(0)

	needsNewerMap := false
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxKickFanOut)

	for _, req := range reqs {
		req := req
		node, ok := placement.PickTarget(m, req.Pgid)
		if !ok {
			needsNewerMap = true
			continue
		}
		addr := m.Addr(node)

		if addr != req.LastTargetAddr() || (who != "" && who == req.LastTargetAddr()) {
			req.Get()
			g.Go(func() error {
				defer req.Put()
				return e.resend(gctx, req)
			})
		}
	}

	err := g.Wait()

	if needsNewerMap {
		e.MonClient.RequestOSDMap(ctx, m.Epoch+1)
	}
	return err
}

// resend marks req for retry and re-sends it, unless it has been aborted in
// the meantime.
func (e *Engine) resend(ctx context.Context, req *request.Request) error {
	if req.Aborted() {
		return nil
	}
	req.SetRetry()
	if e.OnResend != nil {
		e.OnResend(req)
	}
	return e.Send(ctx, req)
}

// OnReset implements messenger.ResetListener: a TCP-level reset invalidates
// any outstanding reply promise to that peer, so every request bound there
// must be resubmitted.
func (e *Engine) OnReset(ctx context.Context, addr string) {
	if err := e.Kick(ctx, addr); err != nil {
		logger.ErrorCtx(ctx, "kick after peer reset failed", logger.Addr(addr), logger.Err(err))
	}
}
