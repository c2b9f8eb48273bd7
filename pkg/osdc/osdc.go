// Package osdc is the OSD client's I/O façade: the synchronous sync_read and
// sync_write entry points, the asynchronous writepages_start entry point,
// and the Mount sequence that wires the placement engine, cluster map
// holder, request registry, and dispatch & resubmit engine into one client.
package osdc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/osdc/internal/logger"
	"github.com/marmos91/osdc/internal/telemetry"
	"github.com/marmos91/osdc/pkg/bufpool"
	"github.com/marmos91/osdc/pkg/clustermap"
	"github.com/marmos91/osdc/pkg/config"
	"github.com/marmos91/osdc/pkg/dispatch"
	"github.com/marmos91/osdc/pkg/epochstore"
	"github.com/marmos91/osdc/pkg/layout"
	"github.com/marmos91/osdc/pkg/messenger"
	prommetrics "github.com/marmos91/osdc/pkg/metrics/prometheus"
	"github.com/marmos91/osdc/pkg/monclient"
	"github.com/marmos91/osdc/pkg/placement"
	"github.com/marmos91/osdc/pkg/registry"
	"github.com/marmos91/osdc/pkg/replypath"
	"github.com/marmos91/osdc/pkg/request"
	"github.com/marmos91/osdc/pkg/vino"
	"github.com/marmos91/osdc/pkg/wire"

	"go.opentelemetry.io/otel/trace"
)

// Opcodes for the one-op requests this façade issues. The wire format
// leaves the opcode space to the caller; these are the only two this
// client ever sends.
const (
	OpRead  uint32 = 1
	OpWrite uint32 = 2
)

// Client is a mounted OSD client: one cluster map holder, one request
// registry, one dispatch engine, wired to a caller-supplied messenger and
// monitor client.
type Client struct {
	cfg *config.Config

	Holder    *clustermap.Holder
	Registry  *registry.Registry
	Dispatch  *dispatch.Engine
	ReplyPath *replypath.Path
	Mon       monclient.MonClient
	Msgr      messenger.Messenger
	Metrics   *prommetrics.RequestMetrics

	epochStore *epochstore.Store
	clientInc  uint64

	// InstanceID is a random identifier minted at Mount, purely for
	// operator-side log correlation across reconnects; it plays no part in
	// placement or request identity.
	InstanceID uuid.UUID
}

// Mount builds a Client: it opens the epoch store (if configured) and seeds
// the cluster map holder from it, wires the dispatch engine, and asks the
// monitor for the next map. The returned Client is ready to serve sync_read,
// sync_write and writepages_start once a map arrives via HandleOSDMap.
func Mount(ctx context.Context, cfg *config.Config, msgr messenger.Messenger, mon monclient.MonClient) (*Client, error) {
	fsid := mon.Fsid()
	initial := &clustermap.Map{
		Fsid:  fsid,
		Nodes: map[int32]clustermap.Node{},
		Rules: map[clustermap.RuleKey]clustermap.Rule{},
	}

	var store *epochstore.Store
	if cfg.EpochStoreDir != "" {
		s, err := epochstore.Open(cfg.EpochStoreDir)
		if err != nil {
			return nil, fmt.Errorf("osdc: mount: %w", err)
		}
		store = s

		if epoch, mapBytes, ok, err := s.LoadEpoch(); err != nil {
			logger.WarnCtx(ctx, "epoch store load failed, bootstrapping from epoch zero", logger.Err(err))
		} else if ok {
			if m, err := (wire.MapDecoder{}).DecodeFull(clustermap.Delta{Epoch: epoch, Bytes: mapBytes}); err != nil {
				logger.WarnCtx(ctx, "persisted map decode failed, bootstrapping from epoch zero", logger.Err(err))
			} else if m.Fsid == fsid {
				initial = m
			}
		}
	}

	holder := clustermap.NewHolder(initial, wire.MapDecoder{})
	reg := registry.New(cfg.OsdTimeout)
	disp := dispatch.New(holder, reg, msgr, mon)
	rp := replypath.New(reg)
	reqMetrics := prommetrics.NewRequestMetrics(func() float64 { return float64(reg.Len()) })

	instanceID := uuid.New()
	c := &Client{
		cfg:        cfg,
		Holder:     holder,
		Registry:   reg,
		Dispatch:   disp,
		ReplyPath:  rp,
		Mon:        mon,
		Msgr:       msgr,
		Metrics:    reqMetrics,
		epochStore: store,
		InstanceID: instanceID,
	}
	logger.InfoCtx(ctx, "mounting osd client", "instance_id", instanceID, "fsid", fsid)

	// dispatch.New already installed holder.OnReplace to kick affected
	// requests; wrap it so a map advance also tells the monitor we've
	// caught up and (if configured) persists the new epoch for restart.
	kick := holder.OnReplace
	holder.OnReplace = func(ctx context.Context, epoch uint32) {
		if kick != nil {
			kick(ctx, epoch)
		}
		mon.GotOSDMap(ctx, epoch)
		reqMetrics.RecordEpochBump()
		c.persistCurrentMap(ctx)
	}

	// registry.New leaves Ping to be wired by dispatch.New; wrap it once
	// more purely to count timeout firings.
	ping := reg.Ping
	reg.Ping = func(req *request.Request) {
		reqMetrics.RecordTimeout()
		if ping != nil {
			ping(req)
		}
	}

	disp.OnResend = func(req *request.Request) {
		reqMetrics.RecordResend()
	}

	logger.InfoCtx(ctx, "requesting initial osd map", "instance_id", instanceID, "epoch", initial.Epoch+1)
	mon.RequestOSDMap(ctx, initial.Epoch+1)
	return c, nil
}

// Close releases resources held by the client (currently just the epoch
// store, if one was opened).
func (c *Client) Close() error {
	if c.epochStore != nil {
		return c.epochStore.Close()
	}
	return nil
}

// HandleOSDMap feeds a decoded OSD_MAP update into the cluster map holder.
func (c *Client) HandleOSDMap(ctx context.Context, update clustermap.Update) error {
	err := c.Holder.Apply(ctx, update)
	if errors.Is(err, clustermap.ErrFsidMismatch) && c.Metrics != nil {
		c.Metrics.RecordFsidMismatch()
	}
	return err
}

func (c *Client) persistCurrentMap(ctx context.Context) {
	if c.epochStore == nil {
		return
	}
	m := c.Holder.Current()
	delta, err := wire.EncodeFullMap(m)
	if err != nil {
		logger.WarnCtx(ctx, "failed to encode map for persistence", logger.Err(err))
		return
	}
	if err := c.epochStore.SaveEpoch(m.Epoch, delta.Bytes); err != nil {
		logger.WarnCtx(ctx, "failed to persist epoch", logger.Err(err))
	}
}

// pgidForExtent derives the placement group an object extent belongs to
// from the layout that produced it.
func pgidForExtent(l layout.Layout, ext layout.ObjectExtent) clustermap.PGID {
	return placement.PGIDForObject(ext.ObjectName, l.Pool, l.RuleType, l.ReplicaSize, l.PreferredPG)
}

func pagesFor(n uint64) int {
	pages := int(n / bufpool.PageSize)
	if n%bufpool.PageSize != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}

func copyToPages(pages [][]byte, n uint64) []byte {
	out := make([]byte, 0, n)
	remaining := n
	for _, p := range pages {
		if remaining == 0 {
			break
		}
		take := uint64(len(p))
		if take > remaining {
			take = remaining
		}
		out = append(out, p[:take]...)
		remaining -= take
	}
	return out
}

func copyFromBuf(pages [][]byte, buf []byte) {
	off := 0
	for _, p := range pages {
		if off >= len(buf) {
			break
		}
		n := copy(p, buf[off:])
		off += n
	}
}

// buildHeader stamps the fields a single-object-extent OP request needs
// into req.Header. opcode, flags and the snap context vary between
// sync_read, sync_write and writepages_start; everything else is
// determined by v, l and ext.
func (c *Client) buildHeader(req *request.Request, v vino.VINO, l layout.Layout, ext layout.ObjectExtent, opcode, flags uint32, snapc *request.SnapContext) {
	req.Header = request.Header{
		ClientInc: c.clientInc,
		Flags:     flags,
		Ino:       v.Ino,
		Bno:       ext.ObjectNumber,
		Snap:      v.Snap,
		Layout:    l,
		NumOps:    1,
		Opcode:    opcode,
		Offset:    ext.ObjectOffset,
		Length:    ext.ObjectLength,
	}
	if snapc != nil {
		req.Header.SnapSeq = snapc.Seq
		req.Header.NumSnaps = uint32(len(snapc.SnapIDs))
		req.SnapCtx = snapc
	}
}

// waitOrCancel blocks until req completes or ctx is done, whichever comes
// first. On cancellation it revokes req's page buffers — the operation's
// interrupt-code return: the caller gets back ctx.Err(), and whatever
// reply eventually lands finds no pages to write into.
//
// RevokePages reports whether a reply had already landed into req's pages
// at the moment of cancellation. If one had, it may still be mid-copy
// using a page slice it captured before the revoke, so this call waits for
// the request to actually complete before returning — only then is it
// safe for the caller to return req.Pages to the buffer pool.
func waitOrCancel(ctx context.Context, req *request.Request) (int64, error) {
	done := make(chan int64, 1)
	go func() {
		done <- req.Wait()
	}()

	select {
	case result := <-done:
		if result < 0 {
			return result, fmt.Errorf("osdc: request failed with result %d", result)
		}
		return result, nil
	case <-ctx.Done():
		if replyLanding := req.RevokePages(); replyLanding {
			<-done
		}
		return 0, ctx.Err()
	}
}

// SyncRead reads length bytes of v starting at off into buf, issuing one OP
// request per object extent the layout maps the range onto, in order, and
// stopping early on the first error. It returns the number of bytes
// actually read.
func (c *Client) SyncRead(ctx context.Context, v vino.VINO, l layout.Layout, off, length uint64, buf []byte) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSyncRead, trace.WithAttributes(
		telemetry.Ino(v.Ino), telemetry.Snap(v.Snap), telemetry.Offset(off), telemetry.Length(length)))
	defer span.End()

	var total uint64
	cur := off
	for total < length {
		ext, n, err := layout.MapFileExtent(v, l, cur, length-total)
		if err != nil {
			return int64(total), err
		}

		result, err := c.readExtent(ctx, v, l, ext, buf[total:total+n])
		if err != nil {
			return int64(total), err
		}
		if uint64(result) < n {
			return int64(total) + result, nil
		}

		cur += n
		total += n
	}
	return int64(total), nil
}

func (c *Client) readExtent(ctx context.Context, v vino.VINO, l layout.Layout, ext layout.ObjectExtent, dst []byte) (int64, error) {
	numPages := pagesFor(ext.ObjectLength)
	pages := bufpool.GetPages(numPages)
	defer bufpool.PutPages(pages)

	req := request.New(v, pgidForExtent(l, ext))
	c.buildHeader(req, v, l, ext, OpRead, 0, nil)
	req.Out = request.NewMessage(nil)
	req.Pages = pages
	req.NumPages = numPages

	c.Registry.Register(req)
	defer req.Put()

	sentAt := time.Now()
	c.Metrics.RecordSend()
	if err := c.Dispatch.Send(ctx, req); err != nil {
		c.Registry.Unregister(req)
		return 0, err
	}

	result, err := waitOrCancel(ctx, req)
	c.Metrics.RecordCompletion(outcomeFor(err), time.Since(sentAt).Seconds())
	if err != nil {
		return 0, err
	}

	n := uint64(result)
	if n > ext.ObjectLength {
		n = ext.ObjectLength
	}
	copy(dst, copyToPages(req.Pages, n))
	return int64(n), nil
}

// SyncWrite writes the first length bytes of buf to v starting at off,
// issuing one OP request per object extent. snapc is the snapshot context
// in effect for the write. It returns the number of bytes actually
// written, stopping early on the first error.
//
// Whether a write's flags request an on-disk commit (default) or only a
// buffer-cache ack (UnsafeWriteback) is a mount-wide config.Config choice,
// not a per-call one.
func (c *Client) SyncWrite(ctx context.Context, v vino.VINO, l layout.Layout, snapc *request.SnapContext, off uint64, buf []byte) (int64, error) {
	length := uint64(len(buf))
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSyncWrite, trace.WithAttributes(
		telemetry.Ino(v.Ino), telemetry.Snap(v.Snap), telemetry.Offset(off), telemetry.Length(length)))
	defer span.End()

	flags := request.FlagModify | request.FlagAck
	if !c.cfg.UnsafeWriteback {
		flags |= request.FlagOnDisk
	}

	var total uint64
	cur := off
	for total < length {
		ext, n, err := layout.MapFileExtent(v, l, cur, length-total)
		if err != nil {
			return int64(total), err
		}

		result, err := c.writeExtent(ctx, v, l, ext, flags, snapc, buf[total:total+n])
		if err != nil {
			return int64(total), err
		}
		if uint64(result) < n {
			return int64(total) + result, nil
		}

		cur += n
		total += n
	}
	return int64(total), nil
}

func (c *Client) writeExtent(ctx context.Context, v vino.VINO, l layout.Layout, ext layout.ObjectExtent, flags uint32, snapc *request.SnapContext, src []byte) (int64, error) {
	req, pages := c.newWriteRequest(v, l, ext, flags, snapc, src)
	defer bufpool.PutPages(pages)
	defer req.Put()

	c.Registry.Register(req)

	sentAt := time.Now()
	c.Metrics.RecordSend()
	if err := c.Dispatch.Send(ctx, req); err != nil {
		c.Registry.Unregister(req)
		return 0, err
	}

	result, err := waitOrCancel(ctx, req)
	c.Metrics.RecordCompletion(outcomeFor(err), time.Since(sentAt).Seconds())
	if err != nil {
		return 0, err
	}
	return int64(ext.ObjectLength), nil
}

func (c *Client) newWriteRequest(v vino.VINO, l layout.Layout, ext layout.ObjectExtent, flags uint32, snapc *request.SnapContext, src []byte) (*request.Request, [][]byte) {
	numPages := pagesFor(ext.ObjectLength)
	pages := bufpool.GetPages(numPages)
	copyFromBuf(pages, src)

	req := request.New(v, pgidForExtent(l, ext))
	c.buildHeader(req, v, l, ext, OpWrite, flags, snapc)
	req.Out = request.NewMessage(pages)

	return req, pages
}

// WritepagesStart issues a single asynchronous write covering the object
// extent at the start of [off, off+len(buf)) — mirroring the kernel
// writeback worker's one-object-at-a-time granularity — and returns
// immediately with the registered, dispatched Request rather than waiting
// for completion. The caller owns buf until the returned Request completes
// (req.Wait()) and must release it no earlier than that; on abort, call
// req.RevokePages() and, if it reports a reply was already landing, wait
// for req.Wait() to actually return before freeing buf.
//
// The staging page vector copied from buf is not returned to the shared
// buffer pool on this path (unlike SyncWrite, which waits in-line and can
// free it deterministically); it is reclaimed by the garbage collector once
// the Request and its Out message are dropped after completion.
//
// WritepagesStart never spans more than one object extent; a caller
// writing back a range that crosses an object boundary calls it once per
// extent, exactly as sync_write's internal loop does.
func (c *Client) WritepagesStart(ctx context.Context, v vino.VINO, l layout.Layout, snapc *request.SnapContext, off uint64, buf []byte) (*request.Request, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanWritepages, trace.WithAttributes(
		telemetry.Ino(v.Ino), telemetry.Snap(v.Snap), telemetry.Offset(off), telemetry.Length(uint64(len(buf)))))
	defer span.End()

	ext, n, err := layout.MapFileExtent(v, l, off, uint64(len(buf)))
	if err != nil {
		return nil, err
	}

	flags := request.FlagModify | request.FlagAck
	if !c.cfg.UnsafeWriteback {
		flags |= request.FlagOnDisk
	}

	req, _ := c.newWriteRequest(v, l, ext, flags, snapc, buf[:n])
	c.Registry.Register(req)

	c.Metrics.RecordSend()
	if err := c.Dispatch.Send(ctx, req); err != nil {
		c.Registry.Unregister(req)
		req.Put()
		return nil, err
	}
	return req, nil
}

// RequestSnapshot is a point-in-time view of one outstanding request, for
// diagnostics (see cmd/osdc's "status requests").
type RequestSnapshot struct {
	Tid        uint64
	Ino        uint64
	Snap       uint64
	Pgid       string
	Opcode     uint32
	LastTarget int32
	Retried    bool
}

// Snapshot lists every request currently outstanding in the registry, in tid
// order, for operator-facing diagnostics. It takes no locks beyond the
// registry's own and never blocks on network I/O.
func (c *Client) Snapshot() []RequestSnapshot {
	reqs := c.Registry.ScanFrom(0)
	out := make([]RequestSnapshot, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, RequestSnapshot{
			Tid:        r.Tid,
			Ino:        r.Vino.Ino,
			Snap:       r.Vino.Snap,
			Pgid:       telemetry.FormatPgid(r.Pgid.Pool, r.Pgid.PS),
			Opcode:     r.Header.Opcode,
			LastTarget: r.LastTarget(),
			Retried:    r.Header.Flags&request.FlagRetry != 0,
		})
	}
	return out
}

func outcomeFor(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
