package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span names for OSD client operations.
const (
	SpanDispatch  = "osdc.dispatch"   // send_request / resubmit of a single request
	SpanKick      = "osdc.kick"       // kick_requests walk over the registry
	SpanMapUpdate = "osdc.map_update" // incremental or full osdmap ingestion
	SpanReply     = "osdc.reply"      // handle_reply / on_reply demux
	SpanSyncRead  = "osdc.sync_read"
	SpanSyncWrite = "osdc.sync_write"
	SpanWritepages = "osdc.writepages_start"
	SpanTimeout   = "osdc.timeout" // single-timer timeout walk
)

// Attribute keys for OSD client spans. These mirror the structured log
// fields in internal/logger so a trace and a log line about the same
// request carry the same vocabulary.
const (
	AttrTid    = "osd.tid"
	AttrPgid   = "osd.pgid"
	AttrEpoch  = "osd.epoch"
	AttrTarget = "osd.target"
	AttrIno    = "osd.ino"
	AttrSnap   = "osd.snap"
	AttrOid    = "osd.oid"
	AttrOffset = "osd.offset"
	AttrLength = "osd.length"
	AttrResult = "osd.result"
	AttrAttempt = "osd.attempt"
)

// Tid returns an attribute.KeyValue for a request tid.
func Tid(tid uint64) attribute.KeyValue { return attribute.Int64(AttrTid, int64(tid)) }

// Pgid returns an attribute.KeyValue for a placement group id.
func Pgid(pgid string) attribute.KeyValue { return attribute.String(AttrPgid, pgid) }

// Epoch returns an attribute.KeyValue for a cluster map epoch.
func Epoch(epoch uint32) attribute.KeyValue { return attribute.Int64(AttrEpoch, int64(epoch)) }

// Target returns an attribute.KeyValue for a target node id.
func Target(node int32) attribute.KeyValue { return attribute.Int64(AttrTarget, int64(node)) }

// Ino returns an attribute.KeyValue for an object-family identifier.
func Ino(ino uint64) attribute.KeyValue { return attribute.Int64(AttrIno, int64(ino)) }

// Snap returns an attribute.KeyValue for a snapshot id.
func Snap(snap uint64) attribute.KeyValue { return attribute.Int64(AttrSnap, int64(snap)) }

// Oid returns an attribute.KeyValue for an object name.
func Oid(oid string) attribute.KeyValue { return attribute.String(AttrOid, oid) }

// Offset returns an attribute.KeyValue for an I/O offset.
func Offset(off uint64) attribute.KeyValue { return attribute.Int64(AttrOffset, int64(off)) }

// Length returns an attribute.KeyValue for an I/O length.
func Length(n uint64) attribute.KeyValue { return attribute.Int64(AttrLength, int64(n)) }

// Result returns an attribute.KeyValue for a reply result code.
func Result(result int32) attribute.KeyValue { return attribute.Int64(AttrResult, int64(result)) }

// Attempt returns an attribute.KeyValue for a resend attempt number.
func Attempt(n int) attribute.KeyValue { return attribute.Int(AttrAttempt, n) }

// StartRequestSpan starts a span for a single request carrying its tid,
// pgid, epoch and target, as available at the call site. Any of pgid,
// epoch or target may be zero-valued when not yet known (e.g. before the
// first placement decision).
func StartRequestSpan(ctx context.Context, name string, tid uint64, pgid string, epoch uint32, target int32) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{Tid(tid)}
	if pgid != "" {
		attrs = append(attrs, Pgid(pgid))
	}
	if epoch != 0 {
		attrs = append(attrs, Epoch(epoch))
	}
	attrs = append(attrs, Target(target))
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// FormatPgid formats a (pool, seed) pair the way placement group ids are
// rendered in logs and traces: "<pool>.<seed-in-hex>".
func FormatPgid(pool int64, seed uint32) string {
	return fmt.Sprintf("%d.%x", pool, seed)
}
