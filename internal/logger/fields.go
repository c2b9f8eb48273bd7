package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the OSD client.
// Use these consistently so log aggregation/querying works across components.
const (
	KeyTraceID = "trace_id" // OpenTelemetry trace ID
	KeySpanID  = "span_id"  // OpenTelemetry span ID

	KeyTid    = "tid"    // request tid
	KeyPgid   = "pgid"   // placement group id
	KeyEpoch  = "epoch"  // osdmap epoch
	KeyTarget = "target" // target node id

	KeyIno  = "ino"  // inode number (vino.Ino)
	KeySnap = "snap" // snapshot id (vino.Snap)
	KeyOid  = "oid"  // object name

	KeyOffset = "offset" // I/O offset
	KeyLength = "length" // I/O length

	KeyFlags  = "flags"  // request header flags
	KeyResult = "result" // reply result code

	KeyAddr  = "addr"  // peer address
	KeyError = "error" // error message

	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyAttempt    = "attempt"     // resend attempt number
)

// Tid returns a slog.Attr for a request tid.
func Tid(tid uint64) slog.Attr { return slog.Uint64(KeyTid, tid) }

// Pgid returns a slog.Attr for a placement group id.
func Pgid(pgid string) slog.Attr { return slog.String(KeyPgid, pgid) }

// Epoch returns a slog.Attr for a cluster map epoch.
func Epoch(epoch uint32) slog.Attr { return slog.Any(KeyEpoch, epoch) }

// Target returns a slog.Attr for a target node id.
func Target(node int32) slog.Attr { return slog.Any(KeyTarget, node) }

// Ino returns a slog.Attr for an object-family identifier.
func Ino(ino uint64) slog.Attr { return slog.Uint64(KeyIno, ino) }

// Snap returns a slog.Attr for a snapshot id.
func Snap(snap uint64) slog.Attr { return slog.Uint64(KeySnap, snap) }

// Oid returns a slog.Attr for an object name.
func Oid(oid string) slog.Attr { return slog.String(KeyOid, oid) }

// Offset returns a slog.Attr for an I/O offset.
func Offset(off uint64) slog.Attr { return slog.Uint64(KeyOffset, off) }

// Length returns a slog.Attr for an I/O length.
func Length(n uint64) slog.Attr { return slog.Uint64(KeyLength, n) }

// Flags returns a slog.Attr for request header flags.
func Flags(flags uint32) slog.Attr { return slog.Any(KeyFlags, flags) }

// Result returns a slog.Attr for a reply result code.
func Result(result int32) slog.Attr { return slog.Any(KeyResult, result) }

// Addr returns a slog.Attr for a peer address.
func Addr(addr string) slog.Attr { return slog.String(KeyAddr, addr) }

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Attempt returns a slog.Attr for a resend attempt number.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }
