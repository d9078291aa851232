package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so aggregation and
// querying over the audit/log stream stays stable across releases.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID       = "trace_id"       // OpenTelemetry trace ID for request correlation
	KeySpanID        = "span_id"        // OpenTelemetry span ID for operation tracking
	KeyCorrelationID = "correlation_id" // per-transfer correlation id, stable across retransmits

	// ========================================================================
	// Peer identification
	// ========================================================================
	KeyPeerAddr   = "peer_address" // client ip:port for this transfer
	KeyPeerIP     = "peer_ip"      // client IP only
	KeyPeerPort   = "peer_port"    // client source port (the TID)

	// ========================================================================
	// Request / transfer
	// ========================================================================
	KeyFilename   = "filename"   // requested filename
	KeyMode       = "mode"       // transfer mode: octet, netascii, mail
	KeyOpcode     = "opcode"     // TFTP opcode name
	KeySize       = "size"       // file size in bytes
	KeyBlockSize  = "block_size" // negotiated DATA payload size
	KeyWindowSize = "window_size"
	KeyTimeout    = "timeout_secs"
	KeyBlock      = "block"       // logical (64-bit) block number
	KeyWireBlock  = "wire_block"  // 16-bit wire block number
	KeyBytesSent  = "bytes_sent"

	// ========================================================================
	// Outcome / errors
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code" // TFTP ERROR packet code
	KeySeverity   = "severity"
	KeyRetries    = "retries_remaining"
	KeyAttempt    = "attempt"
	KeyReason     = "reason"
)

// TraceID returns a trace_id attribute.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a span_id attribute.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// CorrelationID returns a correlation_id attribute.
func CorrelationID(id string) slog.Attr { return slog.String(KeyCorrelationID, id) }

// PeerAddr returns a peer_address attribute.
func PeerAddr(addr string) slog.Attr { return slog.String(KeyPeerAddr, addr) }

// Filename returns a filename attribute.
func Filename(name string) slog.Attr { return slog.String(KeyFilename, name) }

// Mode returns a mode attribute.
func Mode(mode string) slog.Attr { return slog.String(KeyMode, mode) }

// Opcode returns an opcode attribute.
func Opcode(op string) slog.Attr { return slog.String(KeyOpcode, op) }

// Size returns a size attribute in bytes.
func Size(s uint64) slog.Attr { return slog.Uint64(KeySize, s) }

// BlockSize returns a block_size attribute.
func BlockSize(n int) slog.Attr { return slog.Int(KeyBlockSize, n) }

// WindowSize returns a window_size attribute.
func WindowSize(n int) slog.Attr { return slog.Int(KeyWindowSize, n) }

// Block returns a block attribute (logical 64-bit block number).
func Block(n uint64) slog.Attr { return slog.Uint64(KeyBlock, n) }

// WireBlock returns a wire_block attribute (16-bit wrapped value).
func WireBlock(n uint16) slog.Attr { return slog.Int(KeyWireBlock, int(n)) }

// BytesSent returns a bytes_sent attribute.
func BytesSent(n uint64) slog.Attr { return slog.Uint64(KeyBytesSent, n) }

// DurationMs returns a duration_ms attribute.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns an error attribute from a Go error (nil-safe).
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns an error_code attribute.
func ErrorCode(code int) slog.Attr { return slog.Int(KeyErrorCode, code) }

// Retries returns a retries_remaining attribute.
func Retries(n int) slog.Attr { return slog.Int(KeyRetries, n) }

// Attempt returns an attempt attribute.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// Reason returns a reason attribute.
func Reason(reason string) slog.Attr { return slog.String(KeyReason, reason) }

// Hex formats a byte slice as a lowercase hex string attribute under key.
func Hex(key string, b []byte) slog.Attr { return slog.String(key, fmt.Sprintf("%x", b)) }
