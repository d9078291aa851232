package audit

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nullboot/tftpd/internal/logger"
)

// Sink is the boundary the engine and acceptor emit through.
// Implementations must be safe for concurrent calls to Emit (spec §5).
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// LogSink emits events through the structured logger (internal/logger),
// one log line per event at a level derived from Envelope.Severity. This
// is the default sink wired by cmd/tftpd when no external collector is
// configured.
type LogSink struct{}

// NewLogSink returns a Sink that writes through internal/logger.
func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Emit(ctx context.Context, ev Event) {
	env := ev.Env()
	msg, args := describe(ev)
	args = append(args,
		"peer_addr", env.PeerAddress,
		"correlation_id", env.CorrelationID,
	)
	switch env.Severity {
	case SeverityError:
		logger.ErrorCtx(ctx, msg, args...)
	case SeverityWarn:
		logger.WarnCtx(ctx, msg, args...)
	default:
		logger.InfoCtx(ctx, msg, args...)
	}
}

// describe renders an event's type-specific fields as a log message and
// key-value argument slice.
func describe(ev Event) (string, []any) {
	switch e := ev.(type) {
	case *TransferStarted:
		return "transfer started", []any{"filename", e.Filename, "mode", e.Mode, "block_size", e.BlockSize, "window_size", e.WindowSize}
	case *TransferCompleted:
		return "transfer completed", []any{"filename", e.Filename, "bytes_sent", e.BytesSent, "duration_ms", e.Duration.Milliseconds()}
	case *TransferFailed:
		return "transfer failed", []any{"filename", e.Filename, "reason", e.Reason.String(), "bytes_sent", e.BytesSent, "detail", e.Detail}
	case *PathViolation:
		return "path violation", []any{"filename", e.Filename, "detail", e.Detail}
	case *FileSizeRejected:
		return "file size rejected", []any{"filename", e.Filename, "file_size", e.FileSize, "max_size", e.MaxSize}
	case *InvalidOpcode:
		return "invalid opcode", []any{"opcode", e.Opcode}
	case *OptionNegotiated:
		return "options negotiated", []any{"filename", e.Filename, "block_size", e.BlockSize, "timeout", e.Timeout, "window_size", e.WindowSize, "tsize", e.Tsize}
	case *Retransmission:
		return "retransmission", []any{"filename", e.Filename, "from_block", e.FromBlock, "to_block", e.ToBlock, "retries_remaining", e.RetriesRemaining}
	case *PeerTimeoutEvent:
		return "peer timeout", []any{"filename", e.Filename, "block", e.Block}
	case *UnknownTID:
		return "unknown TID", []any{"expected_addr", e.ExpectedAddr, "actual_addr", e.ActualAddr}
	case *WriteRefused:
		return "write refused", []any{"filename", e.Filename}
	case *MailRefused:
		return "mail mode refused", []any{"filename", e.Filename}
	case *RateLimited:
		return "request rate limited", []any{"source_address", e.SourceAddress}
	default:
		return "audit event", nil
	}
}

// JSONSink marshals each event to a single JSON line, written through w.
// Useful for piping audit records to an external collector process.
type JSONSink struct {
	mu     sync.Mutex
	encode func(v any) ([]byte, error)
	write  func([]byte) (int, error)
}

// NewJSONSink returns a Sink writing newline-delimited JSON via writeLine.
func NewJSONSink(writeLine func([]byte) (int, error)) *JSONSink {
	return &JSONSink{encode: json.Marshal, write: writeLine}
}

func (s *JSONSink) Emit(_ context.Context, ev Event) {
	record := struct {
		Envelope
		Type string `json:"type"`
		Data Event  `json:"data"`
	}{
		Envelope: ev.Env(),
		Type:     eventType(ev),
		Data:     ev,
	}
	b, err := s.encode(record)
	if err != nil {
		return
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.write(b)
}

func eventType(ev Event) string {
	switch ev.(type) {
	case *TransferStarted:
		return "transfer_started"
	case *TransferCompleted:
		return "transfer_completed"
	case *TransferFailed:
		return "transfer_failed"
	case *PathViolation:
		return "path_violation"
	case *FileSizeRejected:
		return "file_size_rejected"
	case *InvalidOpcode:
		return "invalid_opcode"
	case *OptionNegotiated:
		return "option_negotiated"
	case *Retransmission:
		return "retransmission"
	case *PeerTimeoutEvent:
		return "peer_timeout"
	case *UnknownTID:
		return "unknown_tid"
	case *WriteRefused:
		return "write_refused"
	case *MailRefused:
		return "mail_refused"
	case *RateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}
