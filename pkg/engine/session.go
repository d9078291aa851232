// Package engine implements the per-transfer TFTP state machine: sliding
// window DATA transmission, ACK tracking, retransmission timers, and
// block-number wraparound handling (spec §4.4).
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	"github.com/nullboot/tftpd/internal/logger"
	"github.com/nullboot/tftpd/internal/telemetry"
	"github.com/nullboot/tftpd/pkg/audit"
	"github.com/nullboot/tftpd/pkg/bufpool"
	"github.com/nullboot/tftpd/pkg/metrics"
	"github.com/nullboot/tftpd/pkg/negotiate"
	"github.com/nullboot/tftpd/pkg/wire"
)

// state names the Transfer Engine's lifecycle stage (spec §4.4).
type state int

const (
	stateAwaitingInitial state = iota // OACK sent, awaiting ACK(0)
	stateStreaming
	stateDraining // final DATA sent, awaiting its ACK
	stateComplete
	stateFailed
)

type inflightEntry struct {
	payload []byte
	sentAt  time.Time
}

// Config bundles the parameters a Session needs beyond the negotiated
// options: identities, policy knobs, and the collaborators it reports
// through.
type Config struct {
	Filename            string
	Mode                wire.Mode
	Options             negotiate.Options
	MaxRetries          int
	MaxTransferDuration time.Duration // 0 disables the hard cap
	CorrelationID       string
	Sink                audit.Sink
	Metrics             *metrics.Metrics
}

// Session drives one RRQ through to completion on its own ephemeral UDP
// socket. It is not safe for concurrent use; exactly one goroutine (the one
// that calls Run) touches a Session's state, per spec §5.
type Session struct {
	cfg      Config
	conn     *net.UDPConn
	peerAddr *net.UDPAddr
	reader   io.Reader

	state state

	base uint64 // highest acknowledged logical block (0 before any ACK)
	next uint64 // highest logical block sent so far

	inflight map[uint64]inflightEntry

	eofSent  bool
	eofBlock uint64

	retriesRemaining int
	lastProgress     time.Time
	totalBytesSent   int64

	logCtx *logger.LogContext
}

// New constructs a Session bound to conn (already bound to an ephemeral
// local port, not yet connected) targeting peerAddr, reading file content
// (already NETASCII-transformed by the caller when applicable) from reader.
func New(conn *net.UDPConn, peerAddr *net.UDPAddr, reader io.Reader, cfg Config) *Session {
	initialState := stateStreaming
	if cfg.Options.NeedsOack() {
		initialState = stateAwaitingInitial
	}
	return &Session{
		cfg:              cfg,
		conn:             conn,
		peerAddr:         peerAddr,
		reader:           reader,
		state:            initialState,
		inflight:         make(map[uint64]inflightEntry),
		retriesRemaining: cfg.MaxRetries,
		lastProgress:     time.Now(),
		logCtx:           logger.NewLogContext(peerAddr.String(), cfg.CorrelationID).WithFilename(cfg.Filename),
	}
}

var errPeerTimeout = errors.New("engine: retry budget exhausted")

// Run drives the session to completion. It returns nil on a clean
// completion and a non-nil error otherwise; in every case the caller is
// responsible for closing conn and the underlying file once Run returns
// (spec §3 Lifecycle: "socket and open file handle are released on all
// exit paths"). A panic inside the session is recovered and reported as
// TransferFailed with ReasonInternalError.
func (s *Session) Run(ctx context.Context) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "tftp.transfer")
	defer span.End()
	s.logCtx = s.logCtx.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, s.logCtx)

	s.cfg.Metrics.TransferStarted()
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = s.fail(ctx, audit.ReasonInternalError, started, fmt.Errorf("engine: internal error: %v", p))
		}
	}()

	s.emit(ctx, audit.NewTransferStarted(s.newEnvelope(ctx), s.cfg.Filename, s.cfg.Mode.String(),
		s.cfg.Options.BlockSize, s.cfg.Options.WindowSize, s.cfg.Options.Tsize))

	if s.state == stateAwaitingInitial {
		s.emit(ctx, audit.NewOptionNegotiated(s.newEnvelope(ctx), s.cfg.Filename,
			s.cfg.Options.BlockSize, s.cfg.Options.Timeout, s.cfg.Options.WindowSize, s.cfg.Options.Tsize))
		if err := s.sendOack(ctx); err != nil {
			return s.fail(ctx, audit.ReasonIOError, started, err)
		}
	} else {
		if err := s.fillWindow(ctx); err != nil {
			return s.fail(ctx, audit.ReasonIOError, started, err)
		}
	}

	recvBuf := bufpool.Get(4 + s.cfg.Options.BlockSize)
	defer bufpool.Put(recvBuf)

	for {
		if err := ctx.Err(); err != nil {
			s.emit(ctx, audit.NewTransferFailed(s.newEnvelope(ctx), s.cfg.Filename, audit.ReasonCancelled, s.totalBytesSent, ""))
			s.cfg.Metrics.TransferFinished(s.cfg.Mode.String(), "cancelled", s.totalBytesSent, time.Since(started).Seconds())
			return ctx.Err()
		}

		deadline := s.lastProgress.Add(time.Duration(s.cfg.Options.Timeout) * time.Second)
		if s.cfg.MaxTransferDuration > 0 {
			if hard := started.Add(s.cfg.MaxTransferDuration); hard.Before(deadline) {
				deadline = hard
			}
		}
		_ = s.conn.SetReadDeadline(deadline)

		n, addr, err := s.conn.ReadFromUDP(recvBuf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				if retryErr := s.handleTimeout(ctx); retryErr != nil {
					return s.fail(ctx, audit.ReasonPeerTimeout, started, retryErr)
				}
				continue
			}
			return s.fail(ctx, audit.ReasonIOError, started, err)
		}

		if !addrEqual(addr, s.peerAddr) {
			s.emit(ctx, audit.NewUnknownTID(s.newEnvelope(ctx), s.peerAddr.String(), addr.String()))
			_, _ = s.conn.WriteToUDP(wire.EncodeError(wire.ErrUnknownTID, "unknown transfer ID"), addr)
			continue
		}

		pkt, decodeErr := wire.Decode(recvBuf[:n])
		if decodeErr != nil {
			logger.DebugCtx(ctx, "dropping undecodable packet", "error", decodeErr)
			continue
		}

		switch pkt.Op {
		case wire.OpACK:
			done, err := s.handleAck(ctx, pkt.Ack.Block)
			if err != nil {
				return s.fail(ctx, audit.ReasonIOError, started, err)
			}
			if done {
				s.state = stateComplete
				s.emit(ctx, audit.NewTransferCompleted(s.newEnvelope(ctx), s.cfg.Filename, s.totalBytesSent, time.Since(started)))
				s.cfg.Metrics.TransferFinished(s.cfg.Mode.String(), "completed", s.totalBytesSent, time.Since(started).Seconds())
				return nil
			}
		case wire.OpERROR:
			s.emit(ctx, audit.NewTransferFailed(s.newEnvelope(ctx), s.cfg.Filename, audit.ReasonPeerError, s.totalBytesSent, pkt.Error.Message))
			s.cfg.Metrics.TransferFinished(s.cfg.Mode.String(), "failed_peer_error", s.totalBytesSent, time.Since(started).Seconds())
			return fmt.Errorf("engine: peer error %d: %s", pkt.Error.Code, pkt.Error.Message)
		default:
			s.emit(ctx, audit.NewInvalidOpcode(s.newEnvelope(ctx), uint16(pkt.Op)))
		}
	}
}

func (s *Session) sendOack(ctx context.Context) error {
	_, err := s.conn.WriteToUDP(wire.EncodeOack(s.cfg.Options.Accepted), s.peerAddr)
	return err
}

// fillWindow reads and sends DATA blocks until the window invariant
// next-base <= windowSize is saturated or EOF has been sent (spec §4.4
// "Sliding window").
func (s *Session) fillWindow(ctx context.Context) error {
	for !s.eofSent && s.next-s.base < uint64(s.cfg.Options.WindowSize) {
		payload, isFinal, err := readBlock(s.reader, s.cfg.Options.BlockSize)
		if err != nil {
			return fmt.Errorf("engine: read block: %w", err)
		}
		s.next++
		wireBlock := uint16(s.next)
		if _, err := s.conn.WriteToUDP(wire.EncodeData(wireBlock, payload), s.peerAddr); err != nil {
			return fmt.Errorf("engine: send DATA: %w", err)
		}
		s.inflight[s.next] = inflightEntry{payload: payload, sentAt: time.Now()}
		s.totalBytesSent += int64(len(payload))
		if isFinal {
			s.eofSent = true
			s.eofBlock = s.next
			s.state = stateDraining
		}
	}
	if s.state == stateAwaitingInitial {
		s.state = stateStreaming
	}
	return nil
}

// handleAck processes one ACK, advancing base and releasing acknowledged
// inflight entries (spec §4.4 "ACK handling"). It returns done=true once the
// ACK for the final EOF block has been observed.
func (s *Session) handleAck(ctx context.Context, wireBlock uint16) (done bool, err error) {
	if s.state == stateAwaitingInitial {
		if wireBlock != 0 {
			return false, nil // not the ACK(0) we're waiting for
		}
		s.base, s.next = 0, 0
		s.retriesRemaining = s.cfg.MaxRetries
		s.lastProgress = time.Now()
		return false, s.fillWindow(ctx)
	}

	logical, duplicate, ok := reconcileWireBlock(wireBlock, s.base, s.cfg.Options.WindowSize)
	if !ok || duplicate || logical <= s.base || logical > s.next {
		return false, nil
	}

	for b, entry := range s.inflight {
		if b <= logical {
			bufpool.Put(entry.payload)
			delete(s.inflight, b)
		}
	}
	s.base = logical
	s.retriesRemaining = s.cfg.MaxRetries
	s.lastProgress = time.Now()
	s.logCtx = s.logCtx.WithBlock(logical)

	if s.eofSent && logical == s.eofBlock {
		return true, nil
	}
	return false, s.fillWindow(ctx)
}

// handleTimeout retransmits the current inflight window (or the pending
// OACK) on retransmission-timer expiry (spec §4.4 "Retransmission timer").
func (s *Session) handleTimeout(ctx context.Context) error {
	if s.retriesRemaining <= 0 {
		awaited := s.base + 1
		if s.state == stateAwaitingInitial {
			awaited = 0
		}
		s.emit(ctx, audit.NewPeerTimeoutEvent(s.newEnvelope(ctx), s.cfg.Filename, awaited))
		return errPeerTimeout
	}

	if s.state == stateAwaitingInitial {
		if err := s.sendOack(ctx); err != nil {
			return err
		}
	} else {
		blocks := make([]uint64, 0, len(s.inflight))
		for b := range s.inflight {
			blocks = append(blocks, b)
		}
		sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
		for _, b := range blocks {
			entry := s.inflight[b]
			if _, err := s.conn.WriteToUDP(wire.EncodeData(uint16(b), entry.payload), s.peerAddr); err != nil {
				return err
			}
		}
		if len(blocks) > 0 {
			s.emit(ctx, audit.NewRetransmission(s.newEnvelope(ctx), s.cfg.Filename, blocks[0], blocks[len(blocks)-1], s.retriesRemaining-1))
			s.cfg.Metrics.Retransmission()
		}
	}

	s.retriesRemaining--
	s.lastProgress = time.Now()
	return nil
}

func (s *Session) fail(ctx context.Context, reason audit.FailureReason, started time.Time, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	s.emit(ctx, audit.NewTransferFailed(s.newEnvelope(ctx), s.cfg.Filename, reason, s.totalBytesSent, detail))
	s.cfg.Metrics.TransferFinished(s.cfg.Mode.String(), "failed_"+reason.String(), s.totalBytesSent, time.Since(started).Seconds())
	if errors.Is(cause, errPeerTimeout) {
		return cause
	}
	return fmt.Errorf("engine: transfer %q failed: %w", s.cfg.Filename, cause)
}

func (s *Session) newEnvelope(ctx context.Context) audit.Envelope {
	return audit.Envelope{
		Timestamp:     time.Now(),
		Service:       "tftpd",
		Severity:      audit.SeverityInfo,
		PeerAddress:   s.peerAddr.String(),
		CorrelationID: s.cfg.CorrelationID,
		TraceID:       telemetry.TraceID(ctx),
		SpanID:        telemetry.SpanID(ctx),
	}
}

func (s *Session) emit(ctx context.Context, ev audit.Event) {
	if s.cfg.Sink == nil {
		return
	}
	s.cfg.Sink.Emit(ctx, ev)
}

func addrEqual(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
