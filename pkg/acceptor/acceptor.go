// Package acceptor implements the TFTP Acceptor: the single well-known-port
// UDP listener that admits RRQs, runs admission checks (spec §4.2, §4.5),
// and spawns one Transfer Engine session per accepted request.
//
// The listener lifecycle (Serve/Stop/WaitReady, a shutdown channel guarded
// by sync.Once, a deadline-polled read loop) keeps shutdown responsive
// without a second goroutine racing the socket close.
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nullboot/tftpd/internal/logger"
	"github.com/nullboot/tftpd/pkg/audit"
	"github.com/nullboot/tftpd/pkg/bufpool"
	"github.com/nullboot/tftpd/pkg/engine"
	"github.com/nullboot/tftpd/pkg/jail"
	"github.com/nullboot/tftpd/pkg/metrics"
	"github.com/nullboot/tftpd/pkg/negotiate"
	"github.com/nullboot/tftpd/pkg/netascii"
	"github.com/nullboot/tftpd/pkg/wire"
)

// Config bundles the Acceptor's fixed policy, sourced from the server
// Config (spec §6).
type Config struct {
	ListenAddress       string
	Jail                *jail.Jail
	Limits              negotiate.Limits
	MaxFileSize         int64 // 0 disables the check
	MaxRetries          int
	MaxTransferDuration time.Duration

	RateLimitPerSecond float64 // 0 disables rate limiting
	RateLimitBurst     float64

	Sink    audit.Sink
	Metrics *metrics.Metrics
}

// Acceptor owns the well-known-port UDP socket and the lifecycle of every
// session it spawns.
type Acceptor struct {
	cfg     Config
	limiter *tokenBucket

	conn *net.UDPConn

	shutdown      chan struct{}
	shutdownOnce  sync.Once
	wg            sync.WaitGroup
	listenerReady chan struct{}
}

// New constructs an Acceptor. Call Serve to start listening.
func New(cfg Config) *Acceptor {
	return &Acceptor{
		cfg:           cfg,
		limiter:       newTokenBucket(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		shutdown:      make(chan struct{}),
		listenerReady: make(chan struct{}),
	}
}

// WaitReady returns a channel closed once the UDP listener is bound.
func (a *Acceptor) WaitReady() <-chan struct{} {
	return a.listenerReady
}

// Serve binds the listener and runs the accept loop until ctx is cancelled
// or Stop is called, then waits for every in-flight session to finish
// before returning.
func (a *Acceptor) Serve(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", a.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("acceptor: resolve %q: %w", a.cfg.ListenAddress, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("acceptor: listen %q: %w", a.cfg.ListenAddress, err)
	}
	a.conn = conn
	close(a.listenerReady)

	go func() {
		select {
		case <-ctx.Done():
			a.Stop()
		case <-a.shutdown:
		}
	}()

	a.serveUDP(ctx)
	a.wg.Wait()
	return nil
}

// Stop closes the listener and signals the accept loop to exit. Idempotent.
func (a *Acceptor) Stop() {
	a.shutdownOnce.Do(func() {
		close(a.shutdown)
		if a.conn != nil {
			_ = a.conn.Close()
		}
	})
}

// serveUDP polls the listener with a short read deadline so shutdown stays
// responsive without a second goroutine racing the close (spec §4.5).
func (a *Acceptor) serveUDP(ctx context.Context) {
	buf := bufpool.Get(65507)
	defer bufpool.Put(buf)
	for {
		select {
		case <-a.shutdown:
			return
		default:
		}

		_ = a.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-a.shutdown:
				return
			default:
				logger.ErrorCtx(ctx, "acceptor: read error", "error", err)
				continue
			}
		}

		datagram := append([]byte(nil), buf[:n]...)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.admit(ctx, datagram, addr)
		}()
	}
}

// admit runs every admission check in spec §4.2/§4.5 order and, on success,
// spawns a Transfer Engine session on a fresh ephemeral socket.
func (a *Acceptor) admit(ctx context.Context, datagram []byte, addr *net.UDPAddr) {
	correlationID := uuid.NewString()
	logCtx := logger.NewLogContext(addr.String(), correlationID)
	ctx = logger.WithContext(ctx, logCtx)

	if !a.limiter.Allow(addr.IP.String()) {
		a.emit(ctx, audit.NewRateLimited(a.envelope(addr, correlationID), addr.String()))
		a.cfg.Metrics.RequestRejected("rate_limited")
		return
	}

	pkt, err := wire.Decode(datagram)
	if err != nil {
		logger.DebugCtx(ctx, "acceptor: dropping undecodable datagram", "error", err)
		return
	}

	if pkt.Op == wire.OpWRQ {
		a.emit(ctx, audit.NewWriteRefused(a.envelope(addr, correlationID), pkt.Request.Filename))
		a.cfg.Metrics.RequestRejected("write_refused")
		a.reply(addr, wire.EncodeError(wire.ErrAccessViolation, "writes are not supported"))
		return
	}
	if pkt.Op != wire.OpRRQ {
		a.emit(ctx, audit.NewInvalidOpcode(a.envelope(addr, correlationID), uint16(pkt.Op)))
		a.cfg.Metrics.RequestRejected("invalid_opcode")
		return
	}

	req := pkt.Request
	logCtx = logCtx.WithFilename(req.Filename)
	ctx = logger.WithContext(ctx, logCtx)

	if req.Mode == wire.ModeMail {
		a.emit(ctx, audit.NewMailRefused(a.envelope(addr, correlationID), req.Filename))
		a.cfg.Metrics.RequestRejected("mail_refused")
		a.reply(addr, wire.EncodeError(wire.ErrIllegalOperation, "mail mode is not supported"))
		return
	}

	resolved, err := a.cfg.Jail.Resolve(req.Filename)
	if err != nil {
		a.rejectPath(ctx, addr, correlationID, req.Filename, err)
		return
	}

	file, err := os.Open(resolved)
	if err != nil {
		a.cfg.Metrics.RequestRejected("file_not_found")
		a.reply(addr, wire.EncodeError(wire.ErrFileNotFound, "file not found"))
		return
	}

	if err := a.cfg.Jail.Recheck(resolved); err != nil {
		_ = file.Close()
		a.rejectPath(ctx, addr, correlationID, req.Filename, err)
		return
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		a.cfg.Metrics.RequestRejected("file_not_found")
		a.reply(addr, wire.EncodeError(wire.ErrFileNotFound, "file not found"))
		return
	}

	if a.cfg.MaxFileSize > 0 && info.Size() > a.cfg.MaxFileSize {
		_ = file.Close()
		a.emit(ctx, audit.NewFileSizeRejected(a.envelope(addr, correlationID), req.Filename, info.Size(), a.cfg.MaxFileSize))
		a.cfg.Metrics.RequestRejected("file_too_large")
		a.reply(addr, wire.EncodeError(wire.ErrDiskFull, "file exceeds configured maximum size"))
		return
	}

	opts := negotiate.Negotiate(req.Options, a.cfg.Limits, info.Size())

	var reader io.Reader = file
	if req.Mode == wire.ModeNetascii {
		reader = netascii.NewReader(file)
	}

	ephemeral, err := net.ListenUDP("udp", &net.UDPAddr{IP: localIP(a.conn)})
	if err != nil {
		_ = file.Close()
		logger.ErrorCtx(ctx, "acceptor: failed to open ephemeral socket", "error", err)
		a.reply(addr, wire.EncodeError(wire.ErrNotDefined, "internal error"))
		return
	}

	sess := engine.New(ephemeral, addr, reader, engine.Config{
		Filename:            req.Filename,
		Mode:                req.Mode,
		Options:             opts,
		MaxRetries:          a.cfg.MaxRetries,
		MaxTransferDuration: a.cfg.MaxTransferDuration,
		CorrelationID:       correlationID,
		Sink:                a.cfg.Sink,
		Metrics:             a.cfg.Metrics,
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer file.Close()
		defer ephemeral.Close()
		if err := sess.Run(ctx); err != nil {
			logger.WarnCtx(ctx, "acceptor: transfer ended with error", "error", err)
		}
	}()
}

func (a *Acceptor) rejectPath(ctx context.Context, addr *net.UDPAddr, correlationID, filename string, cause error) {
	if errors.Is(cause, jail.ErrFileNotFound) {
		a.cfg.Metrics.RequestRejected("file_not_found")
		a.reply(addr, wire.EncodeError(wire.ErrFileNotFound, "file not found"))
		return
	}
	a.emit(ctx, audit.NewPathViolation(a.envelope(addr, correlationID), filename, cause.Error()))
	a.cfg.Metrics.RequestRejected("path_violation")
	a.reply(addr, wire.EncodeError(wire.ErrAccessViolation, "access violation"))
}

func (a *Acceptor) reply(addr *net.UDPAddr, payload []byte) {
	_, _ = a.conn.WriteToUDP(payload, addr)
}

func (a *Acceptor) emit(ctx context.Context, ev audit.Event) {
	if a.cfg.Sink == nil {
		return
	}
	a.cfg.Sink.Emit(ctx, ev)
}

func (a *Acceptor) envelope(addr *net.UDPAddr, correlationID string) audit.Envelope {
	return audit.Envelope{
		Timestamp:     time.Now(),
		Service:       "tftpd",
		Severity:      audit.SeverityInfo,
		PeerAddress:   addr.String(),
		CorrelationID: correlationID,
	}
}

func localIP(conn *net.UDPConn) net.IP {
	if conn == nil {
		return nil
	}
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP
	}
	return nil
}
