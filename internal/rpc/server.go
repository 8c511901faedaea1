package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/halyard-sh/halyard/internal/backup"
	"github.com/halyard-sh/halyard/internal/config"
	"github.com/halyard-sh/halyard/internal/engine"
	"github.com/halyard-sh/halyard/internal/fileutil"
	"github.com/halyard-sh/halyard/internal/keystore"
	"github.com/halyard-sh/halyard/internal/metrics"
	"github.com/halyard-sh/halyard/internal/policy"
	"github.com/halyard-sh/halyard/internal/session"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// handler serves one RPC method. The conn is passed so handlers can
// run elicitation round-trips on the caller's own connection.
type handler func(ctx context.Context, c *conn, params json.RawMessage) (any, error)

// Server is the daemon: it owns the singleton keystore lock and shares
// one coordinator, session, and policy store across every client.
type Server struct {
	coord    *engine.Coordinator
	ks       *keystore.Keystore
	sess     *session.Manager
	policies *policy.Store
	backups  *backup.Service
	log      *config.Logger
	version  string
	stats    *metrics.Metrics

	handlers map[string]handler

	idleAfter time.Duration
	lastSeen  struct {
		mu sync.Mutex
		at time.Time
	}
	now func() time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the file logger.
func WithLogger(l *config.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithVersion sets the version string reported by status.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithIdleShutdown enables self-termination after d without traffic.
// Zero disables it.
func WithIdleShutdown(d time.Duration) ServerOption {
	return func(s *Server) { s.idleAfter = d }
}

// WithBackups wires the backup service.
func WithBackups(b *backup.Service) ServerOption {
	return func(s *Server) { s.backups = b }
}

// WithServerClock overrides the time source for tests.
func WithServerClock(now func() time.Time) ServerOption {
	return func(s *Server) { s.now = now }
}

// NewServer builds the daemon around an opened keystore. The caller
// must already hold the keystore flock; two daemons on one keystore
// fail fast at AcquireLock, never here.
func NewServer(ks *keystore.Keystore, policies *policy.Store, sess *session.Manager, coord *engine.Coordinator, opts ...ServerOption) *Server {
	s := &Server{
		coord:    coord,
		ks:       ks,
		sess:     sess,
		policies: policies,
		log:      config.NullLogger(),
		version:  "dev",
		stats:    &metrics.Metrics{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSeen.at = s.now()
	s.registerHandlers()
	return s
}

// HeadlessUnlock derives the session key from the HALYARD_PASSPHRASE
// environment variable when it is set, so agent hosts can start the
// daemon without an interactive prompt. A missing variable is not an
// error; a wrong passphrase surfaces on first use, not here.
func (s *Server) HeadlessUnlock() error {
	pass := os.Getenv(config.EnvPassphrase)
	if pass == "" {
		return nil
	}
	key, err := s.ks.DerivePassphraseKey([]byte(pass))
	if err != nil {
		return err
	}
	defer vaultcrypto.ZeroBytes(key)
	return s.sess.Unlock(key)
}

func (s *Server) touch() {
	s.lastSeen.mu.Lock()
	s.lastSeen.at = s.now()
	s.lastSeen.mu.Unlock()
}

func (s *Server) idleSince() time.Duration {
	s.lastSeen.mu.Lock()
	defer s.lastSeen.mu.Unlock()
	return s.now().Sub(s.lastSeen.at)
}

// watchIdle cancels the serve context once the daemon has been quiet
// for the configured period.
func (s *Server) watchIdle(ctx context.Context, cancel context.CancelFunc) {
	if s.idleAfter <= 0 {
		return
	}
	ticker := time.NewTicker(s.idleAfter / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.idleSince() >= s.idleAfter {
				s.log.Debug("idle for %s, shutting down", s.idleAfter)
				cancel()
				return
			}
		}
	}
}

// ServeConn serves one client over a byte stream (stdio transport).
// Returns when the stream closes, ctx is canceled, or the idle
// deadline passes.
func (s *Server) ServeConn(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.watchIdle(ctx, cancel)
	defer s.sess.Invalidate()

	// The read loop blocks in Scan; closing the reader is the only way
	// to unblock it when the idle watcher fires.
	if rc, ok := r.(io.Closer); ok {
		go func() {
			<-ctx.Done()
			_ = rc.Close()
		}()
	}
	err := newConn(s, w).serve(ctx, r)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// ServeUnix listens on a unix socket and serves each client
// connection concurrently. The socket file is owner-only; a stale
// socket from a dead daemon is replaced.
func (s *Server) ServeUnix(ctx context.Context, socketPath string) error {
	if err := fileutil.EnsurePrivateDir(filepath.Dir(socketPath)); err != nil {
		return err
	}
	_ = os.Remove(socketPath)

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "unix", socketPath)
	if err != nil {
		return halerr.Wrap(err, "listening on %s", socketPath)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return halerr.Wrap(err, "restricting socket permissions")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.watchIdle(ctx, cancel)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
		_ = os.Remove(socketPath)
	}()
	defer s.sess.Invalidate()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		nc, aerr := ln.Accept()
		if aerr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return halerr.Wrap(aerr, "accepting connection")
		}
		s.touch()
		wg.Add(1)
		go func(nc net.Conn) {
			defer wg.Done()
			defer func() { _ = nc.Close() }()
			go func() {
				<-ctx.Done()
				_ = nc.Close()
			}()
			if serr := newConn(s, nc).serve(ctx, nc); serr != nil && ctx.Err() == nil {
				s.log.Debug("client connection ended: %v", serr)
			}
		}(nc)
	}
}
