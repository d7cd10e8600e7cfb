// Package wampkit wires the router, transports, and configuration into
// a runnable service. Most programs either call Run with environment
// configuration or assemble a router.Router themselves for embedding.
package wampkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/wampkit/wampkit/auth"
	"github.com/wampkit/wampkit/config"
	"github.com/wampkit/wampkit/history"
	historymem "github.com/wampkit/wampkit/history/memory"
	historyredis "github.com/wampkit/wampkit/history/redis"
	"github.com/wampkit/wampkit/internal/logctx"
	"github.com/wampkit/wampkit/router"
	"github.com/wampkit/wampkit/transport"
	"github.com/wampkit/wampkit/transport/ws"
	"github.com/wampkit/wampkit/wamp"
)

// NewLogger builds the service logger: JSON to stderr at the given
// level, enriched with realm/session/message context where available.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(logctx.Handler{
		Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}),
	})
}

// switchingAuthorizer lets a manifest reload swap the authorization
// policy under running sessions.
type switchingAuthorizer struct {
	mu    sync.RWMutex
	inner auth.Authorizer
}

var _ auth.Authorizer = (*switchingAuthorizer)(nil)

func (a *switchingAuthorizer) set(inner auth.Authorizer) {
	a.mu.Lock()
	a.inner = inner
	a.mu.Unlock()
}

func (a *switchingAuthorizer) Authorize(ctx context.Context, id *auth.Identity, action auth.Action, resource wamp.URI, options wamp.Dict) (auth.Decision, error) {
	a.mu.RLock()
	inner := a.inner
	a.mu.RUnlock()
	if inner == nil {
		return auth.Allow, nil
	}
	return inner.Authorize(ctx, id, action, resource, options)
}

// Service is a configured router plus the resources it owns.
type Service struct {
	Router *router.Router

	cfg        *config.Env
	log        *slog.Logger
	hist       history.Store
	authorizer *switchingAuthorizer
}

// New builds a Service from environment configuration and, when
// configured, the realm manifest. Extra router options are appended
// after the config-derived ones, so callers can add authenticators.
func New(cfg *config.Env, log *slog.Logger, extra ...router.Option) (*Service, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	authorizer := &switchingAuthorizer{}
	opts := []router.Option{
		router.WithLogger(log),
		router.WithAuthorizer(authorizer),
		router.WithSendQueueSize(cfg.SendQueueSize),
		router.WithHandshakeTimeout(cfg.HandshakeTimeout),
	}
	if cfg.AutoRealm {
		opts = append(opts, router.WithAutoRealm())
	}

	var hist history.Store
	if cfg.HistoryDepth > 0 {
		if cfg.RedisAddr != "" {
			hist = historyredis.New(historyredis.Config{
				Client: redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
				Depth:  int64(cfg.HistoryDepth),
			})
		} else {
			var err error
			hist, err = historymem.New(historymem.WithDepth(cfg.HistoryDepth))
			if err != nil {
				return nil, fmt.Errorf("wampkit: history store: %w", err)
			}
		}
		opts = append(opts, router.WithEventHistory(hist))
	}
	opts = append(opts, extra...)

	svc := &Service{
		Router:     router.New(opts...),
		cfg:        cfg,
		log:        log,
		hist:       hist,
		authorizer: authorizer,
	}

	if cfg.RealmsFile != "" {
		m, err := config.Load(cfg.RealmsFile)
		if err != nil {
			return nil, err
		}
		svc.applyManifest(m)
	}
	return svc, nil
}

// applyManifest adds realms the router does not have yet and swaps in
// the manifest's authorization policy. Realms removed from the manifest
// keep running; tearing down live sessions on an edit is worse than
// carrying an extra realm until restart.
func (s *Service) applyManifest(m *config.Manifest) {
	s.authorizer.set(m.Authorizer())
	for _, name := range m.RealmNames() {
		if err := s.Router.AddRealm(name); err != nil {
			if errors.Is(err, router.ErrRealmExists) {
				continue
			}
			s.log.Warn("adding realm", "realm", string(name), "err", err)
		}
	}
}

// Run serves the websocket endpoint until ctx is done, watching the
// realm manifest for changes when configured to.
func (s *Service) Run(ctx context.Context) error {
	defer s.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", s.cfg.ListenAddr)
		return ws.ListenAndServe(ctx, s.cfg.ListenAddr, func(conn transport.Conn) {
			_ = s.Router.Attach(ctx, conn)
		}, s.log)
	})
	if s.cfg.RealmsFile != "" && s.cfg.WatchRealms {
		g.Go(func() error {
			err := config.Watch(ctx, s.cfg.RealmsFile, s.log, s.applyManifest)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Close tears down the router and its owned resources.
func (s *Service) Close() {
	s.Router.Close()
	if s.hist != nil {
		if err := s.hist.Close(); err != nil {
			s.log.Warn("closing history store", "err", err)
		}
	}
}

// Run loads environment configuration and serves until ctx is done.
func Run(ctx context.Context, extra ...router.Option) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	svc, err := New(cfg, nil, extra...)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}
