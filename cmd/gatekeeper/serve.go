package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/pumppilot/gatekeeper/adapters/chain"
	"github.com/pumppilot/gatekeeper/adapters/events"
	"github.com/pumppilot/gatekeeper/adapters/identity"
	"github.com/pumppilot/gatekeeper/adapters/store"
	"github.com/pumppilot/gatekeeper/adapters/tokenizer"
	"github.com/pumppilot/gatekeeper/config"
	"github.com/pumppilot/gatekeeper/internal/logging"
	"github.com/pumppilot/gatekeeper/internal/upstream"
	"github.com/pumppilot/gatekeeper/ports"
	"github.com/pumppilot/gatekeeper/service"
	transport "github.com/pumppilot/gatekeeper/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Run the HTTP API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML config file",
			EnvVars: []string{"GATEKEEPER_CONFIG"},
		},
	},
	Action: runServe,
}

type backingStore interface {
	ports.ChallengeStore
	ports.Store
}

// redisClients hands out one client per URL, so the challenge store and the
// event stream can live on different servers
type redisClients struct {
	clients map[string]*redis.Client
}

func newRedisClients() *redisClients {
	return &redisClients{clients: make(map[string]*redis.Client)}
}

func (r *redisClients) get(url string) (*redis.Client, error) {
	if client, ok := r.clients[url]; ok {
		return client, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	r.clients[url] = client
	return client, nil
}

// Close closes every client. A client already closed by its owner is not an error.
func (r *redisClients) Close() error {
	var errs []error
	for _, client := range r.clients {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// server is the wired HTTP handler plus everything to release on shutdown
type server struct {
	handler http.Handler
	closers []func() error
}

func (s *server) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases resources in reverse order of acquisition
func (s *server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func runServe(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	logger, _ := logging.NewLogger(cfg.Log.Level)
	defer func() { _ = logger.Sync() }()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("store", cfg.Store.Driver))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newServer wires the adapters selected by cfg into the auth service and router
func newServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *server, err error) {
	srv := &server{}
	defer func() {
		if err != nil {
			_ = srv.Close()
		}
	}()

	signingKey, err := loadSigningKey(cfg, logger)
	if err != nil {
		return nil, err
	}

	redisPool := newRedisClients()
	srv.onClose(redisPool.Close)

	var backing backingStore
	switch cfg.Store.Driver {
	case config.StoreDriverRedis:
		client, err := redisPool.get(cfg.Store.RedisURL)
		if err != nil {
			return nil, err
		}
		backing = store.NewRedisStore(client)
	default:
		memStore := store.NewMemoryStore()
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return nil, fmt.Errorf("failed to create scheduler: %w", err)
		}
		srv.onClose(scheduler.Shutdown)

		if _, err := store.ScheduleSweep(scheduler, memStore, cfg.Store.SweepInterval, logger); err != nil {
			return nil, err
		}
		scheduler.Start()
		backing = memStore
	}

	var eventPub ports.EventPublisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		client, err := redisPool.get(cfg.EventsRedisURL())
		if err != nil {
			return nil, err
		}
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: client,
			},
			events.NewZapLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis publisher: %w", err)
		}
		srv.onClose(publisher.Close)
		eventPub = events.NewWatermillPublisher(publisher)
	}

	verifier := chain.NewVerifier(nil)
	if cfg.Chain.RPCURL != "" {
		rpcHTTP := upstream.NewClient(upstream.Options{}, logger.Named("chain")).StandardClient()
		ethClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, rpcHTTP)
		if err != nil {
			return nil, err
		}
		srv.onClose(func() error {
			ethClient.Close()
			return nil
		})
		verifier = chain.NewVerifier(ethClient)
	}

	var identityProvider ports.IdentityProvider = identity.Disabled{}
	if cfg.Identity.URL != "" {
		client := upstream.NewClient(upstream.Options{
			RetryWaitMin: cfg.Identity.RetryWaitMin,
			RetryWaitMax: cfg.Identity.RetryWaitMax,
		}, logger.Named("identity"))
		identityProvider = identity.NewSupabaseClient(cfg.Identity.URL, cfg.Identity.APIKey, client)
	} else {
		logger.Warn("identity.url is not set, email/password login is disabled")
	}

	authService := service.NewAuthService(service.Dependencies{
		Challenges: backing,
		Store:      backing,
		Tokenizer:  tokenizer.NewJWTTokenizer(signingKey),
		Verifier:   verifier,
		Identity:   identityProvider,
		Events:     eventPub,
		Logger:     logger,
	}, cfg.ServiceOptions())

	srv.handler = transport.SetupRouter(authService, logger)
	return srv, nil
}

func loadSigningKey(cfg *config.Config, logger *zap.Logger) (*ecdsa.PrivateKey, error) {
	if cfg.Auth.SigningKey == "" {
		logger.Warn("auth.signing_key is not set, using an ephemeral key; tokens will not survive a restart")
		return tokenizer.GenerateSigningKey()
	}
	return tokenizer.ParseSigningKey(cfg.Auth.SigningKey)
}
