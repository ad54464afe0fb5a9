// Package runtime wires the registry service together from configuration
// and manages the HTTP server lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/httpapi"
	"github.com/R3E-Network/cause_registry/internal/app/metrics"
	"github.com/R3E-Network/cause_registry/internal/app/services/causes"
	"github.com/R3E-Network/cause_registry/internal/app/storage"
	"github.com/R3E-Network/cause_registry/internal/app/storage/memory"
	"github.com/R3E-Network/cause_registry/internal/app/storage/postgres"
	"github.com/R3E-Network/cause_registry/internal/chain"
	"github.com/R3E-Network/cause_registry/internal/config"
	"github.com/R3E-Network/cause_registry/internal/events"
	"github.com/R3E-Network/cause_registry/internal/gasbank"
	"github.com/R3E-Network/cause_registry/internal/logging"
	"github.com/R3E-Network/cause_registry/internal/middleware"
	"github.com/R3E-Network/cause_registry/internal/platform/migrations"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg      *config.Config
	log      *logging.Logger
	registry *causes.Registry
	ledger   *gasbank.Manager
	hub      *events.Hub
	limiter  *middleware.RateLimiter
	handler  http.Handler
	server   *http.Server
	cron     *cron.Cron
	db       *sqlx.DB
	redis    *redis.Client
}

// NewApplication constructs the application from cfg.
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logging.New("cause-registry", cfg.Logging.Level, cfg.Logging.Format)
	a := &Application{cfg: cfg, log: log}

	store, ledgerStore, err := a.buildStores(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	fwd, err := a.buildForwarder(ledgerStore)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("configure payouts: %w", err)
	}

	pub, err := a.buildPublisher(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("configure events: %w", err)
	}

	a.registry = causes.New(store, fwd, log, causes.WithPublisher(pub))

	if cfg.Registry.InitialOwner != "" {
		owner, err := cause.ParseAddress(cfg.Registry.InitialOwner)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("registry.initial_owner: %w", err)
		}
		if err := a.registry.Initialize(ctx, owner); err != nil {
			a.close()
			return nil, fmt.Errorf("initialize owner: %w", err)
		}
	}

	if err := a.buildHTTP(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// Registry exposes the registry service.
func (a *Application) Registry() *causes.Registry { return a.registry }

// Handler exposes the HTTP API.
func (a *Application) Handler() http.Handler { return a.handler }

func (a *Application) buildStores(ctx context.Context) (storage.CauseStore, gasbank.Store, error) {
	switch a.cfg.Database.Driver {
	case config.DriverMemory:
		a.log.Warn("using in-memory store; state is lost on restart")
		return memory.New(), gasbank.NewMemoryStore(), nil
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, a.cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		a.db = db
		if a.cfg.Database.Migrate {
			if err := migrations.Up(db.DB); err != nil {
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return postgres.New(db), postgres.NewGasBankStore(db), nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", a.cfg.Database.Driver)
	}
}

func (a *Application) buildForwarder(ledgerStore gasbank.Store) (causes.Forwarder, error) {
	switch a.cfg.Payout.Mode {
	case config.PayoutLedger:
		a.ledger = gasbank.NewManager(ledgerStore, a.log)
		return a.ledger, nil
	case config.PayoutNEP17:
		onChain, err := newNEP17Forwarder(a.cfg.Chain, a.log)
		if err != nil {
			return nil, err
		}
		// custody pays the cause; the donor's ledger balance covers it
		a.ledger = gasbank.NewManager(ledgerStore, a.log)
		return gasbank.NewCustodyForwarder(a.ledger, onChain), nil
	default:
		return nil, fmt.Errorf("unsupported payout mode %q", a.cfg.Payout.Mode)
	}
}

func newNEP17Forwarder(cfg config.ChainConfig, log *logging.Logger) (*chain.NEP17Forwarder, error) {
	client, err := chain.NewClient(chain.Config{
		RPCURL:    cfg.RPCURL,
		NetworkID: cfg.NetworkID,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	acc, err := chainAccount(cfg)
	if err != nil {
		return nil, err
	}

	token, err := parseToken(cfg.Token)
	if err != nil {
		return nil, err
	}

	fwd := chain.NewNEP17Forwarder(client, acc, token, log,
		chain.WithWait(cfg.PollInterval, cfg.WaitTimeout),
		chain.WithValidBlocks(cfg.ValidBlocks))
	log.WithField("sender", cause.FormatAddress(fwd.Sender())).
		WithField("token", "0x"+token.StringLE()).
		Info("nep17 payouts enabled")
	return fwd, nil
}

func chainAccount(cfg config.ChainConfig) (*wallet.Account, error) {
	if cfg.WIF != "" {
		return chain.AccountFromWIF(cfg.WIF)
	}
	return chain.AccountFromPrivateKey(cfg.PrivateKey)
}

// parseToken accepts a 0x-prefixed LE script hash; empty means GAS.
func parseToken(raw string) (util.Uint160, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "gas") {
		return chain.GASHash, nil
	}
	h, err := util.Uint160DecodeStringLE(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return util.Uint160{}, fmt.Errorf("chain.token: %w", err)
	}
	return h, nil
}

func (a *Application) buildPublisher(ctx context.Context) (events.Publisher, error) {
	var pubs events.Multi
	if a.cfg.Events.Log {
		pubs = append(pubs, events.NewLogPublisher(a.log))
	}
	if a.cfg.Events.RedisURL != "" {
		client, err := events.DialRedis(ctx, a.cfg.Events.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = client
		pubs = append(pubs, events.NewRedisPublisher(client, a.cfg.Events.RedisChannel))
	}
	if a.cfg.Events.Stream {
		a.hub = events.NewHub(a.log)
		pubs = append(pubs, a.hub)
	}
	return pubs, nil
}

func (a *Application) buildHTTP() error {
	pem, err := a.cfg.Auth.JWTPublicKey()
	if err != nil {
		return err
	}
	key, err := middleware.ParsePublicKey(pem)
	if err != nil {
		return fmt.Errorf("parse jwt public key: %w", err)
	}

	opts := httpapi.Options{
		Registry: a.registry,
		Ledger:   a.ledger,
		Auth:     middleware.NewAuthMiddleware(key, a.cfg.Auth.Issuer, a.log),
		CORS:     middleware.NewCORSMiddleware(a.cfg.CORS.Origins()),
		Logger:   a.log,
	}
	if a.hub != nil {
		opts.Stream = a.hub
	}
	if a.cfg.RateLimit.Enabled {
		a.limiter = middleware.NewRateLimiter(a.cfg.RateLimit.RPS, a.cfg.RateLimit.Burst, a.log)
		opts.RateLimiter = a.limiter
	}
	a.handler = httpapi.NewHandler(opts)

	a.server = &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      a.handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}
	return nil
}

// Run starts the HTTP server and background jobs and blocks until ctx is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if a.limiter != nil {
		a.limiter.StartCleanup(ctx, 5*time.Minute)
	}

	a.cron = cron.New()
	if _, err := a.cron.AddFunc(a.cfg.Registry.StatsCron, func() { a.RefreshStats(ctx) }); err != nil {
		return fmt.Errorf("schedule stats refresh %q: %w", a.cfg.Registry.StatsCron, err)
	}
	a.cron.Start()
	a.RefreshStats(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.cfg.Server.Addr).Info("HTTP server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// RefreshStats recomputes the registry gauges.
func (a *Application) RefreshStats(ctx context.Context) {
	ids, err := a.registry.GetAllCauseIDs(ctx)
	if err != nil {
		a.log.WithError(err).Warn("stats refresh failed")
		return
	}
	var raised float64
	for _, id := range ids {
		c, err := a.registry.GetCause(ctx, id)
		if err != nil {
			a.log.WithError(err).WithField("cause_id", id).Warn("stats refresh failed")
			return
		}
		raised += float64(c.Raised)
	}
	metrics.SetRegistryStats(len(ids), raised)
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}

	var err error
	if a.server != nil {
		err = a.server.Shutdown(shutdownCtx)
	}
	a.close()
	return err
}

func (a *Application) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
}
