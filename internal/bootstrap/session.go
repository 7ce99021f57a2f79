package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dealdesk/sessioncore/config"
	"github.com/dealdesk/sessioncore/internal/adapters/devbackend"
	"github.com/dealdesk/sessioncore/internal/adapters/federated"
	"github.com/dealdesk/sessioncore/internal/adapters/filestore"
	"github.com/dealdesk/sessioncore/internal/adapters/httpbridge"
	"github.com/dealdesk/sessioncore/internal/adapters/redisstore"
	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	"github.com/dealdesk/sessioncore/internal/observability/statsd"
	"github.com/dealdesk/sessioncore/internal/ports"
	"github.com/dealdesk/sessioncore/internal/service"
	"github.com/redis/go-redis/v9"
)

// SessionStack bundles the fully wired session components.
type SessionStack struct {
	Manager   *service.Manager
	Scheduler *service.RefreshScheduler
	Hydrator  *service.Hydrator
	Metrics   *statsd.Client

	// Federated is nil unless an external OIDC provider is configured.
	Federated *federated.Provider

	closers []func() error
}

// Close releases resources held by the stack (redis connections, sockets).
func (s *SessionStack) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildSessionStack wires the identity bridge, credential store, session
// manager, refresh scheduler, and hydrator from configuration.
func BuildSessionStack(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*SessionStack, error) {
	stack := &SessionStack{}

	sink, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  cfg.Observability.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("statsd client: %w", err)
	}
	stack.Metrics = sink
	stack.closers = append(stack.closers, sink.Close)

	bridge, err := buildBridge(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(cfg, stack)
	if err != nil {
		return nil, err
	}

	manager, err := service.NewManager(service.ManagerOptions{
		Bridge:  bridge,
		Store:   store,
		Logger:  logger,
		Metrics: sink,
		Retry: service.RetryPolicy{
			MaxAttempts: cfg.Session.RetryAttempts,
			BaseDelay:   cfg.Session.RetryBaseDelay,
		},
		TwoFactor: service.TwoFactorPolicy{
			MaxFailures: cfg.Session.TwoFactorMaxFailures,
			Window:      cfg.Session.TwoFactorWindow,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	stack.Manager = manager

	stack.Scheduler, err = service.NewRefreshScheduler(service.RefreshSchedulerOptions{
		Manager:  manager,
		Interval: cfg.Session.RefreshInterval,
		Window:   cfg.Session.RefreshWindow,
		Logger:   logger,
		Metrics:  sink,
	})
	if err != nil {
		return nil, fmt.Errorf("refresh scheduler: %w", err)
	}

	stack.Hydrator, err = service.NewHydrator(service.HydratorOptions{
		Manager: manager,
		Timeout: cfg.Session.HydrationTimeout,
		Logger:  logger,
		Metrics: sink,
	})
	if err != nil {
		return nil, fmt.Errorf("hydrator: %w", err)
	}

	if cfg.Federated.Enabled() {
		stack.Federated, err = federated.NewProvider(ctx, federated.Config{
			IssuerURL:    cfg.Federated.IssuerURL,
			ClientID:     cfg.Federated.ClientID,
			ClientSecret: cfg.Federated.ClientSecret,
			RedirectURL:  cfg.Federated.RedirectURL,
			Scopes:       cfg.Federated.Scopes(),
		})
		if err != nil {
			return nil, fmt.Errorf("federated provider: %w", err)
		}
	}

	return stack, nil
}

//nolint:ireturn // callers depend on the port, not the concrete bridge.
func buildBridge(cfg config.AppConfig, logger *slog.Logger) (ports.IdentityBridge, error) {
	switch cfg.Backend.Mode {
	case config.BackendModeDev:
		bridge, err := devbackend.NewBridge(devbackend.Config{
			Email:      cfg.Backend.Dev.Email,
			Password:   cfg.Backend.Dev.Password,
			UserID:     cfg.Backend.Dev.UserID,
			Role:       domainauth.RoleAdmin,
			TOTPSecret: cfg.Backend.Dev.TOTPSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("dev backend: %w", err)
		}
		return bridge, nil
	case config.BackendModeHTTP:
		bridge, err := httpbridge.NewBridge(httpbridge.Config{
			BaseURL:   cfg.Backend.HTTP.BaseURL,
			Timeout:   cfg.Backend.HTTP.Timeout,
			UserAgent: cfg.Backend.HTTP.UserAgent,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("http bridge: %w", err)
		}
		return bridge, nil
	default:
		return nil, fmt.Errorf("unknown backend mode %q", cfg.Backend.Mode)
	}
}

//nolint:ireturn // callers depend on the port, not the concrete store.
func buildStore(cfg config.AppConfig, stack *SessionStack) (ports.CredentialStore, error) {
	switch cfg.Store.Mode {
	case config.StoreModeRedis:
		client, err := connectRedis(cfg.Store.Redis)
		if err != nil {
			return nil, err
		}
		stack.closers = append(stack.closers, client.Close)
		return redisstore.NewStoreWithGrace(client, cfg.Store.Redis.OwnerKey, cfg.Store.Redis.RefreshGrace), nil
	case config.StoreModeFile:
		path := cfg.Store.File.Path
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("resolve config dir: %w", err)
			}
			path = filepath.Join(dir, "sessioncore", "credentials.json")
		}
		store, err := filestore.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store mode %q", cfg.Store.Mode)
	}
}

func connectRedis(cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		closeErr := client.Close()
		return nil, errors.Join(fmt.Errorf("redis ping %s: %w", cfg.Addr, err), closeErr)
	}
	return client, nil
}
