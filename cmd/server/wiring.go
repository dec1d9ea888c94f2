package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tyemirov/bookly/internal/authkit"
	"github.com/tyemirov/bookly/internal/authkitpg"
	"github.com/tyemirov/bookly/internal/mailer"
	"go.uber.org/zap"
)

// revocationBackend is the single store behind both the refresh session and denylist keyspaces.
type revocationBackend struct {
	store  authkit.RevocationStore
	driver string
	purge  func(ctx context.Context) (int64, error)
	close  func() error
}

func (backend revocationBackend) Close() error {
	if backend.close == nil {
		return nil
	}
	return backend.close()
}

func openRevocationBackend(ctx context.Context, revocationURL string, clock authkit.Clock) (revocationBackend, error) {
	trimmed := strings.TrimSpace(revocationURL)
	if trimmed == "" {
		store := authkit.NewMemoryRevocationStore(clock)
		return revocationBackend{store: store, driver: "memory", purge: store.PurgeExpired}, nil
	}
	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil {
		return revocationBackend{}, fmt.Errorf("revocation_store.parse_url: %w", parseErr)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "redis", "rediss":
		store, err := authkit.NewRedisRevocationStore(ctx, trimmed)
		if err != nil {
			return revocationBackend{}, err
		}
		return revocationBackend{store: store, driver: "redis", close: store.Close}, nil
	case "postgres", "postgresql":
		store, err := authkitpg.Open(ctx, trimmed, clock)
		if err != nil {
			return revocationBackend{}, err
		}
		return revocationBackend{store: store, driver: "pgx", purge: store.PurgeExpired, close: store.Close}, nil
	default:
		store, err := authkit.NewDatabaseRevocationStore(ctx, trimmed, clock)
		if err != nil {
			return revocationBackend{}, err
		}
		return revocationBackend{store: store, driver: store.Driver(), purge: store.PurgeExpired, close: store.Close}, nil
	}
}

func runPurgeLoop(ctx context.Context, logger *zap.Logger, purge func(ctx context.Context) (int64, error), interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := purge(ctx)
			if err != nil {
				logger.Warn("revocation purge failed",
					zap.String("code", "revocation_store.purge_failed"),
					zap.Error(err))
				continue
			}
			if purged > 0 {
				logger.Info("revocation entries purged", zap.Int64("count", purged))
			}
		}
	}
}

type closableDispatcher interface {
	mailer.Dispatcher
	Close() error
}

func buildMailSender(logger *zap.Logger) (mailer.Sender, error) {
	smtpHost := strings.TrimSpace(viper.GetString("smtp_host"))
	if smtpHost == "" {
		logger.Warn("smtp_host not set; outgoing mail is logged only",
			zap.String("code", "mailer.log_only"))
		return mailer.NewLogSender(logger), nil
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     smtpHost,
		Port:     viper.GetInt("smtp_port"),
		Username: viper.GetString("smtp_username"),
		Password: viper.GetString("smtp_password"),
		From:     viper.GetString("mail_from"),
		FromName: viper.GetString("mail_from_name"),
	})
}

func buildMailDispatcher(logger *zap.Logger) (closableDispatcher, error) {
	queueRedisURL := strings.TrimSpace(viper.GetString("queue_redis_url"))
	if queueRedisURL != "" {
		dispatcher, err := mailer.NewQueueDispatcher(queueRedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("mail delivery queued", zap.String("queue", mailer.QueueName))
		return dispatcher, nil
	}
	sender, senderErr := buildMailSender(logger)
	if senderErr != nil {
		return nil, senderErr
	}
	logger.Info("mail delivery in-process")
	return mailer.NewInlineDispatcher(sender, logger), nil
}

func buildAuthServices(
	serverConfig authkit.ServerConfig,
	users authkit.UserStore,
	backend authkit.RevocationStore,
	dispatcher mailer.Dispatcher,
	clock authkit.Clock,
	logger *zap.Logger,
	metrics authkit.MetricsRecorder,
) (*authkit.SessionService, *authkit.AccountService, error) {
	tokens, tokensErr := authkit.NewTokenService(serverConfig.JWTSigningKey, serverConfig.AccessTokenTTL, clock)
	if tokensErr != nil {
		return nil, nil, tokensErr
	}
	actions, actionsErr := authkit.NewActionTokenSigner(serverConfig.JWTSigningKey, serverConfig.ActionTokenTTL, clock)
	if actionsErr != nil {
		return nil, nil, actionsErr
	}
	sessions, sessionsErr := authkit.NewSessionService(serverConfig, authkit.SessionDependencies{
		Users:           users,
		Tokens:          tokens,
		RefreshSessions: authkit.NewNamespacedStore(backend, authkit.RefreshSessionNamespace),
		Denylist:        authkit.NewNamespacedStore(backend, authkit.DenylistNamespace),
		Clock:           clock,
		Logger:          logger,
		Metrics:         metrics,
	})
	if sessionsErr != nil {
		return nil, nil, sessionsErr
	}
	accounts, accountsErr := authkit.NewAccountService(serverConfig, authkit.AccountDependencies{
		Users:   users,
		Actions: actions,
		Mail:    dispatcher,
		Logger:  logger,
		Metrics: metrics,
	})
	if accountsErr != nil {
		return nil, nil, accountsErr
	}
	return sessions, accounts, nil
}
