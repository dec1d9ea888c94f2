package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/bookly/internal/authkit"
	"github.com/tyemirov/bookly/internal/catalog"
	"github.com/tyemirov/bookly/internal/mailer"
	"github.com/tyemirov/bookly/internal/web"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var runMailWorker = func(worker *mailer.Worker) error {
	return worker.Run()
}

var notifyShutdownSignals = func(signals chan<- os.Signal) {
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
}

const shutdownGracePeriod = 10 * time.Second

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "bookly",
		Short:   "Book catalog API with password login, rotating refresh sessions, and token revocation",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("api_prefix", "/api/v1", "Path prefix for all API routes")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access tokens and emailed links")
	rootCmd.Flags().Duration("access_token_ttl", authkit.DefaultAccessTokenTTL, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", authkit.DefaultRefreshTTL, "Refresh session TTL")
	rootCmd.Flags().Duration("action_token_ttl", authkit.DefaultActionTokenTTL, "Lifetime of verification and password reset links")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().String("database_url", "sqlite://file::memory:?cache=shared", "Credential store URL (postgres:// or sqlite://)")
	rootCmd.Flags().String("revocation_url", "", "Refresh session and denylist store (redis://, postgres://, sqlite://; empty for in-memory)")
	rootCmd.Flags().Duration("purge_interval", 10*time.Minute, "How often SQL revocation stores drop expired rows")
	rootCmd.Flags().String("public_base_url", "http://localhost:8080/api/v1", "Base URL used in emailed links")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	rootCmd.PersistentFlags().String("queue_redis_url", "", "Redis URL for the mail queue; empty delivers in-process")
	rootCmd.PersistentFlags().String("smtp_host", "", "SMTP host; empty logs mail instead of sending")
	rootCmd.PersistentFlags().Int("smtp_port", 587, "SMTP port")
	rootCmd.PersistentFlags().String("smtp_username", "", "SMTP username")
	rootCmd.PersistentFlags().String("smtp_password", "", "SMTP password")
	rootCmd.PersistentFlags().String("mail_from", "", "Sender address for outgoing mail")
	rootCmd.PersistentFlags().String("mail_from_name", "Bookly", "Sender display name for outgoing mail")

	for _, key := range []string{
		"listen_addr", "api_prefix", "cookie_domain", "jwt_signing_key", "access_token_ttl", "refresh_ttl",
		"action_token_ttl", "dev_insecure_http", "database_url", "revocation_url", "purge_interval",
		"public_base_url", "enable_cors", "cors_allowed_origins",
	} {
		_ = viper.BindPFlag(key, rootCmd.Flags().Lookup(key))
	}
	for _, key := range []string{
		"queue_redis_url", "smtp_host", "smtp_port", "smtp_username", "smtp_password", "mail_from", "mail_from_name",
	} {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newWorkerCommand())
	return rootCmd
}

func newWorkerCommand() *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued verification and password reset emails",
		RunE:  runWorker,
	}
	workerCmd.Flags().Int("worker_concurrency", 4, "Number of concurrent deliveries")
	_ = viper.BindPFlag("worker_concurrency", workerCmd.Flags().Lookup("worker_concurrency"))
	return workerCmd
}

const (
	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidAccessTokenTTL   = "config.invalid_access_token_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeInvalidActionTokenTTL   = "config.invalid_action_token_ttl"
	configCodeMissingQueueRedisURL    = "config.missing_queue_redis_url"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig validates the auth settings read through viper.
func LoadServerConfig() (authkit.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	accessTokenTTL := viper.GetDuration("access_token_ttl")
	if accessTokenTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidAccessTokenTTL, "access_token_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	actionTokenTTL := viper.GetDuration("action_token_ttl")
	if actionTokenTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidActionTokenTTL, "action_token_ttl must be greater than zero")
	}

	sameSiteMode := http.SameSiteStrictMode
	if viper.GetBool("enable_cors") {
		sameSiteMode = http.SameSiteNoneMode
	}

	return authkit.ServerConfig{
		JWTSigningKey:     []byte(jwtSigningKey),
		CookieDomain:      viper.GetString("cookie_domain"),
		RefreshCookieName: authkit.DefaultRefreshCookieName,
		RefreshCookiePath: "/",
		AccessTokenTTL:    accessTokenTTL,
		RefreshTTL:        refreshTTL,
		ActionTokenTTL:    actionTokenTTL,
		PublicBaseURL:     viper.GetString("public_base_url"),
		SameSiteMode:      sameSiteMode,
		AllowInsecureHTTP: viper.GetBool("dev_insecure_http"),
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	startupCtx := context.Background()
	clock := authkit.NewSystemClock()

	catalogStore, catalogErr := catalog.Open(startupCtx, viper.GetString("database_url"))
	if catalogErr != nil {
		return catalogErr
	}
	defer func() { _ = catalogStore.Close() }()
	logger.Info("using credential store", zap.String("driver", catalogStore.Driver()))

	backend, backendErr := openRevocationBackend(startupCtx, viper.GetString("revocation_url"), clock)
	if backendErr != nil {
		return backendErr
	}
	defer func() { _ = backend.Close() }()
	logger.Info("using revocation store", zap.String("driver", backend.driver))

	dispatcher, dispatcherErr := buildMailDispatcher(logger)
	if dispatcherErr != nil {
		return dispatcherErr
	}
	defer func() { _ = dispatcher.Close() }()

	metricsRecorder := authkit.NewCounterMetrics()
	sessions, accounts, servicesErr := buildAuthServices(serverConfig, catalogStore, backend.store, dispatcher, clock, logger, metricsRecorder)
	if servicesErr != nil {
		return servicesErr
	}

	router, routerErr := buildRouter(logger, routerOptions{
		APIPrefix:          viper.GetString("api_prefix"),
		EnableCORS:         viper.GetBool("enable_cors"),
		CORSAllowedOrigins: viper.GetStringSlice("cors_allowed_origins"),
	}, serverConfig, sessions, accounts, catalogStore)
	if routerErr != nil {
		return routerErr
	}

	listenAddr := viper.GetString("listen_addr")
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	purgeDone := make(chan struct{})
	if backend.purge != nil {
		go func() {
			defer close(purgeDone)
			runPurgeLoop(shutdownCtx, logger, backend.purge, viper.GetDuration("purge_interval"))
		}()
	} else {
		close(purgeDone)
	}
	defer func() {
		shutdownCancel()
		<-purgeDone
	}()

	stopSignals := make(chan os.Signal, 1)
	notifyShutdownSignals(stopSignals)
	defer signal.Stop(stopSignals)

	shutdownStarted := make(chan struct{})
	shutdownDone := make(chan struct{})
	go func() {
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		close(shutdownStarted)
		defer close(shutdownDone)
		logger.Info("shutting down", zap.Duration("grace_period", shutdownGracePeriod))
		graceCtx, graceCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr), zap.String("api_prefix", viper.GetString("api_prefix")))
	serveErr := serveHTTP(server)
	if errors.Is(serveErr, http.ErrServerClosed) {
		select {
		case <-shutdownStarted:
			<-shutdownDone
		default:
		}
	}
	logger.Info("auth metrics", zap.Any("counters", metricsRecorder.Snapshot()))
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", serveErr)
	}
	return nil
}

func runWorker(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	queueRedisURL := strings.TrimSpace(viper.GetString("queue_redis_url"))
	if queueRedisURL == "" {
		return configError(configCodeMissingQueueRedisURL, "queue_redis_url must be provided for the worker")
	}
	sender, senderErr := buildMailSender(logger)
	if senderErr != nil {
		return senderErr
	}
	worker, workerErr := mailer.NewWorker(queueRedisURL, sender, logger, viper.GetInt("worker_concurrency"))
	if workerErr != nil {
		return workerErr
	}
	logger.Info("mail worker started", zap.String("queue", mailer.QueueName))
	return runMailWorker(worker)
}

type routerOptions struct {
	APIPrefix          string
	EnableCORS         bool
	CORSAllowedOrigins []string
}

func buildRouter(logger *zap.Logger, options routerOptions, serverConfig authkit.ServerConfig, sessions *authkit.SessionService, accounts *authkit.AccountService, profiles web.ProfileReader) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if options.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, options.CORSAllowedOrigins)
		if corsErr != nil {
			return nil, corsErr
		}
		router.Use(corsMiddleware)
	}

	api := router.Group("/" + strings.Trim(options.APIPrefix, "/"))
	authkit.MountAuthRoutes(api, serverConfig, sessions, accounts)
	api.GET("/auth/me",
		authkit.RequireAccessToken(sessions),
		authkit.RequireRole(sessions, "admin", "user"),
		web.HandleWhoAmI(logger, profiles))
	return router, nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
