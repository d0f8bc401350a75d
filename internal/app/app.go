package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/stampdesk/stampdesk/internal/cards"
	"github.com/stampdesk/stampdesk/internal/config"
	"github.com/stampdesk/stampdesk/internal/db"
	"github.com/stampdesk/stampdesk/internal/http/api/front"
	"github.com/stampdesk/stampdesk/internal/ledger"
	"github.com/stampdesk/stampdesk/internal/notify"
	"github.com/stampdesk/stampdesk/internal/ratelimit"
	"github.com/stampdesk/stampdesk/internal/resilience"
	"github.com/stampdesk/stampdesk/internal/settings"
)

// AppConfig holds process-level inputs.
type AppConfig struct {
	ConfigPath string
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg AppConfig) error {
	conf, errLoad := config.Load(config.ResolveConfigPath(cfg.ConfigPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(conf.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the loyalty API server with database-backed components.
func RunServer(ctx context.Context, cfg AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	conf, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	config.SetupLogging(conf.Logging)

	conn, errOpen := db.Open(conf.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		log.WithError(errRefresh).Warn("load settings snapshot failed")
	}

	limiter := ratelimit.New(conf.RateLimitPolicies())
	for op, policy := range settings.RateLimitOverrides() {
		limiter.SetPolicy(op, policy)
	}

	breaker := resilience.NewBreaker(breakerThreshold(conf.Resilience), breakerCoolDown(conf.Resilience))
	exec := resilience.New(executorConfig(conf.Resilience), breaker)

	var rdb *redis.Client
	if conf.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
	}
	fanout := notify.NewFanout(conn, rdb, conf.Redis.Channel)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	front.RegisterFrontRoutes(engine, front.Deps{
		DB:       conn,
		JWT:      conf.JWT,
		Limiter:  limiter,
		Resolver: cards.NewResolver(conn, exec),
		Ledger:   ledger.New(conn, exec),
		Fanout:   fanout,
	})

	addr := fmt.Sprintf("%s:%d", conf.Server.Host, conf.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting stampdesk on %s config=%s", addr, configPath)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// executorConfig builds the retry configuration, using defaults for
// anything the config leaves at zero.
func executorConfig(rc config.ResilienceConfig) resilience.Config {
	out := resilience.DefaultConfig()
	if rc.MaxRetries > 0 {
		out.MaxRetries = rc.MaxRetries
	}
	if rc.InitialDelayMS > 0 {
		out.InitialDelay = time.Duration(rc.InitialDelayMS) * time.Millisecond
	}
	if rc.MaxDelayMS > 0 {
		out.MaxDelay = time.Duration(rc.MaxDelayMS) * time.Millisecond
	}
	if rc.PerCallTimeoutMS > 0 {
		out.PerCallTimeout = time.Duration(rc.PerCallTimeoutMS) * time.Millisecond
	}
	return out
}

func breakerThreshold(rc config.ResilienceConfig) int {
	if rc.BreakerThreshold > 0 {
		return rc.BreakerThreshold
	}
	return resilience.DefaultBreakerThreshold
}

func breakerCoolDown(rc config.ResilienceConfig) time.Duration {
	if rc.BreakerCoolDownSecs > 0 {
		return time.Duration(rc.BreakerCoolDownSecs) * time.Second
	}
	return resilience.DefaultBreakerCoolDown
}
