package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/neuroflow/service-core/internal/auth"
	"github.com/ovaphlow/neuroflow/service-core/internal/chatbot"
	"github.com/ovaphlow/neuroflow/service-core/internal/facematch"
	"github.com/ovaphlow/neuroflow/service-core/internal/habit"
	habitrepo "github.com/ovaphlow/neuroflow/service-core/internal/habit/repo"
	"github.com/ovaphlow/neuroflow/service-core/internal/routine"
	routinerepo "github.com/ovaphlow/neuroflow/service-core/internal/routine/repo"
	"github.com/ovaphlow/neuroflow/service-core/internal/router"
	"github.com/ovaphlow/neuroflow/service-core/internal/throttle"
	"github.com/ovaphlow/neuroflow/service-core/internal/user"
	userrepo "github.com/ovaphlow/neuroflow/service-core/internal/user/repo"
	"github.com/ovaphlow/neuroflow/service-core/pkg/database"
	"github.com/ovaphlow/neuroflow/service-core/pkg/utilities"
)

type serverConfig struct {
	Addr             string
	FaceLoginTimeout time.Duration
	ShutdownTimeout  time.Duration
}

func serverConfigFromEnv() (serverConfig, error) {
	cfg := serverConfig{Addr: os.Getenv("HTTP_ADDR"), FaceLoginTimeout: 5 * time.Second, ShutdownTimeout: 10 * time.Second}
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:5001"
	}
	if v := os.Getenv("FACE_LOGIN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("FACE_LOGIN_TIMEOUT: %w", err)
		}
		cfg.FaceLoginTimeout = d
	}
	return cfg, nil
}

func main() {
	// best-effort: real env wins when no .env exists
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	if err := run(sugar); err != nil {
		sugar.Errorw("fatal", "err", err)
		_ = lg.Sync()
		os.Exit(1)
	}
}

func run(sugar *zap.SugaredLogger) error {
	sugar.Info("starting neuroflow service-core")
	started := time.Now()

	srvCfg, err := serverConfigFromEnv()
	if err != nil {
		return err
	}
	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(authCfg)
	if err != nil {
		return err
	}
	matchCfg, err := facematch.ConfigFromEnv()
	if err != nil {
		return err
	}
	matcher, err := facematch.NewMatcher(matchCfg)
	if err != nil {
		return err
	}
	chatCfg, err := chatbot.ConfigFromEnv()
	if err != nil {
		return err
	}
	throttleCfg, err := throttle.ConfigFromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	users := userrepo.NewUserRepo(db)
	habits := habitrepo.NewHabitRepo(db)
	routines := routinerepo.NewRoutineRepo(db)
	// habits and routines reference users, so users goes first
	tables := []struct {
		name   string
		ensure func(context.Context) error
	}{
		{"users", users.EnsureTable},
		{"habits", habits.EnsureTable},
		{"routines", routines.EnsureTable},
	}
	for _, t := range tables {
		if err := t.ensure(ctx); err != nil {
			return fmt.Errorf("ensure %s table: %w", t.name, err)
		}
	}

	var limiter throttle.Limiter = throttle.NewMemoryLimiter(throttleCfg.Limit, throttleCfg.Window)
	if throttleCfg.RedisURL != "" {
		rdb, err := throttle.Connect(ctx, throttleCfg.RedisURL)
		if err != nil {
			sugar.Warnw("redis unavailable, using in-process login throttle", "err", err)
		} else {
			defer rdb.Close()
			limiter = throttle.NewRedisLimiter(rdb, throttleCfg.Limit, throttleCfg.Window)
			sugar.Infow("login throttle backed by redis")
		}
	}

	var gen chatbot.Generator
	if chatCfg.Enabled() {
		gen = chatbot.NewOpenAIGenerator(chatCfg)
		sugar.Infow("chatbot generation enabled", "model", chatCfg.Model)
	}

	userSvc := user.NewService(users, matcher, nil)
	userSvc.LoadTimeout = srvCfg.FaceLoginTimeout

	handler := router.RegisterRoutes(router.Deps{
		Logger:       sugar,
		Tokens:       tokens,
		Users:        user.NewHandler(userSvc, tokens, sugar),
		Habits:       habit.NewHandler(habit.NewService(habits), sugar),
		Routines:     routine.NewHandler(routine.NewService(routines), sugar),
		Chatbot:      chatbot.NewHandler(chatbot.NewService(gen, sugar), sugar),
		LoginLimiter: limiter,
		DBReady:      dbReady(db),
		CORS:         router.CORSConfigFromEnv(),
		Started:      started,
	})
	srv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("http server listening", "addr", srvCfg.Addr,
			"face_threshold", matcher.Threshold(), "face_dimensions", matcher.Dimensions())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	sugar.Info("shutting down")
	doneCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnw("http server shutdown failed", "err", err)
	}
	sugar.Info("goodbye")
	return nil
}

func dbReady(db *sqlx.DB) router.Pinger {
	return func(ctx context.Context) bool {
		return database.Ready(ctx, db, 2*time.Second)
	}
}
