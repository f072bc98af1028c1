// Command stepflowd serves the flow execution engine over HTTP.
//
// Flow definitions are loaded from a directory of JSON files, one per
// agent, named <agent_id>.json. The checkpoint store and conversation
// locker backends are selected in the YAML config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kataras/golog"
	"github.com/redis/go-redis/v9"

	"github.com/stepflowhq/stepflow/engine"
	"github.com/stepflowhq/stepflow/flow"
	"github.com/stepflowhq/stepflow/llm/openai"
	"github.com/stepflowhq/stepflow/lock"
	"github.com/stepflowhq/stepflow/log"
	"github.com/stepflowhq/stepflow/server"
	"github.com/stepflowhq/stepflow/store"
	memorystore "github.com/stepflowhq/stepflow/store/memory"
	postgresstore "github.com/stepflowhq/stepflow/store/postgres"
	redisstore "github.com/stepflowhq/stepflow/store/redis"
	sqlitestore "github.com/stepflowhq/stepflow/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	log.SetDefaultLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("stepflowd: %v", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *log.GologLogger {
	gl := golog.New()
	gl.SetPrefix("[stepflow] ")
	logger := log.NewGologLogger(gl)
	switch level {
	case "debug":
		logger.SetLevel(log.LogLevelDebug)
	case "warn":
		logger.SetLevel(log.LogLevelWarn)
	case "error":
		logger.SetLevel(log.LogLevelError)
	case "none":
		logger.SetLevel(log.LogLevelNone)
	default:
		logger.SetLevel(log.LogLevelInfo)
	}
	return logger
}

func run(cfg *Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, err := buildLocker(cfg)
	if err != nil {
		return err
	}

	flows := flow.NewDirRegistry(cfg.FlowsDir)

	opts := []engine.Option{engine.WithLogger(logger)}
	if cfg.CollaboratorTimeout > 0 {
		opts = append(opts, engine.WithCollaboratorTimeout(cfg.CollaboratorTimeout.Std()))
	}
	if client := buildLLM(cfg, logger); client != nil {
		opts = append(opts, engine.WithLLM(client))
	}

	eng := engine.New(flows, st, locker, opts...)
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.New(eng, logger).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s (store=%s, lock=%s)", cfg.Listen, cfg.Store.Backend, cfg.Lock.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildStore(ctx context.Context, cfg *Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return memorystore.New(), func() {}, nil
	case "redis":
		rc := cfg.Store.Redis
		s := redisstore.New(redisstore.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			Prefix:   rc.Prefix,
			TTL:      rc.TTL.Std(),
		})
		return s, func() {}, nil
	case "sqlite":
		sc := cfg.Store.SQLite
		s, err := sqlitestore.New(sqlitestore.Options{
			Path:        sc.Path,
			TablePrefix: sc.TablePrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		pc := cfg.Store.Postgres
		s, err := postgresstore.New(ctx, postgresstore.Options{
			ConnString:  pc.ConnString,
			TablePrefix: pc.TablePrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func buildLocker(cfg *Config) (lock.Locker, error) {
	switch cfg.Lock.Backend {
	case "", "memory":
		return lock.NewMemoryLocker(), nil
	case "redis":
		rc := cfg.Lock.Redis
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		return lock.NewRedisLocker(client, rc.Prefix, rc.TTL.Std()), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend)
	}
}

// buildLLM returns nil when no API key is available; ai nodes then fail
// as collaborator errors rather than blocking startup.
func buildLLM(cfg *Config, logger log.Logger) *openai.Client {
	if cfg.LLM.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
		logger.Warn("no LLM API key configured; ai nodes will be unavailable")
		return nil
	}
	var opts []openai.Option
	if cfg.LLM.APIKey != "" {
		opts = append(opts, openai.WithAPIKey(cfg.LLM.APIKey))
	}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	if cfg.LLM.Model != "" {
		opts = append(opts, openai.WithDefaultModel(cfg.LLM.Model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		logger.Warn("llm client unavailable: %v", err)
		return nil
	}
	return client
}
