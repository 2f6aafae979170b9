package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"kernelboard/internal/component"
	"kernelboard/internal/config"
	"kernelboard/internal/db"
	"kernelboard/internal/gate"
	"kernelboard/internal/logger"
	"kernelboard/internal/queue"
	"kernelboard/internal/runner"
	"kernelboard/internal/runner/actions"
	"kernelboard/internal/runner/docker"
	"kernelboard/internal/runner/serverless"
	"kernelboard/internal/tracer"
	"kernelboard/internal/web"
	"kernelboard/model"
)

func buildRunners(cfg *config.RunnerConfig) (*runner.Registry, error) {
	registry := runner.NewRegistry()

	if cfg.CI_DISPATCH_URL != "" {
		r, err := actions.NewRunner(cfg)
		if err != nil {
			return nil, err
		}
		registry.Register(model.BackendCI, r)
	}
	if cfg.SERVERLESS_URL != "" {
		r, err := serverless.NewRunner(cfg)
		if err != nil {
			return nil, err
		}
		registry.Register(model.BackendServerless, r)
	}
	if cfg.CONTAINER_IMAGE != "" {
		r, err := docker.NewRunner(cfg)
		if err != nil {
			return nil, err
		}
		registry.Register(model.BackendContainer, r)
	}

	return registry, nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	config.LoadDotEnv()
	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger.Init(cfg.SERVICE_NAME)

	if cfg.TRACE_URL != "" {
		shutdownTracer := tracer.InitTracer(ctx, cfg.SERVICE_NAME, cfg.TRACE_URL)
		defer shutdownTracer()
	}

	dbClient, err := db.New(ctx)
	if err != nil {
		log.Fatalf("database initialization error: %v", err)
	}
	if err := dbClient.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema error: %v", err)
	}

	cacheClient, err := component.GetCache(ctx, cfg.CACHE_TYPE)
	if err != nil {
		log.Fatalf("cache initialization error: %v", err)
	}

	storageClient, err := component.GetStorage(cfg.STORAGE_TYPE)
	if err != nil {
		log.Fatalf("storage initialization error: %v", err)
	}

	queueClient, err := component.GetQueue(cfg.QUEUE_TYPE)
	if err != nil {
		log.Fatalf("queue initialization error: %v", err)
	}

	// audit trail for persisted submissions
	err = queueClient.SubscribeEvent(queue.SubmissionCreated, func(payload []byte) error {
		logger.Log.Info().RawJSON("event", payload).Msg("submission recorded")
		return nil
	})
	if err != nil {
		log.Fatalf("queue subscription error: %v", err)
	}

	runnerCfg, err := config.GetRunnerConfig()
	if err != nil {
		log.Fatalf("runner config error: %v", err)
	}
	runners, err := buildRunners(runnerCfg)
	if err != nil {
		log.Fatalf("runner initialization error: %v", err)
	}

	gateCfg, err := config.GetGateConfig()
	if err != nil {
		log.Fatalf("gate config error: %v", err)
	}
	gates := gate.NewRegistry(time.Duration(gateCfg.TIMEOUT_SECONDS) * time.Second)

	server := web.NewServer(dbClient, runners, gates, storageClient, queueClient, cacheClient)

	srv := &http.Server{
		Addr:              ":" + cfg.API_PORT,
		Handler:           server.Router(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("HTTP server started on :%s", cfg.API_PORT)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	cancel()
	log.Println("trying to shutdown server gracefully...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Graceful shutdown failed: %v", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup

	shutdown := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	shutdown(dbClient.ShutDown)
	shutdown(cacheClient.ShutDown)
	shutdown(storageClient.ShutDown)
	shutdown(queueClient.ShutDown)

	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info().Msg("server shutdown gracefully.")
	case <-ctx.Done():
		logger.Log.Info().Msg("server graceful shutdown timedout..")
	}
}
