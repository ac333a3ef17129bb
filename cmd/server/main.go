package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/brandlens/brandlens/internal/api"
	"github.com/brandlens/brandlens/internal/breaker"
	"github.com/brandlens/brandlens/internal/config"
	"github.com/brandlens/brandlens/internal/diagnosis"
	"github.com/brandlens/brandlens/internal/engine"
	"github.com/brandlens/brandlens/internal/matrix"
	"github.com/brandlens/brandlens/internal/notify"
	"github.com/brandlens/brandlens/internal/platform"
	"github.com/brandlens/brandlens/internal/repository/postgres"
	"github.com/brandlens/brandlens/internal/store"
	"github.com/brandlens/brandlens/internal/timeout"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const perplexityBaseURL = "https://api.perplexity.ai"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	s, err := store.NewStore(cfg.RedisAddr)
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("failed to close store: %v", err)
		}
	}()

	adapters := buildAdapters(cfg)
	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	timeouts := timeout.NewCalculator(timeout.Config{Default: cfg.TaskTimeout})
	e := engine.New(adapters, breakers, timeouts, engine.Config{
		Workers:      cfg.Workers,
		BatchTimeout: cfg.BatchTimeout,
	})

	var history diagnosis.History
	if cfg.PostgresDSN != "" {
		repo, err := postgres.NewExecutionRepository(cfg.PostgresDSN)
		if err != nil {
			log.Fatal(err)
		}

		defer func() {
			if err := repo.Close(); err != nil {
				log.Printf("failed to close Postgres repository: %v", err)
			}
		}()

		history = repo
	} else {
		log.Println("POSTGRES_DSN is not set; running without durable execution history")
	}

	service := diagnosis.NewService(matrix.NewBuilder(adapters.Platforms()), e, s, history)

	if cfg.NotificationsEnabled() {
		service.SetNotifier(notify.NewEmailNotifier(notify.EmailConfig{
			APIKey:      cfg.EmailAPIKey,
			FromName:    cfg.EmailFromName,
			FromAddress: cfg.EmailFromAddress,
			To:          cfg.EmailTo,
		}))
	}

	apiHandler := api.NewAPI(service, s)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", apiHandler)

	go startMetricsCollector(breakers, s)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		log.Printf("Connected to Redis at %s", cfg.RedisAddr)
		log.Printf("Platforms: %v", adapters.Platforms())

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	if err := server.Close(); err != nil {
		log.Printf("failed to close server: %v", err)
	}
}

func buildAdapters(cfg config.Config) *platform.Registry {
	adapters := platform.NewRegistry()

	if cfg.OpenAIAPIKey != "" {
		adapter, err := platform.NewOpenAIAdapter(platform.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			log.Fatal(err)
		}
		adapters.Register("openai", adapter)
	}

	// Perplexity exposes an OpenAI-compatible chat completions API.
	if cfg.PerplexityAPIKey != "" {
		adapter, err := platform.NewOpenAIAdapter(platform.OpenAIConfig{
			APIKey:  cfg.PerplexityAPIKey,
			Model:   cfg.PerplexityModel,
			BaseURL: perplexityBaseURL,
		})
		if err != nil {
			log.Fatal(err)
		}
		adapters.Register("perplexity", adapter)
	}

	if len(adapters.Platforms()) == 0 {
		log.Fatal("no AI platforms configured; set OPENAI_API_KEY or PERPLEXITY_API_KEY")
	}

	return adapters
}

