package main

import (
	"context"
	"log"
	"time"

	"github.com/brandlens/brandlens/internal/breaker"
	"github.com/brandlens/brandlens/internal/metrics"
	"github.com/brandlens/brandlens/internal/store"
)

func startMetricsCollector(breakers *breaker.Registry, s *store.Store) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		updateBreakerMetrics(breakers)
		updateExecutionMetrics(s)
	}
}

func updateBreakerMetrics(breakers *breaker.Registry) {
	for _, snapshot := range breakers.Snapshots() {
		metrics.UpdateBreakerState(snapshot.Platform, string(snapshot.State))
	}
}

func updateExecutionMetrics(s *store.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	states, err := s.GetAllStates(ctx)
	if err != nil {
		log.Printf("Failed to get execution states for metrics: %v", err)
		return
	}

	byStage := make(map[string]int)
	for _, state := range states {
		byStage[string(state.Stage)]++
	}

	metrics.UpdateExecutionsByStage(byStage)
}
