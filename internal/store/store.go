// Package store keeps hot execution snapshots in Redis. It backs the polling
// path and the dashboard; the durable record lives in the Postgres
// repository.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brandlens/brandlens/internal/aggregate"
	"github.com/brandlens/brandlens/internal/diagnosis"
	"github.com/brandlens/brandlens/internal/task"
	"github.com/redis/go-redis/v9"
)

const (
	statesKey   = "executions"
	outcomesKey = "execution_outcomes"
	resultsKey  = "execution_results"
)

type Store struct {
	client *redis.Client
}

func NewStore(redisAddr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) SaveState(ctx context.Context, state diagnosis.ExecutionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return s.client.HSet(ctx, statesKey, state.ExecutionID, string(data)).Err()
}

// GetState returns nil without an error when the execution is unknown.
func (s *Store) GetState(ctx context.Context, executionID string) (*diagnosis.ExecutionState, error) {
	data, err := s.client.HGet(ctx, statesKey, executionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state diagnosis.ExecutionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}

	return &state, nil
}

func (s *Store) GetAllStates(ctx context.Context) ([]diagnosis.ExecutionState, error) {
	stateMap, err := s.client.HGetAll(ctx, statesKey).Result()
	if err != nil {
		return nil, err
	}

	states := make([]diagnosis.ExecutionState, 0, len(stateMap))
	for _, data := range stateMap {
		var state diagnosis.ExecutionState
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			continue
		}
		states = append(states, state)
	}

	return states, nil
}

func (s *Store) SaveOutcomes(ctx context.Context, executionID string, outcomes []task.Outcome) error {
	data, err := json.Marshal(outcomes)
	if err != nil {
		return err
	}

	return s.client.HSet(ctx, outcomesKey, executionID, string(data)).Err()
}

func (s *Store) GetOutcomes(ctx context.Context, executionID string) ([]task.Outcome, error) {
	data, err := s.client.HGet(ctx, outcomesKey, executionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var outcomes []task.Outcome
	if err := json.Unmarshal([]byte(data), &outcomes); err != nil {
		return nil, err
	}

	return outcomes, nil
}

func (s *Store) SaveResult(ctx context.Context, executionID string, result aggregate.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.client.HSet(ctx, resultsKey, executionID, string(data)).Err()
}

// GetResult returns nil without an error when no result has been stored yet.
func (s *Store) GetResult(ctx context.Context, executionID string) (*aggregate.Result, error) {
	data, err := s.client.HGet(ctx, resultsKey, executionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result aggregate.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
