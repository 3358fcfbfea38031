package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fxhistorian/internal/fetch"
)

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	b := NewBreaker(50*time.Millisecond, zap.NewNop(), nil)
	out, err := b.Guard(context.Background(), func(ctx context.Context) (fetch.Outcome, error) {
		return fetch.Outcome{Kind: fetch.OutcomeOK, Body: []byte("x")}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeOK, out.Kind)
}

func TestBreaker_OrdinaryErrorDoesNotTrip(t *testing.T) {
	b := NewBreaker(50*time.Millisecond, zap.NewNop(), nil)
	plain := errors.New("transient glitch")

	_, err := b.Guard(context.Background(), func(ctx context.Context) (fetch.Outcome, error) {
		return fetch.Outcome{}, plain
	})
	assert.ErrorIs(t, err, plain)

	_, err = b.Guard(context.Background(), func(ctx context.Context) (fetch.Outcome, error) {
		return fetch.Outcome{Kind: fetch.OutcomeOK}, nil
	})
	assert.NoError(t, err, "an ordinary error must not count as a breaker-tripping failure")
}

func TestBreaker_PersistentThrottlingTripsAndResets(t *testing.T) {
	b := NewBreaker(30*time.Millisecond, zap.NewNop(), nil)

	_, err := b.Guard(context.Background(), func(ctx context.Context) (fetch.Outcome, error) {
		return fetch.Outcome{}, fetch.ErrPersistentThrottling
	})
	assert.ErrorIs(t, err, fetch.ErrPersistentThrottling)

	_, err = b.Guard(context.Background(), func(ctx context.Context) (fetch.Outcome, error) {
		t.Fatal("fn must not run while the breaker is open")
		return fetch.Outcome{}, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(40 * time.Millisecond)

	out, err := b.Guard(context.Background(), func(ctx context.Context) (fetch.Outcome, error) {
		return fetch.Outcome{Kind: fetch.OutcomeOK}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, fetch.OutcomeOK, out.Kind)
}
