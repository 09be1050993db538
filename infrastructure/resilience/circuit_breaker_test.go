package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 2, Timeout: time.Minute, HalfOpenMax: 1})
	failing := errors.New("downstream error")

	require.ErrorIs(t, cb.Execute(context.Background(), func() error { return failing }), failing)
	require.Equal(t, StateClosed, cb.State())

	require.ErrorIs(t, cb.Execute(context.Background(), func() error { return failing }), failing)
	require.Equal(t, StateOpen, cb.State())

	require.ErrorIs(t, cb.Execute(context.Background(), func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 1})

	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("fail") }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerRejectsExcessHalfOpenTrials(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 1})

	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("fail") }))
	time.Sleep(20 * time.Millisecond)

	started := make(chan struct{})
	blocked := make(chan struct{})
	go func() {
		_ = cb.Execute(context.Background(), func() error {
			close(started)
			<-blocked
			return nil
		})
	}()
	<-started

	require.ErrorIs(t, cb.Execute(context.Background(), func() error { return nil }), ErrTooManyRequests)
	close(blocked)
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	var transitions []State
	done := make(chan struct{}, 4)
	cb := New(Config{
		MaxFailures: 1,
		Timeout:     time.Minute,
		HalfOpenMax: 1,
		OnStateChange: func(_, to State) {
			transitions = append(transitions, to)
			done <- struct{}{}
		},
	})

	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("fail") }))
	<-done
	require.Equal(t, []State{StateOpen}, transitions)
}
