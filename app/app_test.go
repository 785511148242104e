package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	mu       sync.Mutex
	startErr error
	started  bool
	stopped  bool
}

func (s *fakeServer) Start(ctx context.Context) error {
	s.mu.Lock()
	s.started = true
	err := s.startErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (s *fakeServer) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeServer) state() (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.stopped
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunContext_StopsOnCancel(t *testing.T) {
	srv := &fakeServer{}
	var order []string
	a := New("test", quietLogger(),
		WithServer(srv),
		WithCleanup(func() { order = append(order, "first") }),
		WithCleanup(func() { order = append(order, "second") }),
		WithShutdownTimeout(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.RunContext(ctx) }()

	require.Eventually(t, func() bool {
		started, _ := srv.state()
		return started
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunContext did not return after cancel")
	}
	_, stopped := srv.state()
	assert.True(t, stopped)
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestRunContext_ServerFailure(t *testing.T) {
	boom := errors.New("listen: address already in use")
	failing := &fakeServer{startErr: boom}
	healthy := &fakeServer{}
	cleaned := false
	a := New("test", quietLogger(), WithServer(failing, healthy), WithCleanup(func() { cleaned = true }))

	err := a.RunContext(context.Background())
	require.ErrorIs(t, err, boom)
	_, stopped := healthy.state()
	assert.True(t, stopped)
	assert.True(t, cleaned)
}
