package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJanitor_RunOnce(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var ran []string
	janitor := NewJanitor(logger, time.Minute,
		PruneTask{Name: "first", Run: func(context.Context) (int64, error) {
			ran = append(ran, "first")
			return 0, errors.New("boom")
		}},
		PruneTask{Name: "second", Run: func(context.Context) (int64, error) {
			ran = append(ran, "second")
			return 3, nil
		}},
	)

	janitor.RunOnce(context.Background())

	assert.Equal(t, []string{"first", "second"}, ran, "a failing task does not stop the rest")
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	calls := make(chan struct{}, 10)

	janitor := NewJanitor(logger, 5*time.Millisecond, PruneTask{Name: "tick", Run: func(context.Context) (int64, error) {
		calls <- struct{}{}
		return 1, nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		janitor.Run(ctx)
		close(done)
	}()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("janitor never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestJanitor_NoTasks(t *testing.T) {
	janitor := NewJanitor(slog.New(slog.NewTextHandler(io.Discard, nil)), time.Millisecond)

	done := make(chan struct{})
	go func() {
		janitor.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately without tasks")
	}
}
