package searcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_OnlyNewestTriggerRuns(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var ran atomic.Int32
	var last atomic.Int32
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		n := int32(i)
		d.Trigger(ctx, func(context.Context) {
			ran.Add(1)
			last.Store(n)
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), ran.Load(), "only the last trigger should fire")
	assert.Equal(t, int32(5), last.Load())
}

func TestDebouncer_SupersededRunIsCancelled(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Stop()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	ctx := context.Background()

	d.Trigger(ctx, func(runCtx context.Context) {
		close(started)
		select {
		case <-runCtx.Done():
			close(cancelled)
		case <-time.After(2 * time.Second):
		}
	})

	<-started
	// The first run is in flight; a new trigger must cancel its context.
	d.Trigger(ctx, func(context.Context) {})

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("superseded run was not cancelled")
	}
}

func TestDebouncer_StopPreventsPendingRun(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var ran atomic.Bool
	d.Trigger(context.Background(), func(context.Context) {
		ran.Store(true)
	})
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, ran.Load())

	// Triggers after Stop are ignored.
	d.Trigger(context.Background(), func(context.Context) {
		ran.Store(true)
	})
	time.Sleep(60 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestDebouncer_ParentContextCancellation(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	d.Trigger(ctx, func(runCtx context.Context) {
		if runCtx.Err() == nil {
			ran.Store(true)
		}
	})
	cancel()

	time.Sleep(40 * time.Millisecond)
	assert.False(t, ran.Load(), "cancelled parent context must not deliver")
}
