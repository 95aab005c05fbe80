package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2025, 6, 2, 15, 3, 20, 0, time.UTC)

	if got := s.nextTick(now); !got.Equal(time.Date(2025, 6, 2, 15, 5, 0, 0, time.UTC)) {
		t.Fatalf("下一个 bucket 不正确: %s", got)
	}
	onBoundary := time.Date(2025, 6, 2, 15, 5, 0, 0, time.UTC)
	if got := s.nextTick(onBoundary); !got.Equal(onBoundary.Add(5 * time.Minute)) {
		t.Fatalf("整点时应跳到下一个 bucket: %s", got)
	}
	if got := s.bucketStart(now); !got.Equal(time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("bucket 起点不正确: %s", got)
	}
}

func TestWindow(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	bucket := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	from, to := s.Window(bucket)
	if !from.Equal(bucket.Add(-time.Hour)) || !to.Equal(bucket) {
		t.Fatalf("窗口不正确: %s - %s", from, to)
	}
}

func TestRunImmediatelyStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true, RunImmediately: true}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := s.Run(ctx, func(context.Context, time.Time) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
	if calls != 1 {
		t.Fatalf("应立即执行一次, 实际 %d", calls)
	}
}
