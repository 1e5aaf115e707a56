package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"sentigo/internal/artifact"
)

// RetentionSweeper periodically purges artifacts older than maxAge.
type RetentionSweeper struct {
	artifacts *artifact.Store
	interval  time.Duration
	maxAge    time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRetentionSweeper(artifacts *artifact.Store, interval, maxAge time.Duration) *RetentionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionSweeper{
		artifacts: artifacts,
		interval:  interval,
		maxAge:    maxAge,
	}
}

func (w *RetentionSweeper) Start(ctx context.Context) {
	if w.cancel != nil {
		return
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				removed, err := w.artifacts.CleanupOlderThan(workerCtx, w.maxAge)
				if err != nil {
					log.Printf("retention sweep failed: %v", err)
					continue
				}
				if removed > 0 {
					log.Printf("retention sweep removed %d artifacts", removed)
				}
			}
		}
	}()
}

func (w *RetentionSweeper) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
