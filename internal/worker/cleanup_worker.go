package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"portfoliohub/internal/app"
)

// CleanupWorker runs the expired-session sweep on an interval. Deployments
// that drive cleanup from an external scheduler via the endpoint disable it
// in config.
type CleanupWorker struct {
	service  *app.CleanupService
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCleanupWorker(service *app.CleanupService, interval time.Duration) *CleanupWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupWorker{
		service:  service,
		interval: interval,
	}
}

func (w *CleanupWorker) Start(ctx context.Context) {
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
				result, err := w.service.Run(workerCtx)
				if err != nil {
					log.Printf("scheduled cleanup failed: %v", err)
					continue
				}
				if result.DeletedSessions > 0 {
					log.Printf("scheduled cleanup: %d sessions deleted, %d vector batches processed",
						result.DeletedSessions, result.VectorBatches)
				}
			}
		}
	}()
}

func (w *CleanupWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
