package worker

import (
	"context"
	"log/slog"
	"time"

	"em-backend/internal/usecase"
)

const (
	jobTimeout     = 120 * time.Second
	initialBackoff = 1 * time.Second
	maxBackoff     = 5 * time.Minute
)

// IngestWorker polls the ingest job queue and embeds queued documents. Poll
// errors back off exponentially; an empty queue polls at the base interval.
type IngestWorker struct {
	ingest       *usecase.IngestDocumentsUsecase
	pollInterval time.Duration
	logger       *slog.Logger
	stopChan     chan struct{}
	backoff      time.Duration
}

func NewIngestWorker(ingest *usecase.IngestDocumentsUsecase, pollInterval time.Duration, logger *slog.Logger) *IngestWorker {
	return &IngestWorker{
		ingest:       ingest,
		pollInterval: pollInterval,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

func (w *IngestWorker) Start() {
	w.logger.Info("starting ingest worker", "poll_interval", w.pollInterval.String())
	go w.run()
}

func (w *IngestWorker) Stop() {
	w.logger.Info("stopping ingest worker")
	close(w.stopChan)
}

func (w *IngestWorker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.poll()
			if w.backoff > 0 {
				ticker.Reset(w.backoff)
			} else {
				ticker.Reset(w.pollInterval)
			}
		}
	}
}

// poll drains the queue until it is empty or a queue error occurs.
func (w *IngestWorker) poll() {
	for {
		select {
		case <-w.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		processed, err := w.ingest.ProcessNextJob(ctx)
		cancel()

		if err != nil {
			w.backoff = w.nextBackoff(w.backoff)
			w.logger.Error("job queue poll failed, backing off",
				"backoff", w.backoff.String(),
				"error", err.Error())
			return
		}
		w.backoff = 0
		if !processed {
			return
		}
	}
}

func (w *IngestWorker) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
