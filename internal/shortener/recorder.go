package shortener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tinylink/tinylink/internal/models"
)

const flushTimeout = 5 * time.Second

// Event is one access to a short code, queued for asynchronous persistence.
// TrackClick marks events originating from a cache hit, whose click counter
// increment still has to reach the store.
type Event struct {
	ShortCode  string
	VisitorIP  string
	UserAgent  string
	Referrer   string
	TrackClick bool
	At         time.Time
}

// RecorderStore is the slice of the repository the recorder needs.
type RecorderStore interface {
	InsertEvents(ctx context.Context, events []models.AccessEvent) error
	AddClicks(ctx context.Context, shortCode string, n int64) error
}

// Recorder persists access events off the request path. Events flow through
// a bounded queue into a worker pool that batches inserts; when the queue is
// full events are dropped, since losing an analytics row must never slow or
// fail a redirect. Run drains the queue on shutdown.
type Recorder struct {
	store      RecorderStore
	logger     *slog.Logger
	queue      chan Event
	workers    int
	batchSize  int
	flushEvery time.Duration
}

func NewRecorder(store RecorderStore, logger *slog.Logger, queueSize, workers, batchSize int, flushEvery time.Duration) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}

	return &Recorder{
		store:      store,
		logger:     logger,
		queue:      make(chan Event, queueSize),
		workers:    workers,
		batchSize:  batchSize,
		flushEvery: flushEvery,
	}
}

// Record enqueues an event without blocking. Events are dropped when the
// queue is full.
func (r *Recorder) Record(ev Event) {
	select {
	case r.queue <- ev:
	default:
		r.logger.Warn("event queue full, dropping access event", slog.String("short_code", ev.ShortCode))
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// worker has flushed its remaining batch.
func (r *Recorder) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.work(ctx)
		}()
	}

	wg.Wait()
	return nil
}

func (r *Recorder) work(ctx context.Context) {
	batch := make([]Event, 0, r.batchSize)
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-r.queue:
			batch = append(batch, ev)
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Drain whatever was queued before shutdown.
			for {
				select {
				case ev := <-r.queue:
					batch = append(batch, ev)
				default:
					if len(batch) > 0 {
						r.flush(batch)
					}
					return
				}
			}
		}
	}
}

// flush persists a batch. It runs on a fresh context: the request that
// produced the events is long gone, and shutdown draining must still be able
// to write.
func (r *Recorder) flush(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	events := make([]models.AccessEvent, len(batch))
	clicks := make(map[string]int64)

	for i, ev := range batch {
		events[i] = models.AccessEvent{
			ShortCode: ev.ShortCode,
			VisitorIP: ev.VisitorIP,
			UserAgent: ev.UserAgent,
			Referrer:  ev.Referrer,
			CreatedAt: ev.At,
		}
		if ev.TrackClick {
			clicks[ev.ShortCode]++
		}
	}

	if err := r.store.InsertEvents(ctx, events); err != nil {
		r.logger.Error("failed to persist access events", slog.Int("count", len(events)), slog.Any("err", err))
	}

	for shortCode, n := range clicks {
		if err := r.store.AddClicks(ctx, shortCode, n); err != nil {
			r.logger.Error("failed to add clicks", slog.String("short_code", shortCode), slog.Any("err", err))
		}
	}
}
