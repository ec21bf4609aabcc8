package lookuplog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 2 * time.Second
	drainTimeout         = 5 * time.Second
)

// Publisher buffers entries and writes them to a Sink from a single
// background loop. Record never blocks on the sink.
type Publisher struct {
	sink      Sink
	buffer    *RingBuffer
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
	now       func() time.Time
	wake      chan struct{}
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:      sink,
		buffer:    NewRingBuffer(DefaultBufferSize),
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
		interval:  DefaultFlushInterval,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Record queues e, filling in ID and At when unset.
func (p *Publisher) Record(_ context.Context, e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = p.now()
	}
	p.buffer.Enqueue(e)
	if p.buffer.Len() >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Run flushes on every interval tick or when a full batch is waiting. When
// ctx ends it drains what is left with a short detached deadline and returns.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			err := p.Flush(drainCtx)
			cancel()
			return err
		case <-ticker.C:
		case <-p.wake:
		}
		// Failed batches are logged inside Flush; the loop keeps going.
		_ = p.Flush(ctx)
	}
}

// Flush writes every queued entry in batches. A failed batch is dropped and
// its error returned.
func (p *Publisher) Flush(ctx context.Context) error {
	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return nil
		}
		if err := p.sink.Append(ctx, batch); err != nil {
			p.logger.WarnContext(ctx, "lookup trail append failed",
				"entries", len(batch),
				"error", err,
			)
			return err
		}
	}
}

// Pending reports queued entries not yet flushed.
func (p *Publisher) Pending() int {
	return p.buffer.Len()
}

// Dropped reports entries lost to buffer overflow.
func (p *Publisher) Dropped() int64 {
	return p.buffer.Dropped()
}
