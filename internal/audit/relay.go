package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-sys/inkwell/internal/logging"
	"github.com/inkwell-sys/inkwell/internal/metrics"
)

// Config holds relay settings.
type Config struct {
	// Enabled controls whether records are relayed at all.
	Enabled bool

	// BufferSize is the capacity of the async delivery buffer. A full
	// buffer drops new records rather than blocking the caller.
	BufferSize int

	// MaxAttempts bounds delivery retries per record.
	MaxAttempts int

	// RetryDelay is the pause between delivery attempts.
	RetryDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		BufferSize:  1000,
		MaxAttempts: 3,
		RetryDelay:  time.Second,
	}
}

// Relay accepts audit records on the request path and delivers them in the
// background. Submit never blocks and never returns an error: audit is
// best-effort by contract, and a record is worth less than the operation
// that produced it.
type Relay struct {
	config    Config
	submitter Submitter
	spill     Spill

	recordChan chan Record
	stopOnce   sync.Once
	stopChan   chan struct{}

	// sleep is replaceable so retry tests run without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRelay creates a relay delivering through the given submitter. spill
// may be nil, in which case undeliverable records are logged and lost.
func NewRelay(submitter Submitter, spill Spill, config Config) *Relay {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}

	return &Relay{
		config:     config,
		submitter:  submitter,
		spill:      spill,
		recordChan: make(chan Record, config.BufferSize),
		stopChan:   make(chan struct{}),
		sleep:      sleepCtx,
	}
}

// Submit enqueues a record for delivery. Missing ID and Timestamp are
// filled in. When the buffer is full the record is dropped and counted;
// the caller is never blocked.
func (r *Relay) Submit(ctx context.Context, rec Record) {
	if !r.config.Enabled {
		return
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	select {
	case r.recordChan <- rec:
		metrics.AuditQueueDepth.Set(float64(len(r.recordChan)))
	default:
		metrics.AuditDropped.Inc()
		logging.Ctx(ctx).Warn().Str("record_id", rec.ID).Str("action", rec.Action).Msg("Audit buffer full, dropping record")
	}
}

// Run delivers queued records until the context is canceled, then drains
// what remains. It is run as a supervised service.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case rec := <-r.recordChan:
			metrics.AuditQueueDepth.Set(float64(len(r.recordChan)))
			r.deliver(ctx, rec)
		}
	}
}

// drain attempts delivery of buffered records during shutdown. Each record
// gets one attempt against a short deadline; failures go to the spill.
func (r *Relay) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case rec := <-r.recordChan:
			if err := r.submitter.SubmitAuditRecord(ctx, rec); err != nil {
				r.toSpill(ctx, rec, err)
				continue
			}
			metrics.AuditDelivered.Inc()
		default:
			return
		}
	}
}

// deliver retries a record a bounded number of times, then spills it.
func (r *Relay) deliver(ctx context.Context, rec Record) {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.config.RetryDelay); err != nil {
				r.toSpill(ctx, rec, lastErr)
				return
			}
		}

		err := r.submitter.SubmitAuditRecord(ctx, rec)
		if err == nil {
			metrics.AuditDelivered.Inc()
			return
		}
		lastErr = err
		logging.Warn().Err(err).Str("record_id", rec.ID).Int("attempt", attempt).Msg("Audit delivery attempt failed")
	}

	r.toSpill(ctx, rec, lastErr)
}

func (r *Relay) toSpill(ctx context.Context, rec Record, cause error) {
	if r.spill == nil {
		logging.Error().Err(cause).Str("record_id", rec.ID).Msg("Audit record undeliverable and no spill configured, record lost")
		return
	}

	if err := r.spill.Save(ctx, rec); err != nil {
		logging.Error().Err(err).Str("record_id", rec.ID).Msg("Audit spill write failed, record lost")
		return
	}
	metrics.AuditSpilled.Inc()
	logging.Warn().Err(cause).Str("record_id", rec.ID).Msg("Audit record spilled to local storage")
}

// QueueDepth returns the number of records awaiting delivery.
func (r *Relay) QueueDepth() int {
	return len(r.recordChan)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
