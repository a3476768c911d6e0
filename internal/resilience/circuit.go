package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var breakerNopLogger = zerolog.Nop()

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets a bounded number of probes through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero values take the defaults noted per field.
type BreakerConfig struct {
	// Target labels metrics and logs. Default "default".
	Target string
	// MinRequests is the number of outcomes in a window before the ratio is
	// evaluated. Default 1.
	MinRequests int
	// FailureRatio opens the breaker when failures/requests reaches it. Default 0.5.
	FailureRatio float64
	// OpenFor is the cool-off before probing. Default 30s.
	OpenFor time.Duration
	// Window is how long outcomes are counted before the counts restart. Default 60s.
	Window time.Duration
	// HalfOpenProbes caps in-flight probes while half-open. Default 1.
	HalfOpenProbes int
	Logger         *zerolog.Logger
	Now            func() time.Time
}

// Counts is a snapshot of the outcomes recorded in the current window.
type Counts struct {
	Successes int
	Failures  int
}

// Requests returns the number of recorded outcomes.
func (c Counts) Requests() int { return c.Successes + c.Failures }

// Breaker is a failure-ratio circuit breaker over a fixed counting window.
// A nil *Breaker admits everything.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       State
	counts      Counts
	windowStart time.Time
	openedAt    time.Time
	probes      int
}

// NewBreaker builds a closed breaker from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.Target = strings.TrimSpace(cfg.Target)
	if cfg.Target == "" {
		cfg.Target = "default"
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.FailureRatio > 1 {
		cfg.FailureRatio = 1
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Breaker{cfg: cfg, state: Closed, windowStart: cfg.Now()}
	b.recordStateLocked()
	return b
}

// Allow reports whether a request may proceed. Once the cool-off has passed
// an open breaker turns half-open and admits up to HalfOpenProbes requests
// until one of them reports back.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.changeStateLocked(ctx, HalfOpen)
		b.probes = 1
		return true
	case HalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return false
		}
		b.probes++
		return true
	default:
		return true
	}
}

// Report records the outcome of an admitted request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if b.probes > 0 {
			b.probes--
		}
		if success {
			b.changeStateLocked(ctx, Closed)
		} else {
			b.changeStateLocked(ctx, Open)
		}
		return
	}

	now := b.cfg.Now()
	if now.Sub(b.windowStart) >= b.cfg.Window {
		b.counts = Counts{}
		b.windowStart = now
	}
	if success {
		b.counts.Successes++
	} else {
		b.counts.Failures++
	}

	total := b.counts.Requests()
	if total < b.cfg.MinRequests {
		return
	}
	if float64(b.counts.Failures)/float64(total) >= b.cfg.FailureRatio {
		b.changeStateLocked(ctx, Open)
	}
}

// Target returns the dependency label used for telemetry.
func (b *Breaker) Target() string {
	if b == nil {
		return "default"
	}
	return b.cfg.Target
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	if b == nil {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns the outcomes recorded in the current window.
func (b *Breaker) Counts() Counts {
	if b == nil {
		return Counts{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Backoff returns an exponential backoff duration for the provided attempt.
// Jitter is a fraction of the delay (0.2 means up to 20% either way).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	jitter := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*jitter)
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	now := b.cfg.Now()
	b.state = next
	switch next {
	case Open:
		b.openedAt = now
	case Closed:
		b.openedAt = time.Time{}
	}
	if next != HalfOpen {
		b.probes = 0
	}
	b.counts = Counts{}
	b.windowStart = now
	b.recordStateLocked()
	b.recordTransition(ctx, prev, next)
}

func (b *Breaker) recordStateLocked() {
	BreakerState.WithLabelValues(b.cfg.Target).Set(stateGaugeValue(b.state))
}

func (b *Breaker) recordTransition(ctx context.Context, from, to State) {
	BreakerTransitions.WithLabelValues(b.cfg.Target, from.String(), to.String()).Inc()
	if to == Open {
		BreakerOpenedTotal.WithLabelValues(b.cfg.Target).Inc()
	}
	evt := b.loggerFor(ctx).Info().
		Str("target", b.cfg.Target).
		Str("from_state", from.String()).
		Str("to_state", to.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger != nil && ctxLogger.GetLevel() != zerolog.Disabled {
		return ctxLogger
	}
	if b.cfg.Logger == nil {
		return &breakerNopLogger
	}
	return b.cfg.Logger
}

func stateGaugeValue(state State) float64 {
	switch state {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}
