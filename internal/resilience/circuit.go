package resilience

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned while a breaker is refusing calls.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is a breaker position. Its numeric value is exported as the
// breaker_state gauge.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

var stateNames = map[State]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// window counts outcomes since the last transition.
type window struct {
	ok, failed int
}

func (w *window) add(success bool) {
	if success {
		w.ok++
		return
	}
	w.failed++
}

func (w window) total() int { return w.ok + w.failed }

func (w window) failureRatio() float64 {
	if w.total() == 0 {
		return 0
	}
	return float64(w.failed) / float64(w.total())
}

// halve keeps a long healthy run from diluting a fresh burst of failures.
func (w *window) halve() {
	w.ok = (w.ok + 1) / 2
	w.failed = (w.failed + 1) / 2
}

// Breaker trips when the failure ratio over at least minCalls outcomes
// reaches tripRatio, then refuses calls for coolOff. One trial call is let
// through afterwards; its outcome closes or reopens the breaker.
type Breaker struct {
	minCalls  int
	tripRatio float64
	coolOff   time.Duration

	mu       sync.Mutex
	state    State
	counts   window
	openedAt time.Time
	trialOut bool
	target   string
	logger   *zerolog.Logger
	now      func() time.Time
}

// NewBreaker returns a closed breaker. Out-of-range arguments fall back to
// one call, a 0.5 ratio and a 30s cool-off.
func NewBreaker(minCalls int, tripRatio float64, coolOff time.Duration) *Breaker {
	b := &Breaker{
		minCalls:  max(minCalls, 1),
		tripRatio: tripRatio,
		coolOff:   coolOff,
		now:       time.Now,
	}
	switch {
	case b.tripRatio <= 0:
		b.tripRatio = 0.5
	case b.tripRatio > 1:
		b.tripRatio = 1
	}
	if b.coolOff <= 0 {
		b.coolOff = 30 * time.Second
	}
	return b
}

// WithTarget names the guarded dependency in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.publishState()
	return b
}

// WithLogger sets the logger used when no logger travels on the context.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = &logger
	return b
}

// WithClock swaps the time source, for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
	return b
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may go ahead. Every true result must be
// followed by Report.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.coolOff {
			return false
		}
		b.moveTo(ctx, HalfOpen)
		b.trialOut = true
		return true
	default:
		if b.trialOut {
			return false
		}
		b.trialOut = true
		return true
	}
}

// Report feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
	case HalfOpen:
		b.trialOut = false
		if success {
			b.moveTo(ctx, Closed)
		} else {
			b.moveTo(ctx, Open)
		}
	default:
		b.counts.add(success)
		switch {
		case b.counts.total() < b.minCalls:
		case b.counts.failureRatio() >= b.tripRatio:
			b.moveTo(ctx, Open)
		case b.counts.total() > 2*b.minCalls:
			b.counts.halve()
		}
	}
}

// Execute wraps fn with Allow and Report.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow(ctx) {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	b.Report(ctx, err == nil)
	return err
}

// Backoff doubles base for every attempt after the first and spreads the
// result by up to jitterPct in either direction.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << uint(max(attempt, 1)-1)
	if jitterPct <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * jitterPct * float64(d)
	return d + time.Duration(spread)
}

func (b *Breaker) moveTo(ctx context.Context, next State) {
	from := b.state
	b.counts = window{}
	if from == next {
		b.publishState()
		return
	}
	b.state = next
	if next == Open {
		b.openedAt = b.now()
	} else {
		b.openedAt = time.Time{}
	}
	b.publishState()

	label := b.label()
	BreakerTransitions.WithLabelValues(label, from.String(), next.String()).Inc()
	if next == Open {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}
	evt := b.log(ctx).Info().
		Str("target", label).
		Str("from_state", from.String()).
		Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishState() {
	BreakerState.WithLabelValues(b.label()).Set(float64(b.state))
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

func (b *Breaker) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.logger != nil {
		return b.logger
	}
	nop := zerolog.Nop()
	return &nop
}
