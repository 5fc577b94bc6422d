package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hrm-platform/hrm-service/pkg/logger"
)

// PollerConfig contains configuration for a recurring background loop
type PollerConfig struct {
	// Name is a descriptive name for the loop (for logging)
	Name string
	// Interval is the time between two ticks (default: 5s)
	Interval time.Duration
	// RunOnStart runs the first tick immediately instead of after one interval
	RunOnStart bool
}

// Poller runs a tick function on a fixed interval until stopped.
//
// Ticks never overlap: a tick that runs longer than the interval delays the
// next one. Stop lets the in-flight tick finish; if the stop context expires
// first, the tick's context is cancelled.
type Poller struct {
	config PollerConfig
	log    *slog.Logger
	tick   func(ctx context.Context) error

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	stopCh    chan struct{}
	stoppedCh chan struct{}

	metricsMu sync.RWMutex
	ticks     int64
	failures  int64
	lastTick  time.Time
}

// NewPoller creates a new poller
func NewPoller(config PollerConfig, log *slog.Logger, tick func(ctx context.Context) error) *Poller {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}

	return &Poller{
		config: config,
		log:    log.With(slog.String("poller", config.Name)),
		tick:   tick,
	}
}

// Start begins the polling loop. The loop outlives ctx; only Stop ends it.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.running = true
	p.cancel = cancel
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})

	p.log.Info("poller starting", slog.Duration("interval", p.config.Interval))

	go p.run(runCtx, p.stopCh, p.stoppedCh)
	return nil
}

// Stop signals the loop to exit and waits for the current tick to complete
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	stoppedCh, cancel := p.stoppedCh, p.cancel
	p.mu.Unlock()

	defer cancel()

	select {
	case <-stoppedCh:
		p.log.Info("poller stopped gracefully")
	case <-ctx.Done():
		p.log.Warn("poller stop timeout, cancelling in-flight tick")
	}
	return nil
}

func (p *Poller) run(ctx context.Context, stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	if p.config.RunOnStart {
		p.runTick(ctx)
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A stop that raced the ticker wins.
			select {
			case <-stopCh:
				return
			default:
			}
			p.runTick(ctx)
		}
	}
}

func (p *Poller) runTick(ctx context.Context) {
	err := p.tick(ctx)

	p.metricsMu.Lock()
	p.ticks++
	p.lastTick = time.Now()
	if err != nil {
		p.failures++
	}
	p.metricsMu.Unlock()

	if err != nil {
		p.log.Warn("tick failed", logger.Error(err))
	}
}

// Name returns the configured loop name
func (p *Poller) Name() string {
	return p.config.Name
}

// IsRunning returns whether the loop is currently running
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Metrics returns current poller metrics
func (p *Poller) Metrics() PollerMetrics {
	p.metricsMu.RLock()
	defer p.metricsMu.RUnlock()

	return PollerMetrics{
		Ticks:    p.ticks,
		Failures: p.failures,
		LastTick: p.lastTick,
	}
}

// PollerMetrics contains poller metrics
type PollerMetrics struct {
	Ticks    int64     `json:"ticks"`
	Failures int64     `json:"failures"`
	LastTick time.Time `json:"lastTick"`
}
