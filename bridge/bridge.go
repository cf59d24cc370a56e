package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/victorjacobs/hass-poller/homeassistant"
	"github.com/victorjacobs/hass-poller/sensor"
)

// errorf is swapped out in tests.
var errorf = glog.Errorf

type Config struct {
	Registry *sensor.Registry
	Fetcher  Fetcher
	Reporter Reporter
	Interval time.Duration

	// Connector is optional. When set it is pinged before the first cycle and
	// after any cycle in which every sensor failed to connect.
	Connector Connector
}

// Bridge polls every registered sensor once per interval and hands each
// completed cycle to the reporter.
type Bridge struct {
	registry  *sensor.Registry
	fetcher   Fetcher
	reporter  Reporter
	connector Connector
	interval  time.Duration
	now       func() time.Time

	// Owned by the polling goroutine.
	cycles              uint64
	connected           bool
	authFailureReported bool

	phase     atomic.Int32
	lastCycle atomic.Pointer[sensor.Cycle]
}

func New(cfg Config) (*Bridge, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry must be set")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher must be set")
	}
	if cfg.Reporter == nil {
		return nil, errors.New("reporter must be set")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("invalid interval %v", cfg.Interval)
	}

	return &Bridge{
		registry:  cfg.Registry,
		fetcher:   cfg.Fetcher,
		reporter:  cfg.Reporter,
		connector: cfg.Connector,
		interval:  cfg.Interval,
		now:       time.Now,
	}, nil
}

// Run polls until ctx is cancelled. Cycle starts are spaced at least one
// interval apart; a cycle that overruns the interval is followed immediately
// by the next one.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		start := b.now()
		cycle := b.cycle(ctx, start)

		// A cycle cut short by shutdown is not reported.
		if err := ctx.Err(); err != nil {
			b.setPhase(Idle)
			return err
		}

		b.setPhase(Reporting)
		if err := b.reporter.Report(cycle); err != nil {
			glog.Warningf("unable to report cycle %d: %v", cycle.Number, err)
		}
		b.setPhase(Idle)

		wait := b.interval - b.now().Sub(start)
		if wait <= 0 {
			glog.V(1).Infof("cycle %d overran the %v interval by %v", cycle.Number, b.interval, -wait)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Cycle performs one pass over the registry and returns exactly one result
// per entry, in registry order. It does not report the cycle.
func (b *Bridge) Cycle(ctx context.Context) *sensor.Cycle {
	defer b.setPhase(Idle)
	return b.cycle(ctx, b.now())
}

func (b *Bridge) cycle(ctx context.Context, start time.Time) *sensor.Cycle {
	b.cycles++
	cycle := &sensor.Cycle{
		Number:    b.cycles,
		StartedAt: start,
	}

	if b.connector != nil && !b.connected {
		b.setPhase(Connecting)
		if err := b.connector.Ping(ctx); err != nil {
			glog.Warningf("Home Assistant is not reachable, polling anyway: %v", err)
		} else {
			glog.V(1).Infof("Home Assistant is reachable")
			b.connected = true
		}
	}

	b.setPhase(Polling)
	entries := b.registry.Entries()
	cycle.Results = make([]sensor.Result, 0, len(entries))
	for i, entry := range entries {
		cycle.Results = append(cycle.Results, b.poll(ctx, i, entry))
	}

	cycle.Duration = b.now().Sub(cycle.StartedAt)
	cycle.AuthFailure = cycle.AllFailedWith(sensor.AuthError)

	if lostConnection(cycle) {
		b.connected = false
	}
	b.checkAuthFailure(cycle)
	b.lastCycle.Store(cycle)

	glog.V(1).Infof("cycle %d polled %d sensors in %v", cycle.Number, len(cycle.Results), cycle.Duration)

	return cycle
}

func (b *Bridge) poll(ctx context.Context, position int, entry sensor.Entry) (result sensor.Result) {
	result = sensor.Result{
		Entry:    entry,
		Position: position,
	}

	defer func() {
		if v := recover(); v != nil {
			glog.Errorf("panic while polling %v: %v", entry.EntityID, v)
			result.Status = sensor.StatusError
			result.Kind = sensor.NetworkError
			result.Error = fmt.Sprintf("panic: %v", v)
			result.Timestamp = b.now()
		}
	}()

	state, err := b.fetcher.FetchState(ctx, entry.EntityID)
	result.Timestamp = b.now()
	if err != nil {
		glog.V(1).Infof("unable to read %v: %v", entry.EntityID, err)
		result.Status = sensor.StatusError
		result.Kind = homeassistant.KindOf(err)
		result.Error = err.Error()
		return result
	}

	result.Status = sensor.StatusOk
	result.Value = state.State
	result.Unit = state.Unit()
	if v, ok := state.Numeric(); ok {
		result.Numeric = &v
	}

	return result
}

func (b *Bridge) checkAuthFailure(cycle *sensor.Cycle) {
	if cycle.AuthFailure {
		if !b.authFailureReported {
			errorf("all %d sensors failed with %v: the access token is invalid, expired or lacks permission", len(cycle.Results), sensor.AuthError)
			b.authFailureReported = true
		}
		return
	}

	if b.authFailureReported && len(cycle.Results) > 0 {
		glog.Infof("Home Assistant accepted the access token again")
		b.authFailureReported = false
	}
}

// lostConnection reports whether every sensor failed before reaching Home
// Assistant.
func lostConnection(cycle *sensor.Cycle) bool {
	if len(cycle.Results) == 0 {
		return false
	}
	for _, r := range cycle.Results {
		if r.Ok() {
			return false
		}
		switch r.Kind {
		case sensor.NetworkError, sensor.TimeoutError, sensor.TLSError:
		default:
			return false
		}
	}
	return true
}

func (b *Bridge) setPhase(p Phase) {
	b.phase.Store(int32(p))
}

func (b *Bridge) Phase() Phase {
	return Phase(b.phase.Load())
}

// LastCycle returns the most recently completed cycle, or nil before the
// first one finishes.
func (b *Bridge) LastCycle() *sensor.Cycle {
	return b.lastCycle.Load()
}

func (b *Bridge) Interval() time.Duration {
	return b.interval
}
