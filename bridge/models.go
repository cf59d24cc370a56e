package bridge

import (
	"context"

	"github.com/victorjacobs/hass-poller/homeassistant"
	"github.com/victorjacobs/hass-poller/sensor"
)

// Fetcher reads the current state of one entity.
type Fetcher interface {
	FetchState(ctx context.Context, entityID string) (*homeassistant.EntityState, error)
}

// Connector checks upstream reachability before polling.
type Connector interface {
	Ping(ctx context.Context) error
}

// Reporter receives every completed cycle.
type Reporter interface {
	Report(cycle *sensor.Cycle) error
}

// Phase is the position of the bridge in its polling loop.
type Phase int32

const (
	Idle Phase = iota
	Connecting
	Polling
	Reporting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Polling:
		return "polling"
	case Reporting:
		return "reporting"
	default:
		return "unknown"
	}
}
