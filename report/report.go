// Package report renders polling cycles to the configured sinks.
package report

import (
	"errors"
	"fmt"

	"github.com/victorjacobs/hass-poller/sensor"
)

// Sink consumes completed cycles.
type Sink interface {
	Report(cycle *sensor.Cycle) error
}

// Multi hands every cycle to each sink in order. A failing sink does not
// prevent the others from receiving the cycle.
type Multi []Sink

func (m Multi) Report(cycle *sensor.Cycle) error {
	var errs []error
	for _, s := range m {
		if err := s.Report(cycle); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatLine renders a single result the way it appears on the console.
func FormatLine(r sensor.Result) string {
	if r.Ok() {
		return fmt.Sprintf("%s: %s", r.Entry.Label, r.Value)
	}
	return fmt.Sprintf("%s: ERROR (%s)", r.Entry.Label, r.Kind)
}
