package report

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/victorjacobs/hass-poller/sensor"
)

// Console writes one line per result to w.
type Console struct {
	mutex      sync.Mutex
	w          io.Writer
	lineEnding string
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w, lineEnding: "\n"}
}

// NewSerialConsole uses CRLF line endings, which serial terminals expect.
func NewSerialConsole(w io.Writer) *Console {
	return &Console{w: w, lineEnding: "\r\n"}
}

func (c *Console) Report(cycle *sensor.Cycle) error {
	if len(cycle.Results) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, r := range cycle.Results {
		buf.WriteString(FormatLine(r))
		buf.WriteString(c.lineEnding)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("console write failed: %w", err)
	}
	return nil
}
