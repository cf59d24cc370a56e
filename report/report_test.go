package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorjacobs/hass-poller/sensor"
)

func testCycle() *sensor.Cycle {
	power := 42.5
	return &sensor.Cycle{
		Number:    7,
		StartedAt: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		Results: []sensor.Result{
			{
				Entry:    sensor.Entry{Label: "Grid", EntityID: "sensor.foxess_grid_consumption_power"},
				Position: 0,
				Status:   sensor.StatusOk,
				Value:    "120",
			},
			{
				Entry:    sensor.Entry{Label: "Solar", EntityID: "sensor.solaredge_current_power"},
				Position: 1,
				Status:   sensor.StatusOk,
				Value:    "42.5",
				Numeric:  &power,
				Unit:     "W",
			},
			{
				Entry:    sensor.Entry{Label: "Load", EntityID: "sensor.foxess_load_power"},
				Position: 2,
				Status:   sensor.StatusError,
				Kind:     sensor.NotFoundError,
				Error:    "NotFoundError: HTTP 404",
			},
		},
	}
}

func TestFormatLine(t *testing.T) {
	c := testCycle()
	assert.Equal(t, "Grid: 120", FormatLine(c.Results[0]))
	assert.Equal(t, "Solar: 42.5", FormatLine(c.Results[1]))
	assert.Equal(t, "Load: ERROR (NotFoundError)", FormatLine(c.Results[2]))
}

func TestConsole_Report(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewConsole(&buf).Report(testCycle()))

	assert.Equal(t, "Grid: 120\nSolar: 42.5\nLoad: ERROR (NotFoundError)\n", buf.String())
}

func TestConsole_SerialLineEndings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewSerialConsole(&buf).Report(testCycle()))

	assert.Equal(t, "Grid: 120\r\nSolar: 42.5\r\nLoad: ERROR (NotFoundError)\r\n", buf.String())
}

func TestConsole_EmptyCycle(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewConsole(&buf).Report(&sensor.Cycle{}))
	assert.Empty(t, buf.String())
}

func TestConsole_Deterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, NewConsole(&a).Report(testCycle()))
	require.NoError(t, NewConsole(&b).Report(testCycle()))
	assert.Equal(t, a.String(), b.String())
}

type failingWriter struct{}

func (failingWriter) Write(_ []byte) (int, error) {
	return 0, errors.New("port closed")
}

func TestConsole_WriteError(t *testing.T) {
	err := NewConsole(failingWriter{}).Report(testCycle())
	assert.ErrorContains(t, err, "port closed")
}

type countingSink struct {
	calls int
	err   error
}

func (s *countingSink) Report(_ *sensor.Cycle) error {
	s.calls++
	return s.err
}

func TestMulti_ContinuesAfterFailure(t *testing.T) {
	first := &countingSink{err: errors.New("first failed")}
	second := &countingSink{}

	err := Multi{first, second}.Report(testCycle())

	assert.ErrorContains(t, err, "first failed")
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, Multi{}.Report(testCycle()))
}

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                       { return !t.timeout }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                     { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	published []published
	token     *fakeToken
}

func (p *fakePublisher) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, published{topic: topic, retained: retained, payload: payload.([]byte)})
	if p.token != nil {
		return p.token
	}
	return &fakeToken{}
}

func TestMQTT_Report(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMQTT(pub, "hass-poller/")

	require.NoError(t, m.Report(testCycle()))
	require.Len(t, pub.published, 3)

	assert.Equal(t, "hass-poller/sensor.foxess_grid_consumption_power", pub.published[0].topic)
	assert.True(t, pub.published[0].retained)

	var got sensor.Result
	require.NoError(t, json.Unmarshal(pub.published[1].payload, &got))
	assert.Equal(t, "42.5", got.Value)
	assert.Equal(t, "W", got.Unit)
	require.NotNil(t, got.Numeric)
	assert.Equal(t, 42.5, *got.Numeric)

	require.NoError(t, json.Unmarshal(pub.published[2].payload, &got))
	assert.Equal(t, sensor.StatusError, got.Status)
	assert.Equal(t, sensor.NotFoundError, got.Kind)
}

func TestMQTT_PublishErrors(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{err: errors.New("not connected")}}
	err := NewMQTT(pub, "p").Report(testCycle())
	assert.ErrorContains(t, err, "not connected")
	assert.Len(t, pub.published, 3, "every result is attempted")

	pub = &fakePublisher{token: &fakeToken{timeout: true}}
	err = NewMQTT(pub, "p").Report(testCycle())
	assert.ErrorContains(t, err, "timed out")
}

func TestCache_Results(t *testing.T) {
	c, err := NewCache(time.Minute)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Report(testCycle()))

	results := c.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "Grid", results[0].Entry.Label)
	assert.Equal(t, "Solar", results[1].Entry.Label)
	assert.Equal(t, "Load", results[2].Entry.Label)

	solar := c.ByEntityID("sensor.solaredge_current_power")
	require.Len(t, solar, 1)
	assert.Equal(t, "42.5", solar[0].Value)

	assert.Empty(t, c.ByEntityID("sensor.unknown"))
}

func TestCache_LatestCycleWins(t *testing.T) {
	c, err := NewCache(time.Minute)
	require.NoError(t, err)
	defer c.Close()

	first := testCycle()
	require.NoError(t, c.Report(first))

	second := testCycle()
	second.Results[0].Value = "130"
	require.NoError(t, c.Report(second))

	results := c.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "130", results[0].Value)
}

func TestCache_Expires(t *testing.T) {
	c, err := NewCache(50 * time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Report(testCycle()))
	require.Len(t, c.Results(), 3)

	assert.Eventually(t, func() bool {
		return len(c.Results()) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewCache_InvalidTTL(t *testing.T) {
	_, err := NewCache(0)
	assert.Error(t, err)

	_, err = NewCache(-time.Second)
	assert.Error(t, err)
}
