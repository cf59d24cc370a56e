package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorjacobs/hass-poller/bridge"
	"github.com/victorjacobs/hass-poller/report"
	"github.com/victorjacobs/hass-poller/sensor"
)

type fakeStatus struct {
	phase bridge.Phase
	cycle *sensor.Cycle
}

func (s *fakeStatus) Phase() bridge.Phase      { return s.phase }
func (s *fakeStatus) LastCycle() *sensor.Cycle { return s.cycle }
func (s *fakeStatus) Interval() time.Duration  { return 30 * time.Second }

func testCycle(authFailure bool) *sensor.Cycle {
	return &sensor.Cycle{
		Number:    3,
		StartedAt: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		Duration:  120 * time.Millisecond,
		Results: []sensor.Result{
			{Entry: sensor.Entry{Label: "Grid", EntityID: "sensor.grid"}, Position: 0, Status: sensor.StatusOk, Value: "120"},
			{Entry: sensor.Entry{Label: "Solar", EntityID: "sensor.solar"}, Position: 1, Status: sensor.StatusError, Kind: sensor.TimeoutError},
		},
		AuthFailure: authFailure,
	}
}

func newRouter(t *testing.T, status *fakeStatus) (*httprouter.Router, *report.Cache) {
	cache, err := report.NewCache(time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	router := httprouter.New()
	Register(router, cache, status)
	return router, cache
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestState(t *testing.T) {
	router, cache := newRouter(t, &fakeStatus{})
	require.NoError(t, cache.Report(testCycle(false)))

	rec := get(router, "/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Grid", resp.Results[0].Entry.Label)
	assert.Equal(t, sensor.TimeoutError, resp.Results[1].Kind)
}

func TestState_Empty(t *testing.T) {
	router, _ := newRouter(t, &fakeStatus{})

	rec := get(router, "/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results": []}`, rec.Body.String())
}

func TestSensor(t *testing.T) {
	router, cache := newRouter(t, &fakeStatus{})
	require.NoError(t, cache.Report(testCycle(false)))

	rec := get(router, "/state/sensor.grid")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "120", resp.Results[0].Value)

	assert.Equal(t, http.StatusNotFound, get(router, "/state/sensor.unknown").Code)
}

func TestHealth(t *testing.T) {
	status := &fakeStatus{phase: bridge.Connecting}
	router, _ := newRouter(t, status)

	rec := get(router, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "connecting", resp.Phase)
	assert.Equal(t, "30s", resp.Interval)
	assert.Equal(t, uint64(0), resp.LastCycle)
	assert.Nil(t, resp.LastStartedAt)

	status.phase = bridge.Idle
	status.cycle = testCycle(false)
	rec = get(router, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "idle", resp.Phase)
	assert.Equal(t, uint64(3), resp.LastCycle)
	assert.Equal(t, 2, resp.Sensors)
	assert.Equal(t, 1, resp.Failed)
	assert.False(t, resp.AuthFailure)
}

func TestHealth_AuthFailure(t *testing.T) {
	router, _ := newRouter(t, &fakeStatus{cycle: testCycle(true)})

	rec := get(router, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.AuthFailure)
}
