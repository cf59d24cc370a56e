package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"

	"github.com/victorjacobs/hass-poller/bridge"
	"github.com/victorjacobs/hass-poller/sensor"
)

// ResultStore serves the latest result of every sensor.
type ResultStore interface {
	Results() []sensor.Result
	ByEntityID(entityID string) []sensor.Result
}

// Status exposes the polling loop's progress.
type Status interface {
	Phase() bridge.Phase
	LastCycle() *sensor.Cycle
	Interval() time.Duration
}

type stateResponse struct {
	Results []sensor.Result `json:"results"`
}

type healthResponse struct {
	Phase         string     `json:"phase"`
	Interval      string     `json:"interval"`
	LastCycle     uint64     `json:"last_cycle"`
	LastStartedAt *time.Time `json:"last_started_at,omitempty"`
	LastDuration  string     `json:"last_duration,omitempty"`
	Sensors       int        `json:"sensors"`
	Failed        int        `json:"failed"`
	AuthFailure   bool       `json:"auth_failure"`
}

// Register mounts all routes on router.
func Register(router *httprouter.Router, store ResultStore, status Status) {
	router.GET("/state", State(store))
	router.GET("/state/:entity_id", Sensor(store))
	router.GET("/health", Health(status))
}

func State(store ResultStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, stateResponse{Results: store.Results()})
	}
}

func Sensor(store ResultStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		results := store.ByEntityID(ps.ByName("entity_id"))
		if len(results) == 0 {
			http.Error(w, "no recent result for entity", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, stateResponse{Results: results})
	}
}

func Health(status Status) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		resp := healthResponse{
			Phase:    status.Phase().String(),
			Interval: status.Interval().String(),
		}

		if cycle := status.LastCycle(); cycle != nil {
			startedAt := cycle.StartedAt
			resp.LastCycle = cycle.Number
			resp.LastStartedAt = &startedAt
			resp.LastDuration = cycle.Duration.String()
			resp.Sensors = len(cycle.Results)
			resp.AuthFailure = cycle.AuthFailure
			for _, result := range cycle.Results {
				if !result.Ok() {
					resp.Failed++
				}
			}
		}

		code := http.StatusOK
		if resp.AuthFailure {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	marshaled, err := json.Marshal(v)
	if err != nil {
		glog.Errorf("error marshaling: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(marshaled)
}
