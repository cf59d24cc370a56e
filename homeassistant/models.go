package homeassistant

import (
	"fmt"
	"strconv"
)

// EntityState is the subset of /api/states/{entity_id} this client cares about.
type EntityState struct {
	EntityID    string
	State       string
	Attributes  map[string]interface{}
	LastChanged string // "2023-12-27T15:28:26.287133+00:00"
	LastUpdated string
}

type stateResponse struct {
	EntityID    string                 `json:"entity_id"`
	State       *string                `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged string                 `json:"last_changed"`
	LastUpdated string                 `json:"last_updated"`
}

func (s *EntityState) Unit() string {
	return s.stringAttribute("unit_of_measurement")
}

func (s *EntityState) FriendlyName() string {
	return s.stringAttribute("friendly_name")
}

// Numeric parses the state as a float. Non-numeric states such as "on",
// "unavailable" or "unknown" return false.
func (s *EntityState) Numeric() (float64, bool) {
	v, err := strconv.ParseFloat(s.State, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s *EntityState) stringAttribute(name string) string {
	v, ok := s.Attributes[name]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}
