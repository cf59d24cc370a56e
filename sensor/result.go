package sensor

import "time"

// ErrorKind classifies why a single sensor could not be read.
type ErrorKind string

const (
	NetworkError  ErrorKind = "NetworkError"
	TLSError      ErrorKind = "TlsError"
	AuthError     ErrorKind = "AuthError"
	NotFoundError ErrorKind = "NotFoundError"
	HTTPError     ErrorKind = "HttpError"
	DecodeError   ErrorKind = "DecodeError"
	TimeoutError  ErrorKind = "TimeoutError"
)

type Status string

const (
	StatusOk    Status = "ok"
	StatusError Status = "error"
)

// Result is the outcome of reading one entry during one cycle.
type Result struct {
	Entry     Entry     `json:"entry"`
	Position  int       `json:"position"`
	Status    Status    `json:"status"`
	Value     string    `json:"value,omitempty"`
	Numeric   *float64  `json:"numeric,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Kind      ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (r Result) Ok() bool {
	return r.Status == StatusOk
}

// Cycle is one complete pass over the registry.
type Cycle struct {
	Number    uint64        `json:"number"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Results   []Result      `json:"results"`

	// AuthFailure is set when every result failed with AuthError.
	AuthFailure bool `json:"auth_failure"`
}

// AllFailedWith reports whether the cycle has results and all of them failed
// with kind.
func (c *Cycle) AllFailedWith(kind ErrorKind) bool {
	if len(c.Results) == 0 {
		return false
	}
	for _, r := range c.Results {
		if r.Ok() || r.Kind != kind {
			return false
		}
	}
	return true
}
