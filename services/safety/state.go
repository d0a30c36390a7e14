package safety

import (
	"time"
)

// Operation identifies the kind of governed call being attempted. The set is
// open: transports may introduce new kinds, only remix-class kinds get
// idempotency and daily-quota treatment.
type Operation string

const (
	OpRemix        Operation = "remix"
	OpUIRemix      Operation = "ui_remix"
	OpProbe        Operation = "probe"
	OpListProjects Operation = "list_projects"
	OpGetProject   Operation = "get_project"
)

// IsRemix reports whether the operation creates a remix, regardless of
// transport.
func (op Operation) IsRemix() bool {
	return op == OpRemix || op == OpUIRemix
}

// RequestLogEntry is one audit record. Entries are immutable once appended.
type RequestLogEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	Operation    Operation `json:"operation"`
	Endpoint     string    `json:"endpoint"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	ResponseCode int       `json:"response_code,omitempty"`
}

// State is the persistent safety record. It is mutated only through Gate
// methods and written back in full after every mutation.
type State struct {
	RequestsToday       int       `json:"requests_today"`
	RemixesToday        int       `json:"remixes_today"`
	LastRequestTime     time.Time `json:"last_request_time"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CircuitBreakerUntil time.Time `json:"circuit_breaker_until"`
	// LastResetDate is a local calendar date in YYYY-MM-DD form.
	LastResetDate string `json:"last_reset_date"`
	// RequestLog holds at most maxAuditEntries entries, oldest evicted first.
	RequestLog []RequestLogEntry `json:"request_log"`
	// RemixHistory maps source project id -> remixed project id. Never
	// cleared by the daily rollover, only by a full state reset.
	RemixHistory map[string]string `json:"remix_history"`
}

const maxAuditEntries = 100

func DefaultState() State {
	return State{
		RequestLog:   []RequestLogEntry{},
		RemixHistory: map[string]string{},
	}
}

// appendLog appends to the audit log tail, evicting from the head once the
// bound is exceeded.
func (s *State) appendLog(entry RequestLogEntry) {
	s.RequestLog = append(s.RequestLog, entry)
	if overflow := len(s.RequestLog) - maxAuditEntries; overflow > 0 {
		s.RequestLog = append([]RequestLogEntry{}, s.RequestLog[overflow:]...)
	}
}

// clone returns a deep copy so callers can inspect state without aliasing
// the gate's mutable record.
func (s State) clone() State {
	out := s
	out.RequestLog = make([]RequestLogEntry, len(s.RequestLog))
	copy(out.RequestLog, s.RequestLog)
	out.RemixHistory = make(map[string]string, len(s.RemixHistory))
	for k, v := range s.RemixHistory {
		out.RemixHistory[k] = v
	}
	return out
}
