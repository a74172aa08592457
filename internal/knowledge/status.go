package knowledge

import (
	"sync"
	"time"
)

// State describes the health of the vector database connection.
type State string

const (
	StateOK            State = "ok"
	StateUnavailable   State = "unavailable"
	StateNotConfigured State = "not_configured"
	StateError         State = "error"
)

// statusStaleAfter is the staleness window: a cached status older than this
// is refreshed with a fresh probe on the next read.
const statusStaleAfter = 30 * time.Minute

// Status is the cached health descriptor for the vector database.
type Status struct {
	State         State     `json:"state"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	Error         string    `json:"error,omitempty"`
}

// StatusCache holds the process-wide vector store status. It is constructed
// once at startup and injected into the Store; every ingestion and search
// reads it. All access goes through the mutex so a concurrent reader never
// sees a torn write.
type StatusCache struct {
	mu  sync.Mutex
	cur Status
}

// NewStatusCache returns a cache initialized to not_configured with no probe
// timestamp, so the first read forces a refresh.
func NewStatusCache() *StatusCache {
	return &StatusCache{cur: Status{State: StateNotConfigured}}
}

// Get returns the cached status without refreshing it.
func (c *StatusCache) Get() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// Set records a new state and stamps the check time.
func (c *StatusCache) Set(state State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = Status{State: state, LastCheckedAt: time.Now()}
	if err != nil {
		c.cur.Error = err.Error()
	}
}

// Current returns the cached status, refreshing it first via probe when the
// cache is stale or has never been checked. The lock is held across the
// probe, so concurrent readers of a stale cache trigger exactly one probe;
// the probe must therefore never call back into the cache.
func (c *StatusCache) Current(probe func() (State, error)) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cur.LastCheckedAt.IsZero() && time.Since(c.cur.LastCheckedAt) < statusStaleAfter {
		return c.cur
	}
	state, err := probe()
	c.cur = Status{State: state, LastCheckedAt: time.Now()}
	if err != nil {
		c.cur.Error = err.Error()
	}
	return c.cur
}
