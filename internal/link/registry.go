package link

import (
	"sort"
	"sync"
	"time"
)

// SessionInfo is a point-in-time view of one live session.
type SessionInfo struct {
	ID             string    `json:"id"`
	Remote         string    `json:"remote"`
	RemoteType     string    `json:"remote_type"`
	IndicatorName  string    `json:"indicator_name"`
	Mode           string    `json:"mode"`
	Fields         []string  `json:"fields"`
	Packets        int       `json:"packets"`
	RowsDownloaded int       `json:"rows_downloaded"`
	ConnectedAt    time.Time `json:"connected_at"`
	LastPacketAt   time.Time `json:"last_packet_at,omitempty"`
}

// Registry tracks live sessions for the admin API. Sessions themselves are
// owned by their connection goroutine; the registry only holds copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]SessionInfo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]SessionInfo)}
}

// Add registers a session.
func (r *Registry) Add(info SessionInfo) {
	r.mu.Lock()
	r.sessions[info.ID] = info
	r.mu.Unlock()
}

// Touch updates the counters of a registered session.
func (r *Registry) Touch(id string, packets, rows int, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.sessions[id]
	if !ok {
		return
	}
	info.Packets = packets
	info.RowsDownloaded = rows
	info.LastPacketAt = at
	r.sessions[id] = info
}

// Remove drops a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Get returns one session by ID.
func (r *Registry) Get(id string) (SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.sessions[id]
	return info, ok
}

// List returns all sessions, oldest first.
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, info := range r.sessions {
		out = append(out, info)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
