package server

import (
	"slices"
	"sync"
	"time"

	"github.com/danmuck/wirelink/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// SessionInfo is the admin view of one live session.
type SessionInfo struct {
	ID          uint64    `json:"id"`
	Remote      string    `json:"remote"`
	Transport   string    `json:"transport"`
	Encrypted   bool      `json:"encrypted"`
	ConnectedAt time.Time `json:"connected_at"`
	FramesIn    uint64    `json:"frames_in"`
	FramesOut   uint64    `json:"frames_out"`
	BytesIn     uint64    `json:"bytes_in"`
	BytesOut    uint64    `json:"bytes_out"`
	SendSeq     uint32    `json:"send_seq"`
}

type registered struct {
	session     *session.Session
	transport   string
	connectedAt time.Time
}

// Registry tracks live sessions by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]registered
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint64]registered)}
}

func (r *Registry) Add(s *session.Session, transport string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = registered{session: s, transport: transport, connectedAt: time.Now()}
}

func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Get(id uint64) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e.session, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a snapshot ordered by session id.
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, e := range r.sessions {
		st := e.session.Stats()
		out = append(out, SessionInfo{
			ID:          e.session.ID(),
			Remote:      addrString(e.session.RemoteAddr()),
			Transport:   e.transport,
			Encrypted:   e.session.Encrypted(),
			ConnectedAt: e.connectedAt,
			FramesIn:    st.FramesIn,
			FramesOut:   st.FramesOut,
			BytesIn:     st.BytesIn,
			BytesOut:    st.BytesOut,
			SendSeq:     e.session.SendSequence(),
		})
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b SessionInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out
}

func (r *Registry) snapshot() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.session)
	}
	return out
}

// Broadcast sends one message to every live session and returns how many
// accepted it. Each session stamps its own sequence.
func (r *Registry) Broadcast(opcode uint16, payload []byte) int {
	sent := 0
	for _, s := range r.snapshot() {
		if err := s.SendMessage(opcode, payload); err != nil {
			log.Debug().Err(err).Uint64("session_id", s.ID()).Uint16("opcode", opcode).Msg("broadcast skipped session")
			continue
		}
		sent++
	}
	return sent
}

// CloseAll disconnects every registered session.
func (r *Registry) CloseAll() {
	for _, s := range r.snapshot() {
		_ = s.Close()
	}
}
