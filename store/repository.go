package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/fabfab/codemind/chat"
	"github.com/fabfab/codemind/llm"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownModel    = errors.New("unknown model")
)

// Repository holds the live sessions of a workspace.
type Repository struct {
	cache   *cache.Cache
	catalog llm.Catalog

	mu       sync.RWMutex
	activeID string
	model    string
}

func NewRepository(catalog llm.Catalog) *Repository {
	// Sessions live until deleted; expired entries would be purged every 10 minutes.
	c := cache.New(cache.NoExpiration, 10*time.Minute)
	return &Repository{
		cache:   c,
		catalog: catalog,
		model:   catalog.Default().ID,
	}
}

// Save stores sess and makes it active when no session is active yet.
func (r *Repository) Save(sess *chat.Session) {
	r.cache.Set(sess.ID(), sess, cache.NoExpiration)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeID == "" {
		r.activeID = sess.ID()
	}
}

func (r *Repository) Get(id string) (*chat.Session, bool) {
	if x, found := r.cache.Get(id); found {
		return x.(*chat.Session), true
	}
	return nil, false
}

// Delete removes a session. When it was active the newest remaining session
// becomes active.
func (r *Repository) Delete(id string) {
	r.cache.Delete(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeID != id {
		return
	}
	r.activeID = ""
	if sessions := r.listLocked(); len(sessions) > 0 {
		r.activeID = sessions[0].ID()
	}
}

// List returns the sessions newest first.
func (r *Repository) List() []*chat.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Repository) listLocked() []*chat.Session {
	items := r.cache.Items()
	sessions := make([]*chat.Session, 0, len(items))
	for _, item := range items {
		sessions = append(sessions, item.Object.(*chat.Session))
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt().Equal(sessions[j].CreatedAt()) {
			return sessions[i].ID() < sessions[j].ID()
		}
		return sessions[i].CreatedAt().After(sessions[j].CreatedAt())
	})
	return sessions
}

func (r *Repository) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

func (r *Repository) SetActive(id string) error {
	if _, ok := r.Get(id); !ok {
		return ErrSessionNotFound
	}
	r.mu.Lock()
	r.activeID = id
	r.mu.Unlock()
	return nil
}

func (r *Repository) SelectedModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model
}

func (r *Repository) SelectModel(id string) error {
	if !r.catalog.Has(id) {
		return ErrUnknownModel
	}
	r.mu.Lock()
	r.model = id
	r.mu.Unlock()
	return nil
}

// Snapshot captures the workspace for persistence.
func (r *Repository) Snapshot() Snapshot {
	sessions := r.List()
	snap := Snapshot{
		Sessions:        make([]chat.SessionState, 0, len(sessions)),
		ActiveSessionID: r.ActiveID(),
		SelectedModel:   r.SelectedModel(),
	}
	for _, sess := range sessions {
		snap.Sessions = append(snap.Sessions, sess.State())
	}
	return snap
}

// Restore replaces the workspace with the sessions of snap.
func (r *Repository) Restore(snap Snapshot) {
	r.cache.Flush()
	for _, state := range snap.Sessions {
		sess := chat.RestoreSession(state)
		r.cache.Set(sess.ID(), sess, cache.NoExpiration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeID = snap.ActiveSessionID
	if _, ok := r.cache.Get(r.activeID); !ok {
		r.activeID = ""
		if sessions := r.listLocked(); len(sessions) > 0 {
			r.activeID = sessions[0].ID()
		}
	}
	r.model = snap.SelectedModel
	if !r.catalog.Has(r.model) {
		r.model = r.catalog.Default().ID
	}
}
