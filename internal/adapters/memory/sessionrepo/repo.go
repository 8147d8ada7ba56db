package sessionrepo

import (
	"context"
	"sync"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/sessionrepo"
)

// Repo is an in-memory implementation of sessionrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu   sync.RWMutex
	byID map[domain.SessionID]sessionrepo.Session
}

func NewRepo() *Repo {
	return &Repo{byID: make(map[domain.SessionID]sessionrepo.Session)}
}

func (r *Repo) Create(ctx context.Context, s sessionrepo.Session) error {
	_ = ctx
	if s.ID == "" {
		return sessionrepo.ErrAlreadyExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return sessionrepo.ErrAlreadyExists
	}
	s.Version = 1
	r.byID[s.ID] = cloneSession(s)
	return nil
}

func (r *Repo) Save(ctx context.Context, s sessionrepo.Session) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[s.ID]
	if !ok {
		return sessionrepo.ErrNotFound
	}
	if existing.Version != s.Version {
		return sessionrepo.ErrVersionConflict
	}
	s.Version = existing.Version + 1
	r.byID[s.ID] = cloneSession(s)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.SessionID) (sessionrepo.Session, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return sessionrepo.Session{}, sessionrepo.ErrNotFound
	}
	return cloneSession(s), nil
}

func cloneSession(s sessionrepo.Session) sessionrepo.Session {
	out := s
	out.Confirmed = append([]domain.MemberID{}, s.Confirmed...)
	out.Waitlist = append([]domain.MemberID{}, s.Waitlist...)
	return out
}
