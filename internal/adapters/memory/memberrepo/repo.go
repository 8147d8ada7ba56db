package memberrepo

import (
	"context"
	"strings"
	"sync"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/memberrepo"
)

// Repo is an in-memory implementation of memberrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	byID      map[domain.MemberID]memberrepo.Member
	idByEmail map[string]domain.MemberID
}

func NewRepo() *Repo {
	return &Repo{
		byID:      make(map[domain.MemberID]memberrepo.Member),
		idByEmail: make(map[string]domain.MemberID),
	}
}

func (r *Repo) Create(ctx context.Context, m memberrepo.Member) error {
	_ = ctx
	if m.ID == "" {
		return memberrepo.ErrAlreadyExists // treat empty ID as invalid; the domain validates earlier
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[m.ID]; ok {
		return memberrepo.ErrAlreadyExists
	}
	emailKey := strings.ToLower(strings.TrimSpace(m.Email))
	if _, ok := r.idByEmail[emailKey]; ok {
		return memberrepo.ErrEmailAlreadyInUse
	}

	m.Version = 1
	r.byID[m.ID] = cloneMember(m)
	r.idByEmail[emailKey] = m.ID
	return nil
}

func (r *Repo) Save(ctx context.Context, m memberrepo.Member) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[m.ID]
	if !ok {
		return memberrepo.ErrNotFound
	}
	if existing.Version != m.Version {
		return memberrepo.ErrVersionConflict
	}
	oldKey := strings.ToLower(strings.TrimSpace(existing.Email))
	newKey := strings.ToLower(strings.TrimSpace(m.Email))
	if oldKey != newKey {
		if other, ok := r.idByEmail[newKey]; ok && other != m.ID {
			return memberrepo.ErrEmailAlreadyInUse
		}
		delete(r.idByEmail, oldKey)
		r.idByEmail[newKey] = m.ID
	}

	m.Version = existing.Version + 1
	r.byID[m.ID] = cloneMember(m)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (memberrepo.Member, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	return cloneMember(m), nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (memberrepo.Member, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	m, ok := r.byID[id]
	if !ok {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	return cloneMember(m), nil
}

func cloneMember(m memberrepo.Member) memberrepo.Member {
	out := m
	if m.CreditsExpireAt != nil {
		v := *m.CreditsExpireAt
		out.CreditsExpireAt = &v
	}
	return out
}
