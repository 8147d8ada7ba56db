package bookingrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/bookingrepo"
)

type pairKey struct {
	memberID  domain.MemberID
	sessionID domain.SessionID
}

// Repo is an in-memory implementation of bookingrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	byID map[domain.BookingID]bookingrepo.Booking
	// active indexes the non-cancelled booking per (member, session).
	active map[pairKey]domain.BookingID
}

func NewRepo() *Repo {
	return &Repo{
		byID:   make(map[domain.BookingID]bookingrepo.Booking),
		active: make(map[pairKey]domain.BookingID),
	}
}

func (r *Repo) Create(ctx context.Context, b bookingrepo.Booking) error {
	_ = ctx
	if b.ID == "" {
		return bookingrepo.ErrAlreadyExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[b.ID]; ok {
		return bookingrepo.ErrAlreadyExists
	}
	k := pairKey{memberID: b.MemberID, sessionID: b.SessionID}
	if b.Status != domain.BookingStatusCancelled {
		if _, ok := r.active[k]; ok {
			return bookingrepo.ErrActiveBookingExists
		}
		r.active[k] = b.ID
	}
	b.Version = 1
	r.byID[b.ID] = cloneBooking(b)
	return nil
}

func (r *Repo) Save(ctx context.Context, b bookingrepo.Booking) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[b.ID]
	if !ok {
		return bookingrepo.ErrNotFound
	}
	if existing.Version != b.Version {
		return bookingrepo.ErrVersionConflict
	}
	k := pairKey{memberID: b.MemberID, sessionID: b.SessionID}
	if b.Status == domain.BookingStatusCancelled {
		if r.active[k] == b.ID {
			delete(r.active, k)
		}
	} else {
		if other, ok := r.active[k]; ok && other != b.ID {
			return bookingrepo.ErrActiveBookingExists
		}
		r.active[k] = b.ID
	}
	b.Version = existing.Version + 1
	r.byID[b.ID] = cloneBooking(b)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.BookingID) (bookingrepo.Booking, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	if !ok {
		return bookingrepo.Booking{}, bookingrepo.ErrNotFound
	}
	return cloneBooking(b), nil
}

func (r *Repo) FindActiveByMemberAndSession(ctx context.Context, memberID domain.MemberID, sessionID domain.SessionID) (bookingrepo.Booking, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.active[pairKey{memberID: memberID, sessionID: sessionID}]
	if !ok {
		return bookingrepo.Booking{}, bookingrepo.ErrNotFound
	}
	return cloneBooking(r.byID[id]), nil
}

func (r *Repo) ListBySession(ctx context.Context, sessionID domain.SessionID) ([]bookingrepo.Booking, error) {
	return r.list(ctx, func(b bookingrepo.Booking) bool { return b.SessionID == sessionID })
}

func (r *Repo) ListByMember(ctx context.Context, memberID domain.MemberID) ([]bookingrepo.Booking, error) {
	return r.list(ctx, func(b bookingrepo.Booking) bool { return b.MemberID == memberID })
}

func (r *Repo) list(ctx context.Context, keep func(bookingrepo.Booking) bool) ([]bookingrepo.Booking, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]bookingrepo.Booking, 0)
	for _, b := range r.byID {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneBooking(b bookingrepo.Booking) bookingrepo.Booking {
	out := b
	if b.CancelledAt != nil {
		v := *b.CancelledAt
		out.CancelledAt = &v
	}
	return out
}
