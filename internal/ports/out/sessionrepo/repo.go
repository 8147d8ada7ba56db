package sessionrepo

import (
	"context"
	"time"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

// Session is the persistence shape used by the session repository.
type Session struct {
	ID       domain.SessionID
	Name     string
	Capacity int

	// Date is the calendar day (00:00 UTC); Day/StartTime/EndTime describe the slot.
	Date      time.Time
	Day       time.Weekday
	StartTime domain.TimeOfDay
	EndTime   domain.TimeOfDay

	// Confirmed and Waitlist are ordered; Waitlist is head first.
	Confirmed []domain.MemberID
	Waitlist  []domain.MemberID

	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides access to persisted sessions.
//
// Save is a compare-and-swap on Version (see memberrepo.Repository).
type Repository interface {
	Create(ctx context.Context, s Session) error
	Save(ctx context.Context, s Session) error

	GetByID(ctx context.Context, id domain.SessionID) (Session, error)
}

func FromDomain(s *domain.Session) Session {
	snap := s.Snapshot()
	return Session{
		ID:        snap.ID,
		Name:      snap.Name,
		Capacity:  snap.Capacity,
		Date:      snap.Date,
		Day:       snap.Day,
		StartTime: snap.StartTime,
		EndTime:   snap.EndTime,
		Confirmed: snap.Confirmed,
		Waitlist:  snap.Waitlist,
		Version:   snap.Version,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	}
}

func (s Session) ToDomain() (*domain.Session, error) {
	return domain.RestoreSession(domain.SessionSnapshot{
		ID:        s.ID,
		Name:      s.Name,
		Capacity:  s.Capacity,
		Date:      s.Date,
		Day:       s.Day,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Confirmed: s.Confirmed,
		Waitlist:  s.Waitlist,
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	})
}
