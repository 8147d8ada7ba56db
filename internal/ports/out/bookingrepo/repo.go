package bookingrepo

import (
	"context"
	"time"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

// Booking is the persistence shape used by the booking repository.
type Booking struct {
	ID        domain.BookingID
	MemberID  domain.MemberID
	SessionID domain.SessionID
	Status    domain.BookingStatus

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time

	Version int
}

// Repository provides access to persisted bookings.
//
// At most one non-cancelled booking may exist per (member, session); Create and Save
// return ErrActiveBookingExists when a write would break that.
//
// Result ordering expectations:
// - List methods return bookings ordered by CreatedAt ascending, then ID.
type Repository interface {
	Create(ctx context.Context, b Booking) error
	Save(ctx context.Context, b Booking) error

	GetByID(ctx context.Context, id domain.BookingID) (Booking, error)

	// FindActiveByMemberAndSession returns the non-cancelled booking for the pair, or ErrNotFound.
	FindActiveByMemberAndSession(ctx context.Context, memberID domain.MemberID, sessionID domain.SessionID) (Booking, error)

	ListBySession(ctx context.Context, sessionID domain.SessionID) ([]Booking, error)
	ListByMember(ctx context.Context, memberID domain.MemberID) ([]Booking, error)
}

func FromDomain(b *domain.Booking) Booking {
	s := b.Snapshot()
	return Booking{
		ID:          s.ID,
		MemberID:    s.MemberID,
		SessionID:   s.SessionID,
		Status:      s.Status,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		CancelledAt: s.CancelledAt,
		Version:     s.Version,
	}
}

func (b Booking) ToDomain() (*domain.Booking, error) {
	return domain.RestoreBooking(domain.BookingSnapshot{
		ID:          b.ID,
		MemberID:    b.MemberID,
		SessionID:   b.SessionID,
		Status:      b.Status,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
		CancelledAt: b.CancelledAt,
		Version:     b.Version,
	})
}
