package domain

import (
	"fmt"
	"time"
)

// CancellationCutoff is how long before session start a booking stops being cancellable.
const CancellationCutoff = 2 * time.Hour

type BookingStatus string

const (
	BookingStatusConfirmed  BookingStatus = "CONFIRMED"
	BookingStatusWaitlisted BookingStatus = "WAITLISTED"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
	BookingStatusAttended   BookingStatus = "ATTENDED"
	BookingStatusNoShow     BookingStatus = "NO_SHOW"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusWaitlisted, BookingStatusCancelled, BookingStatusAttended, BookingStatusNoShow:
		return true
	}
	return false
}

// Terminal statuses admit no further transitions.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusAttended || s == BookingStatusNoShow
}

// Active bookings hold or queue for a place.
func (s BookingStatus) Active() bool {
	return s == BookingStatusConfirmed || s == BookingStatusWaitlisted
}

// Booking records one member's reservation of one session. It refers to both by id only.
type Booking struct {
	id        BookingID
	memberID  MemberID
	sessionID SessionID
	status    BookingStatus

	createdAt   time.Time
	updatedAt   time.Time
	cancelledAt *time.Time

	version int
	events  []Event
}

// NewConfirmedBooking records a booking that holds a confirmed place.
func NewConfirmedBooking(id BookingID, memberID MemberID, sessionID SessionID, now time.Time) (*Booking, error) {
	b, err := newBooking(id, memberID, sessionID, BookingStatusConfirmed, now)
	if err != nil {
		return nil, err
	}
	b.record(BookingConfirmed{EventHeader: b.header(now)})
	return b, nil
}

// NewWaitlistedBooking records a booking queued at position on the session's waitlist.
func NewWaitlistedBooking(id BookingID, memberID MemberID, sessionID SessionID, position int, now time.Time) (*Booking, error) {
	b, err := newBooking(id, memberID, sessionID, BookingStatusWaitlisted, now)
	if err != nil {
		return nil, err
	}
	b.record(AddedToWaitlist{EventHeader: b.header(now), Position: position})
	return b, nil
}

func newBooking(id BookingID, memberID MemberID, sessionID SessionID, status BookingStatus, now time.Time) (*Booking, error) {
	switch {
	case id == "":
		return nil, invalid("bookingId", "must be non-empty")
	case memberID == "":
		return nil, invalid("memberId", "must be non-empty")
	case sessionID == "":
		return nil, invalid("sessionId", "must be non-empty")
	}
	return &Booking{
		id:        id,
		memberID:  memberID,
		sessionID: sessionID,
		status:    status,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// BookingSnapshot is the flat state of a Booking, used by persistence.
type BookingSnapshot struct {
	ID          BookingID
	MemberID    MemberID
	SessionID   SessionID
	Status      BookingStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time
	Version     int
}

func RestoreBooking(s BookingSnapshot) (*Booking, error) {
	if !s.Status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown booking status %q", s.Status))
	}
	b, err := newBooking(s.ID, s.MemberID, s.SessionID, s.Status, s.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.updatedAt = s.UpdatedAt
	b.cancelledAt = cloneTime(s.CancelledAt)
	b.version = s.Version
	return b, nil
}

func (b *Booking) Snapshot() BookingSnapshot {
	return BookingSnapshot{
		ID:          b.id,
		MemberID:    b.memberID,
		SessionID:   b.sessionID,
		Status:      b.status,
		CreatedAt:   b.createdAt,
		UpdatedAt:   b.updatedAt,
		CancelledAt: cloneTime(b.cancelledAt),
		Version:     b.version,
	}
}

func (b *Booking) ID() BookingID           { return b.id }
func (b *Booking) MemberID() MemberID      { return b.memberID }
func (b *Booking) SessionID() SessionID    { return b.sessionID }
func (b *Booking) Status() BookingStatus   { return b.status }
func (b *Booking) CreatedAt() time.Time    { return b.createdAt }
func (b *Booking) CancelledAt() *time.Time { return cloneTime(b.cancelledAt) }
func (b *Booking) Version() int            { return b.version }

// IsCancellable is true for an active booking while more than CancellationCutoff
// remains before sessionStart.
func (b *Booking) IsCancellable(sessionStart, now time.Time) bool {
	if !b.status.Active() {
		return false
	}
	return sessionStart.Sub(now) > CancellationCutoff
}

// Cancel is the member-initiated cancellation.
func (b *Booking) Cancel(sessionStart, now time.Time) error {
	if !b.IsCancellable(sessionStart, now) {
		return ErrNotCancellable
	}
	prev := b.status
	b.markCancelled(now)
	b.record(BookingCancelled{
		EventHeader:    b.header(now),
		PreviousStatus: prev,
		CreditRefunded: prev == BookingStatusConfirmed,
	})
	return nil
}

// CancelBySystem cancels a waitlisted booking whose promotion could not be paid for.
// It is not subject to the cancellation cutoff.
func (b *Booking) CancelBySystem(now time.Time) error {
	if b.status != BookingStatusWaitlisted {
		return b.wrongStatus("cancel by system", BookingStatusWaitlisted)
	}
	b.markCancelled(now)
	b.record(SkippedInsufficientCredits{EventHeader: b.header(now)})
	return nil
}

func (b *Booking) MarkAttended(now time.Time) error {
	if b.status != BookingStatusConfirmed {
		return b.wrongStatus("mark attended", BookingStatusConfirmed)
	}
	b.status = BookingStatusAttended
	b.updatedAt = now
	return nil
}

func (b *Booking) MarkNoShow(now time.Time) error {
	if b.status != BookingStatusConfirmed {
		return b.wrongStatus("mark no-show", BookingStatusConfirmed)
	}
	b.status = BookingStatusNoShow
	b.updatedAt = now
	return nil
}

// Promote confirms a waitlisted booking.
func (b *Booking) Promote(now time.Time) error {
	if b.status != BookingStatusWaitlisted {
		return b.wrongStatus("promote", BookingStatusWaitlisted)
	}
	b.status = BookingStatusConfirmed
	b.updatedAt = now
	b.record(PromotedFromWaitlist{EventHeader: b.header(now)})
	return nil
}

// PullEvents returns the events recorded since the last pull and clears them.
func (b *Booking) PullEvents() []Event {
	out := b.events
	b.events = nil
	return out
}

func (b *Booking) markCancelled(now time.Time) {
	b.status = BookingStatusCancelled
	b.cancelledAt = &now
	b.updatedAt = now
}

func (b *Booking) record(e Event) { b.events = append(b.events, e) }

func (b *Booking) header(now time.Time) EventHeader {
	return EventHeader{BookingID: b.id, MemberID: b.memberID, SessionID: b.sessionID, OccurredAt: now}
}

func (b *Booking) wrongStatus(op string, want BookingStatus) error {
	return invalid("status", fmt.Sprintf("cannot %s a %s booking (must be %s)", op, b.status, want))
}
