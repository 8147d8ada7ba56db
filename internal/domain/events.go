package domain

import "time"

// Event is a notification descriptor recorded by an aggregate and dispatched by
// the application layer after the aggregate has been persisted.
type Event interface {
	EventName() string
	Booking() BookingID
}

// EventHeader carries the identifiers every booking event shares.
type EventHeader struct {
	BookingID  BookingID `json:"booking_id"`
	MemberID   MemberID  `json:"member_id"`
	SessionID  SessionID `json:"session_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h EventHeader) Booking() BookingID { return h.BookingID }

type BookingConfirmed struct {
	EventHeader
}

func (BookingConfirmed) EventName() string { return "BookingConfirmed" }

type AddedToWaitlist struct {
	EventHeader
	// Position is the 1-based waitlist position at the time of joining.
	Position int `json:"position"`
}

func (AddedToWaitlist) EventName() string { return "AddedToWaitlist" }

type BookingCancelled struct {
	EventHeader
	PreviousStatus BookingStatus `json:"previous_status"`
	CreditRefunded bool          `json:"credit_refunded"`
}

func (BookingCancelled) EventName() string { return "BookingCancelled" }

type PromotedFromWaitlist struct {
	EventHeader
}

func (PromotedFromWaitlist) EventName() string { return "PromotedFromWaitlist" }

type SkippedInsufficientCredits struct {
	EventHeader
}

func (SkippedInsufficientCredits) EventName() string { return "SkippedInsufficientCredits" }
