package domain

// MemberID is an internal identifier for a member record.
type MemberID string

// SessionID is an internal identifier for a scheduled class session.
type SessionID string

// BookingID is an internal identifier for a booking record.
type BookingID string
