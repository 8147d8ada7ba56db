package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// CreditAmount is a non-negative number of credits.
type CreditAmount struct{ n int }

func NewCreditAmount(n int) (CreditAmount, error) {
	if n < 0 {
		return CreditAmount{}, invalid("credits", "must be >= 0")
	}
	return CreditAmount{n: n}, nil
}

func (c CreditAmount) Int() int { return c.n }

// Capacity bounds the number of confirmed places in a session.
type Capacity struct{ n int }

const (
	MinCapacity = 1
	MaxCapacity = 50
)

func NewCapacity(n int) (Capacity, error) {
	if n < MinCapacity || n > MaxCapacity {
		return Capacity{}, invalid("capacity", fmt.Sprintf("must be between %d and %d", MinCapacity, MaxCapacity))
	}
	return Capacity{n: n}, nil
}

func (c Capacity) Int() int { return c.n }

// IsExceededBy reports whether count confirmed places leave no room for another.
func (c Capacity) IsExceededBy(count int) bool { return count >= c.n }

// TimeOfDay is minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, invalid("time", fmt.Sprintf("%02d:%02d is not a time of day", hour, minute))
	}
	return TimeOfDay(hour*60 + minute), nil
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, invalid("time", fmt.Sprintf("%q must be HH:MM", s))
	}
	return NewTimeOfDay(t.Hour(), t.Minute())
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()) }

// TimeSlot is a weekly slot: a weekday plus a half-open [start, end) time range.
type TimeSlot struct {
	day   time.Weekday
	start TimeOfDay
	end   TimeOfDay
}

func NewTimeSlot(day time.Weekday, start, end TimeOfDay) (TimeSlot, error) {
	if day < time.Sunday || day > time.Saturday {
		return TimeSlot{}, invalid("day", "unknown weekday")
	}
	if start >= end {
		return TimeSlot{}, invalid("timeSlot", "start must be before end")
	}
	return TimeSlot{day: day, start: start, end: end}, nil
}

func (s TimeSlot) Day() time.Weekday { return s.day }
func (s TimeSlot) Start() TimeOfDay  { return s.start }
func (s TimeSlot) End() TimeOfDay    { return s.end }

// Overlaps is true when both slots fall on the same day and their ranges intersect.
// Back-to-back slots do not overlap.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	if s.day != other.day {
		return false
	}
	return s.start < other.end && other.start < s.end
}

func (s TimeSlot) DurationMinutes() int { return int(s.end - s.start) }

// EmailAddress is a validated bare email address.
type EmailAddress struct{ v string }

func NewEmailAddress(s string) (EmailAddress, error) {
	email := strings.TrimSpace(s)
	if err := validateEmail(email); err != nil {
		return EmailAddress{}, invalid("email", err.Error())
	}
	return EmailAddress{v: email}, nil
}

func (e EmailAddress) String() string { return e.v }

func validateEmail(email string) error {
	if email == "" {
		return errors.New("must be non-empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return errors.New("must be a valid email address")
	}
	// Ensure no "Name <email@x>" format sneaks in.
	if addr.Address != email {
		return errors.New("must be a bare email address")
	}
	if !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return errors.New("domain must contain a dot")
	}
	return nil
}

// Tier is a membership tier.
type Tier string

const (
	TierBasic   Tier = "BASIC"
	TierPremium Tier = "PREMIUM"
)

func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierBasic:
		return TierBasic, nil
	case TierPremium:
		return TierPremium, nil
	default:
		return "", invalid("tier", "must be BASIC or PREMIUM")
	}
}

// MonthlyAllotment is the balance a renewal resets to.
func (t Tier) MonthlyAllotment() int {
	switch t {
	case TierPremium:
		return 20
	default:
		return 8
	}
}

func (t Tier) CanWaitlist() bool { return t == TierPremium }
