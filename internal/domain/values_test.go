package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewCapacity(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		n  int
		ok bool
	}{
		{0, false}, {1, true}, {50, true}, {51, false}, {-3, false},
	} {
		_, err := NewCapacity(tc.n)
		if (err == nil) != tc.ok {
			t.Fatalf("NewCapacity(%d) err=%v, want ok=%v", tc.n, err, tc.ok)
		}
		if err != nil && !errors.Is(err, ErrValidation) {
			t.Fatalf("NewCapacity(%d) err=%v, want ErrValidation", tc.n, err)
		}
	}
}

func TestCapacity_IsExceededBy(t *testing.T) {
	t.Parallel()

	c, _ := NewCapacity(2)
	if c.IsExceededBy(1) {
		t.Fatalf("1 of 2 should leave room")
	}
	if !c.IsExceededBy(2) {
		t.Fatalf("2 of 2 should be full")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	got, err := ParseTimeOfDay(" 09:30 ")
	if err != nil {
		t.Fatalf("ParseTimeOfDay: %v", err)
	}
	if got != TimeOfDay(9*60+30) || got.String() != "09:30" {
		t.Fatalf("got=%d (%s)", got, got)
	}
	for _, bad := range []string{"", "9", "24:00", "12:60", "noon"} {
		if _, err := ParseTimeOfDay(bad); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseTimeOfDay(%q) err=%v, want ErrValidation", bad, err)
		}
	}
}

func TestTimeSlot(t *testing.T) {
	t.Parallel()

	nine, _ := NewTimeOfDay(9, 0)
	ten, _ := NewTimeOfDay(10, 0)
	eleven, _ := NewTimeOfDay(11, 0)

	if _, err := NewTimeSlot(time.Monday, ten, nine); err == nil {
		t.Fatalf("end before start should be rejected")
	}
	if _, err := NewTimeSlot(time.Monday, nine, nine); err == nil {
		t.Fatalf("empty slot should be rejected")
	}

	a, _ := NewTimeSlot(time.Monday, nine, ten)
	b, _ := NewTimeSlot(time.Monday, ten, eleven)
	c, _ := NewTimeSlot(time.Monday, nine, eleven)
	d, _ := NewTimeSlot(time.Tuesday, nine, ten)

	if a.Overlaps(b) || b.Overlaps(a) {
		t.Fatalf("back-to-back slots must not overlap")
	}
	if !a.Overlaps(c) || !c.Overlaps(b) {
		t.Fatalf("nested slots must overlap")
	}
	if a.Overlaps(d) {
		t.Fatalf("different days must not overlap")
	}
	if a.DurationMinutes() != 60 {
		t.Fatalf("duration=%d", a.DurationMinutes())
	}
}

func TestNewEmailAddress(t *testing.T) {
	t.Parallel()

	e, err := NewEmailAddress("  ada@example.com ")
	if err != nil || e.String() != "ada@example.com" {
		t.Fatalf("email=%q err=%v", e, err)
	}
	for _, bad := range []string{"", "ada", "Ada <ada@example.com>", "ada@localhost"} {
		if _, err := NewEmailAddress(bad); !errors.Is(err, ErrValidation) {
			t.Fatalf("NewEmailAddress(%q) err=%v, want ErrValidation", bad, err)
		}
	}
}

func TestParseTier(t *testing.T) {
	t.Parallel()

	if tier, err := ParseTier(" premium "); err != nil || tier != TierPremium {
		t.Fatalf("tier=%s err=%v", tier, err)
	}
	if _, err := ParseTier("GOLD"); !errors.Is(err, ErrValidation) {
		t.Fatalf("err=%v, want ErrValidation", err)
	}
	if TierBasic.CanWaitlist() || !TierPremium.CanWaitlist() {
		t.Fatalf("only PREMIUM may waitlist")
	}
	if TierBasic.MonthlyAllotment() != 8 || TierPremium.MonthlyAllotment() != 20 {
		t.Fatalf("allotments=%d/%d", TierBasic.MonthlyAllotment(), TierPremium.MonthlyAllotment())
	}
}

func TestNormalizeHumanName(t *testing.T) {
	t.Parallel()

	if got := NormalizeHumanName("  Morning \t  Yoga  "); got != "Morning Yoga" {
		t.Fatalf("got=%q", got)
	}
}

func TestErrorFamilies(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrInsufficientCredit, ErrSessionFull, ErrWaitlistIneligible, ErrNotCancellable, ErrDuplicateBooking} {
		if !errors.Is(err, ErrBusinessRule) {
			t.Fatalf("%v should be a business rule violation", err)
		}
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
			t.Fatalf("%v belongs to the wrong family", err)
		}
	}
	nf := NewNotFound("session", "s1")
	var target *NotFoundError
	if !errors.Is(nf, ErrNotFound) || !errors.As(nf, &target) || target.Kind != "session" || target.ID != "s1" {
		t.Fatalf("not found=%v", nf)
	}
}
