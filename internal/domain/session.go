package domain

import (
	"fmt"
	"time"
)

// Session is a scheduled, capacity-bounded class instance.
//
// Invariants:
//   - len(confirmed) <= capacity
//   - a member appears at most once across confirmed and waitlist
//   - every waitlisted member was eligible to waitlist when added
type Session struct {
	id       SessionID
	name     string
	capacity Capacity
	date     time.Time // calendar day at 00:00 UTC
	slot     TimeSlot

	confirmed []MemberID
	waitlist  []MemberID

	version   int
	createdAt time.Time
	updatedAt time.Time
}

// NewSession schedules an empty session on date in slot. The slot's weekday must
// match the date.
func NewSession(id SessionID, name string, capacity Capacity, date time.Time, slot TimeSlot, now time.Time) (*Session, error) {
	if id == "" {
		return nil, invalid("sessionId", "must be non-empty")
	}
	n := NormalizeHumanName(name)
	if n == "" {
		return nil, invalid("name", "must be non-empty")
	}
	if capacity.Int() == 0 {
		return nil, invalid("capacity", "must be set")
	}
	if slot.DurationMinutes() <= 0 {
		return nil, invalid("timeSlot", "must be set")
	}
	d := truncateToDate(date)
	if d.Weekday() != slot.Day() {
		return nil, invalid("date", fmt.Sprintf("%s falls on %s, slot is on %s", d.Format("2006-01-02"), d.Weekday(), slot.Day()))
	}
	return &Session{
		id:        id,
		name:      n,
		capacity:  capacity,
		date:      d,
		slot:      slot,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// SessionSnapshot is the flat state of a Session, used by persistence.
type SessionSnapshot struct {
	ID        SessionID
	Name      string
	Capacity  int
	Date      time.Time
	Day       time.Weekday
	StartTime TimeOfDay
	EndTime   TimeOfDay
	Confirmed []MemberID
	Waitlist  []MemberID
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RestoreSession rebuilds a Session from stored state, re-checking its invariants.
func RestoreSession(s SessionSnapshot) (*Session, error) {
	capacity, err := NewCapacity(s.Capacity)
	if err != nil {
		return nil, err
	}
	slot, err := NewTimeSlot(s.Day, s.StartTime, s.EndTime)
	if err != nil {
		return nil, err
	}
	if s.ID == "" {
		return nil, invalid("sessionId", "must be non-empty")
	}
	if len(s.Confirmed) > capacity.Int() {
		return nil, invalid("confirmed", "exceeds capacity")
	}
	seen := make(map[MemberID]struct{}, len(s.Confirmed)+len(s.Waitlist))
	for _, ids := range [][]MemberID{s.Confirmed, s.Waitlist} {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				return nil, invalid("members", fmt.Sprintf("member %q listed twice", id))
			}
			seen[id] = struct{}{}
		}
	}
	return &Session{
		id:        s.ID,
		name:      s.Name,
		capacity:  capacity,
		date:      truncateToDate(s.Date),
		slot:      slot,
		confirmed: append([]MemberID(nil), s.Confirmed...),
		waitlist:  append([]MemberID(nil), s.Waitlist...),
		version:   s.Version,
		createdAt: s.CreatedAt,
		updatedAt: s.UpdatedAt,
	}, nil
}

func (s *Session) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:        s.id,
		Name:      s.name,
		Capacity:  s.capacity.Int(),
		Date:      s.date,
		Day:       s.slot.Day(),
		StartTime: s.slot.Start(),
		EndTime:   s.slot.End(),
		Confirmed: s.Confirmed(),
		Waitlist:  s.Waitlist(),
		Version:   s.version,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) ID() SessionID      { return s.id }
func (s *Session) Name() string       { return s.name }
func (s *Session) Capacity() Capacity { return s.capacity }
func (s *Session) Date() time.Time    { return s.date }
func (s *Session) Slot() TimeSlot     { return s.slot }
func (s *Session) Version() int       { return s.version }

// StartsAt is the absolute start instant of the session (UTC).
func (s *Session) StartsAt() time.Time {
	return s.date.Add(time.Duration(s.slot.Start()) * time.Minute)
}

// EndsAt is the absolute end instant of the session (UTC).
func (s *Session) EndsAt() time.Time {
	return s.date.Add(time.Duration(s.slot.End()) * time.Minute)
}

// Confirmed returns a copy of the confirmed member ids in booking order.
func (s *Session) Confirmed() []MemberID { return append([]MemberID{}, s.confirmed...) }

// Waitlist returns a copy of the waitlist, head first.
func (s *Session) Waitlist() []MemberID { return append([]MemberID{}, s.waitlist...) }

func (s *Session) IsFull() bool { return s.capacity.IsExceededBy(len(s.confirmed)) }

func (s *Session) IsConfirmed(id MemberID) bool { return indexOf(s.confirmed, id) >= 0 }

func (s *Session) IsWaitlisted(id MemberID) bool { return indexOf(s.waitlist, id) >= 0 }

// AddConfirmed gives memberID a confirmed place.
func (s *Session) AddConfirmed(memberID MemberID) error {
	if s.IsFull() {
		return ErrSessionFull
	}
	if s.IsConfirmed(memberID) || s.IsWaitlisted(memberID) {
		return ErrDuplicateBooking
	}
	s.confirmed = append(s.confirmed, memberID)
	return nil
}

// RemoveConfirmed vacates memberID's place. When the waitlist is non-empty its head
// moves into the freed place and is returned with ok=true. Credits are the caller's
// concern; this only manages membership sets.
func (s *Session) RemoveConfirmed(memberID MemberID) (promoted MemberID, ok bool, err error) {
	i := indexOf(s.confirmed, memberID)
	if i < 0 {
		return "", false, NewNotFound("confirmed member", string(memberID))
	}
	s.confirmed = removeAt(s.confirmed, i)
	if len(s.waitlist) == 0 {
		return "", false, nil
	}
	head := s.waitlist[0]
	s.waitlist = removeAt(s.waitlist, 0)
	s.confirmed = append(s.confirmed, head)
	return head, true, nil
}

// AddToWaitlist queues member at the tail. Only a full session has a waitlist.
func (s *Session) AddToWaitlist(member *Member) error {
	if !s.IsFull() {
		return invalid("waitlist", "session has open places")
	}
	if !member.CanJoinWaitlist() {
		return ErrWaitlistIneligible
	}
	if s.IsWaitlisted(member.ID()) || s.IsConfirmed(member.ID()) {
		return ErrDuplicateBooking
	}
	s.waitlist = append(s.waitlist, member.ID())
	return nil
}

// RemoveFromWaitlist drops memberID from the queue, keeping the order of the rest.
func (s *Session) RemoveFromWaitlist(memberID MemberID) error {
	i := indexOf(s.waitlist, memberID)
	if i < 0 {
		return NewNotFound("waitlisted member", string(memberID))
	}
	s.waitlist = removeAt(s.waitlist, i)
	return nil
}

// WaitlistPosition is the 1-based position of memberID, or 0 when not queued.
func (s *Session) WaitlistPosition(memberID MemberID) int {
	return indexOf(s.waitlist, memberID) + 1
}

// Touch records a modification time.
func (s *Session) Touch(now time.Time) { s.updatedAt = now }

func indexOf(ids []MemberID, id MemberID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func removeAt(ids []MemberID, i int) []MemberID {
	out := make([]MemberID, 0, len(ids)-1)
	out = append(out, ids[:i]...)
	return append(out, ids[i+1:]...)
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
