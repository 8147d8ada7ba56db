package sessions

import (
	"time"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

const dateLayout = "2006-01-02"

type ScheduleInput struct {
	Name     string
	Capacity int
	// Date is a calendar day, YYYY-MM-DD. The weekday of the slot is taken from it.
	Date      string
	StartTime string // HH:MM
	EndTime   string // HH:MM
}

// SessionView is a session with its current roster.
type SessionView struct {
	ID        domain.SessionID
	Name      string
	Capacity  int
	Date      string
	Day       time.Weekday
	StartTime string
	EndTime   string
	StartsAt  time.Time

	Confirmed []domain.MemberID
	Waitlist  []domain.MemberID
	// Available is the number of open confirmed places.
	Available int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func viewOf(s *domain.Session) SessionView {
	snap := s.Snapshot()
	return SessionView{
		ID:        snap.ID,
		Name:      snap.Name,
		Capacity:  snap.Capacity,
		Date:      snap.Date.Format(dateLayout),
		Day:       snap.Day,
		StartTime: snap.StartTime.String(),
		EndTime:   snap.EndTime.String(),
		StartsAt:  s.StartsAt(),
		Confirmed: snap.Confirmed,
		Waitlist:  snap.Waitlist,
		Available: snap.Capacity - len(snap.Confirmed),
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	}
}
