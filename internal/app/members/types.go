package members

import (
	"time"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

type RegisterInput struct {
	DisplayName string
	Email       string
	// Tier is BASIC or PREMIUM, case-insensitive.
	Tier string
}

// MemberView is a member as seen at a point in time: Credits is the effective
// balance, already zero if the balance has expired.
type MemberView struct {
	ID              domain.MemberID
	DisplayName     string
	Email           string
	Tier            domain.Tier
	Credits         int
	CreditsExpireAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func viewOf(m *domain.Member, now time.Time) MemberView {
	s := m.Snapshot()
	return MemberView{
		ID:              s.ID,
		DisplayName:     s.DisplayName,
		Email:           s.Email,
		Tier:            s.Tier,
		Credits:         m.EffectiveCredits(now),
		CreditsExpireAt: s.CreditsExpireAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}
