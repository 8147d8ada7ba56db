package memberrepo

import (
	"context"
	"time"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

// Member is the persistence shape used by the member repository.
// It is an internal record, not an HTTP DTO.
type Member struct {
	ID          domain.MemberID
	DisplayName string
	Email       string
	Tier        domain.Tier

	// Credits is the stored balance; expiry is applied on read by the domain.
	Credits int
	// CreditsExpireAt is nil when the balance never expires.
	CreditsExpireAt *time.Time

	// Version is bumped by the repository on every successful write.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides access to persisted members.
//
// Save is a compare-and-swap: it succeeds only if the stored version equals m.Version,
// and returns ErrVersionConflict otherwise.
type Repository interface {
	Create(ctx context.Context, m Member) error
	Save(ctx context.Context, m Member) error

	GetByID(ctx context.Context, id domain.MemberID) (Member, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (Member, error)
}

func FromDomain(m *domain.Member) Member {
	s := m.Snapshot()
	return Member{
		ID:              s.ID,
		DisplayName:     s.DisplayName,
		Email:           s.Email,
		Tier:            s.Tier,
		Credits:         s.Credits,
		CreditsExpireAt: s.CreditsExpireAt,
		Version:         s.Version,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func (m Member) ToDomain() (*domain.Member, error) {
	return domain.RestoreMember(domain.MemberSnapshot{
		ID:              m.ID,
		DisplayName:     m.DisplayName,
		Email:           m.Email,
		Tier:            m.Tier,
		Credits:         m.Credits,
		CreditsExpireAt: m.CreditsExpireAt,
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	})
}
