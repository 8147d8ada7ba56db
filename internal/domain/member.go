package domain

import "time"

// RenewalWindow is how long a renewed balance stays valid.
const RenewalWindow = 30 * 24 * time.Hour

// Member owns a credit ledger and the tier that decides waitlist eligibility.
type Member struct {
	id          MemberID
	displayName string
	email       EmailAddress
	tier        Tier

	credits         int
	creditsExpireAt *time.Time

	version   int
	createdAt time.Time
	updatedAt time.Time
}

// NewMember registers a member with the tier's monthly allotment.
func NewMember(id MemberID, displayName string, email EmailAddress, tier Tier, now time.Time) (*Member, error) {
	if id == "" {
		return nil, invalid("memberId", "must be non-empty")
	}
	name := NormalizeHumanName(displayName)
	if name == "" {
		return nil, invalid("displayName", "must be non-empty")
	}
	if email.String() == "" {
		return nil, invalid("email", "must be non-empty")
	}
	parsed, err := ParseTier(string(tier))
	if err != nil {
		return nil, err
	}
	m := &Member{
		id:          id,
		displayName: name,
		email:       email,
		tier:        parsed,
		createdAt:   now,
		updatedAt:   now,
	}
	m.Renew(now)
	return m, nil
}

// MemberSnapshot is the flat state of a Member, used by persistence.
type MemberSnapshot struct {
	ID              MemberID
	DisplayName     string
	Email           string
	Tier            Tier
	Credits         int
	CreditsExpireAt *time.Time
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RestoreMember rebuilds a Member from stored state, re-validating it.
func RestoreMember(s MemberSnapshot) (*Member, error) {
	email, err := NewEmailAddress(s.Email)
	if err != nil {
		return nil, err
	}
	tier, err := ParseTier(string(s.Tier))
	if err != nil {
		return nil, err
	}
	credits, err := NewCreditAmount(s.Credits)
	if err != nil {
		return nil, err
	}
	if s.ID == "" {
		return nil, invalid("memberId", "must be non-empty")
	}
	return &Member{
		id:              s.ID,
		displayName:     s.DisplayName,
		email:           email,
		tier:            tier,
		credits:         credits.Int(),
		creditsExpireAt: cloneTime(s.CreditsExpireAt),
		version:         s.Version,
		createdAt:       s.CreatedAt,
		updatedAt:       s.UpdatedAt,
	}, nil
}

func (m *Member) Snapshot() MemberSnapshot {
	return MemberSnapshot{
		ID:              m.id,
		DisplayName:     m.displayName,
		Email:           m.email.String(),
		Tier:            m.tier,
		Credits:         m.credits,
		CreditsExpireAt: cloneTime(m.creditsExpireAt),
		Version:         m.version,
		CreatedAt:       m.createdAt,
		UpdatedAt:       m.updatedAt,
	}
}

func (m *Member) ID() MemberID        { return m.id }
func (m *Member) DisplayName() string { return m.displayName }
func (m *Member) Email() EmailAddress { return m.email }
func (m *Member) Tier() Tier          { return m.tier }
func (m *Member) Version() int        { return m.version }

func (m *Member) CreditsExpireAt() *time.Time { return cloneTime(m.creditsExpireAt) }

// EffectiveCredits is the spendable balance at now. An expired balance reads as zero.
func (m *Member) EffectiveCredits(now time.Time) int {
	if m.expired(now) {
		return 0
	}
	return m.credits
}

func (m *Member) expired(now time.Time) bool {
	return m.creditsExpireAt != nil && !now.Before(*m.creditsExpireAt)
}

// DeductCredit spends one credit.
func (m *Member) DeductCredit(now time.Time) error {
	if m.EffectiveCredits(now) == 0 {
		return ErrInsufficientCredit
	}
	m.credits--
	m.updatedAt = now
	return nil
}

// RefundCredit returns amount credits and pushes the expiry out to at least
// now+expiryDays. Refunding onto an expired balance starts from zero.
func (m *Member) RefundCredit(amount int, expiryDays int, now time.Time) error {
	a, err := NewCreditAmount(amount)
	if err != nil {
		return err
	}
	if expiryDays < 0 {
		return invalid("expiryDays", "must be >= 0")
	}
	if m.expired(now) {
		m.credits = 0
	}
	m.credits += a.Int()
	expiry := now.Add(time.Duration(expiryDays) * 24 * time.Hour)
	if m.creditsExpireAt == nil || expiry.After(*m.creditsExpireAt) {
		m.creditsExpireAt = &expiry
	}
	m.updatedAt = now
	return nil
}

// Renew resets the balance to the tier's monthly allotment and restarts the expiry window.
func (m *Member) Renew(now time.Time) {
	m.credits = m.tier.MonthlyAllotment()
	expiry := now.Add(RenewalWindow)
	m.creditsExpireAt = &expiry
	m.updatedAt = now
}

func (m *Member) CanJoinWaitlist() bool { return m.tier.CanWaitlist() }

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
