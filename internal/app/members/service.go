// Package members registers members and manages their credit allotments.
package members

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	clockport "github.com/Overland-East-Bay/class-booking-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/memberrepo"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/txn"
)

const maxRenewAttempts = 3

type Service struct {
	repo memberrepo.Repository
	tx   txn.Manager
	clk  clockport.Clock
	log  logrus.FieldLogger

	newMemberID func() domain.MemberID
}

// NewService builds the members service. tx must be the manager the booking workflow
// uses, so renewals and bookings never interleave their writes to a member.
func NewService(repo memberrepo.Repository, tx txn.Manager, clk clockport.Clock, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		repo: repo,
		tx:   tx,
		clk:  clk,
		log:  log.WithField("component", "members"),
		newMemberID: func() domain.MemberID {
			return domain.MemberID(uuid.NewString())
		},
	}
}

// Register creates a member holding the tier's monthly allotment.
func (s *Service) Register(ctx context.Context, in RegisterInput) (MemberView, error) {
	tier, err := domain.ParseTier(in.Tier)
	if err != nil {
		return MemberView{}, validationError(err)
	}
	email, err := domain.NewEmailAddress(in.Email)
	if err != nil {
		return MemberView{}, validationError(err)
	}
	if _, err := s.repo.GetByEmail(ctx, email.String()); err == nil {
		return MemberView{}, emailInUse()
	} else if !errors.Is(err, memberrepo.ErrNotFound) {
		return MemberView{}, err
	}

	now := s.clk.Now()
	m, err := domain.NewMember(s.newMemberID(), in.DisplayName, email, tier, now)
	if err != nil {
		return MemberView{}, validationError(err)
	}
	rec := memberrepo.FromDomain(m)
	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, memberrepo.ErrEmailAlreadyInUse) {
			return MemberView{}, emailInUse()
		}
		return MemberView{}, err
	}

	s.log.WithFields(logrus.Fields{"member_id": m.ID(), "tier": tier}).Info("member registered")
	return viewOf(m, now), nil
}

func (s *Service) Get(ctx context.Context, id domain.MemberID) (MemberView, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return MemberView{}, err
	}
	return viewOf(m, s.clk.Now()), nil
}

// Renew resets the member's balance to the monthly allotment. It races with
// bookings on the member's version and retries on conflict.
func (s *Service) Renew(ctx context.Context, id domain.MemberID) (MemberView, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRenewAttempts; attempt++ {
		var (
			m   *domain.Member
			now time.Time
		)
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			if m, err = s.load(ctx, id); err != nil {
				return err
			}
			now = s.clk.Now()
			m.Renew(now)
			return s.repo.Save(ctx, memberrepo.FromDomain(m))
		})
		if err == nil {
			s.log.WithFields(logrus.Fields{"member_id": id, "credits": m.EffectiveCredits(now)}).Info("credits renewed")
			return viewOf(m, now), nil
		}
		if !errors.Is(err, memberrepo.ErrVersionConflict) {
			return MemberView{}, err
		}
		lastErr = err
	}
	return MemberView{}, &Error{
		Status:  409,
		Code:    "CONCURRENT_UPDATE",
		Message: fmt.Sprintf("member was modified concurrently: %v", lastErr),
	}
}

func (s *Service) load(ctx context.Context, id domain.MemberID) (*domain.Member, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return nil, notFound(id)
		}
		return nil, err
	}
	return rec.ToDomain()
}

func emailInUse() error {
	return &Error{
		Status:  409,
		Code:    "EMAIL_ALREADY_IN_USE",
		Message: "email address is already in use",
	}
}
