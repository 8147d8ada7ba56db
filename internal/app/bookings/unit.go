package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/bookingrepo"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/memberrepo"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/sessionrepo"
)

// unit collects the aggregates one workflow run mutated. Only these are written.
type unit struct {
	session *domain.Session
	members []*domain.Member
	created []*domain.Booking
	updated []*domain.Booking
}

// persist writes the unit in one transaction. Every aggregate the unit rewrites is
// version-checked before the first write: the memory backend cannot roll back, so a
// lost race must fail while nothing has been written yet.
func (s *Service) persist(ctx context.Context, u *unit) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.checkVersions(ctx, u); err != nil {
			return err
		}
		for _, m := range u.members {
			if err := s.members.Save(ctx, memberrepo.FromDomain(m)); err != nil {
				return fmt.Errorf("save member %s: %w", m.ID(), mapNotFound(err, memberrepo.ErrNotFound, "member", string(m.ID())))
			}
		}
		if u.session != nil {
			if err := s.sessions.Save(ctx, sessionrepo.FromDomain(u.session)); err != nil {
				return fmt.Errorf("save session %s: %w", u.session.ID(), mapNotFound(err, sessionrepo.ErrNotFound, "session", string(u.session.ID())))
			}
		}
		for _, b := range u.created {
			if err := s.bookings.Create(ctx, bookingrepo.FromDomain(b)); err != nil {
				return mapBookingErr(err)
			}
		}
		for _, b := range u.updated {
			if err := s.bookings.Save(ctx, bookingrepo.FromDomain(b)); err != nil {
				return fmt.Errorf("save booking %s: %w", b.ID(), mapBookingErr(err))
			}
		}
		return nil
	})
}

func (s *Service) checkVersions(ctx context.Context, u *unit) error {
	for _, m := range u.members {
		cur, err := s.members.GetByID(ctx, m.ID())
		if err != nil {
			return mapNotFound(err, memberrepo.ErrNotFound, "member", string(m.ID()))
		}
		if cur.Version != m.Version() {
			return memberrepo.ErrVersionConflict
		}
	}
	if u.session != nil {
		cur, err := s.sessions.GetByID(ctx, u.session.ID())
		if err != nil {
			return mapNotFound(err, sessionrepo.ErrNotFound, "session", string(u.session.ID()))
		}
		if cur.Version != u.session.Version() {
			return sessionrepo.ErrVersionConflict
		}
	}
	for _, b := range u.updated {
		cur, err := s.bookings.GetByID(ctx, b.ID())
		if err != nil {
			return mapNotFound(err, bookingrepo.ErrNotFound, "booking", string(b.ID()))
		}
		if cur.Version != b.Version() {
			return bookingrepo.ErrVersionConflict
		}
	}
	return nil
}

// promote fills the place vacated in u.session. candidate has already been moved from
// the waitlist head into confirmed. Candidates who cannot pay are removed again and their
// bookings cancelled, and the next head is tried. Every pass shrinks the waitlist, so the
// loop runs at most once per queued member.
func (s *Service) promote(ctx context.Context, u *unit, candidate domain.MemberID, now time.Time) error {
	session := u.session
	limit := len(session.Waitlist()) + 1
	for i := 0; i < limit; i++ {
		member, err := s.loadMember(ctx, candidate)
		if err != nil {
			return err
		}
		rec, err := s.bookings.FindActiveByMemberAndSession(ctx, candidate, session.ID())
		if err != nil {
			return fmt.Errorf("waitlisted booking for member %s: %w", candidate, err)
		}
		booking, err := rec.ToDomain()
		if err != nil {
			return err
		}

		err = member.DeductCredit(now)
		if err == nil {
			if err := booking.Promote(now); err != nil {
				return err
			}
			u.members = append(u.members, member)
			u.updated = append(u.updated, booking)
			s.log.WithFields(logrus.Fields{
				"booking_id": booking.ID(),
				"member_id":  candidate,
				"session_id": session.ID(),
			}).Info("promoted from waitlist")
			return nil
		}
		if !errors.Is(err, domain.ErrInsufficientCredit) {
			return err
		}

		// Revert: the candidate leaves confirmed and does not return to the queue.
		next, more, err := session.RemoveConfirmed(candidate)
		if err != nil {
			return fmt.Errorf("revert promotion: %w", err)
		}
		if err := booking.CancelBySystem(now); err != nil {
			return err
		}
		u.updated = append(u.updated, booking)
		s.log.WithFields(logrus.Fields{
			"booking_id": booking.ID(),
			"member_id":  candidate,
			"session_id": session.ID(),
		}).Info("promotion skipped: insufficient credit")
		if !more {
			return nil
		}
		candidate = next
	}
	return fmt.Errorf("promotion did not settle within %d candidates", limit)
}

func (s *Service) loadMember(ctx context.Context, id domain.MemberID) (*domain.Member, error) {
	rec, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return nil, domain.NewNotFound("member", string(id))
		}
		return nil, err
	}
	return rec.ToDomain()
}

func (s *Service) loadSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	rec, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrNotFound) {
			return nil, domain.NewNotFound("session", string(id))
		}
		return nil, err
	}
	return rec.ToDomain()
}

func (s *Service) loadBooking(ctx context.Context, id domain.BookingID) (*domain.Booking, error) {
	rec, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingrepo.ErrNotFound) {
			return nil, domain.NewNotFound("booking", string(id))
		}
		return nil, err
	}
	return rec.ToDomain()
}

// mapNotFound turns a repository's not-found sentinel into the domain error for kind/id.
func mapNotFound(err, sentinel error, kind, id string) error {
	if errors.Is(err, sentinel) {
		return domain.NewNotFound(kind, id)
	}
	return err
}

func mapBookingErr(err error) error {
	if errors.Is(err, bookingrepo.ErrActiveBookingExists) {
		return domain.ErrDuplicateBooking
	}
	return err
}

func isVersionConflict(err error) bool {
	return errors.Is(err, memberrepo.ErrVersionConflict) ||
		errors.Is(err, sessionrepo.ErrVersionConflict) ||
		errors.Is(err, bookingrepo.ErrVersionConflict)
}
