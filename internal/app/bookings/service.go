// Package bookings coordinates members, sessions and bookings for reservation and
// cancellation, including waitlist promotion.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/bookingrepo"
	clockport "github.com/Overland-East-Bay/class-booking-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/locker"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/memberrepo"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/notify"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/sessionrepo"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/txn"
)

const tracerName = "github.com/Overland-East-Bay/class-booking-api/internal/app/bookings"

// DefaultRefundExpiryDays is used when Deps.RefundExpiryDays is zero.
const DefaultRefundExpiryDays = 30

// maxAttempts bounds retries of a unit that lost a version race on a member.
const maxAttempts = 3

// ErrConcurrentUpdate is returned when a unit kept losing version races.
var ErrConcurrentUpdate = errors.New("concurrent update; retry the request")

type Deps struct {
	Members  memberrepo.Repository
	Sessions sessionrepo.Repository
	Bookings bookingrepo.Repository
	Locks    locker.Locker
	Tx       txn.Manager
	Sink     notify.Sink
	Clock    clockport.Clock
	Logger   logrus.FieldLogger

	// RefundExpiryDays is how long a refunded credit stays valid.
	RefundExpiryDays int
}

type Service struct {
	members  memberrepo.Repository
	sessions sessionrepo.Repository
	bookings bookingrepo.Repository
	locks    locker.Locker
	tx       txn.Manager
	sink     notify.Sink
	clk      clockport.Clock
	log      logrus.FieldLogger
	tracer   trace.Tracer

	refundExpiryDays int
	newBookingID     func() domain.BookingID
}

func NewService(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	days := d.RefundExpiryDays
	if days <= 0 {
		days = DefaultRefundExpiryDays
	}
	return &Service{
		members:          d.Members,
		sessions:         d.Sessions,
		bookings:         d.Bookings,
		locks:            d.Locks,
		tx:               d.Tx,
		sink:             d.Sink,
		clk:              d.Clock,
		log:              log.WithField("component", "bookings"),
		tracer:           otel.Tracer(tracerName),
		refundExpiryDays: days,
		newBookingID: func() domain.BookingID {
			return domain.BookingID(uuid.NewString())
		},
	}
}

// Reserve books memberID into sessionID: a confirmed place paid with one credit
// while the session has room, otherwise a waitlist entry for members whose tier allows it.
func (s *Service) Reserve(ctx context.Context, memberID domain.MemberID, sessionID domain.SessionID) (*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.Reserve", trace.WithAttributes(
		attribute.String("member.id", string(memberID)),
		attribute.String("session.id", string(sessionID)),
	))
	defer span.End()

	unlock, err := s.locks.Lock(ctx, sessionLockKey(sessionID))
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("lock session: %w", err))
	}
	defer unlock()

	var booking *domain.Booking
	err = s.retry(ctx, func() error {
		var err error
		booking, err = s.reserveOnce(ctx, memberID, sessionID)
		return err
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	span.SetAttributes(attribute.String("booking.status", string(booking.Status())))
	s.log.WithFields(logrus.Fields{
		"booking_id": booking.ID(),
		"member_id":  memberID,
		"session_id": sessionID,
		"status":     booking.Status(),
	}).Info("booking reserved")
	s.dispatch(ctx, booking.PullEvents())
	return booking, nil
}

func (s *Service) reserveOnce(ctx context.Context, memberID domain.MemberID, sessionID domain.SessionID) (*domain.Booking, error) {
	member, err := s.loadMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.bookings.FindActiveByMemberAndSession(ctx, memberID, sessionID); err == nil {
		return nil, domain.ErrDuplicateBooking
	} else if !errors.Is(err, bookingrepo.ErrNotFound) {
		return nil, err
	}

	now := s.clk.Now()
	u := &unit{session: session}

	var booking *domain.Booking
	if !session.IsFull() {
		if err := member.DeductCredit(now); err != nil {
			return nil, err
		}
		if err := session.AddConfirmed(memberID); err != nil {
			return nil, err
		}
		booking, err = domain.NewConfirmedBooking(s.newBookingID(), memberID, sessionID, now)
		if err != nil {
			return nil, err
		}
		u.members = append(u.members, member)
	} else {
		// A full session is final for members who cannot queue.
		if !member.CanJoinWaitlist() {
			return nil, domain.ErrSessionFull
		}
		if err := session.AddToWaitlist(member); err != nil {
			return nil, err
		}
		booking, err = domain.NewWaitlistedBooking(s.newBookingID(), memberID, sessionID, session.WaitlistPosition(memberID), now)
		if err != nil {
			return nil, err
		}
	}
	u.created = append(u.created, booking)
	session.Touch(now)

	if err := s.persist(ctx, u); err != nil {
		return nil, err
	}
	return booking, nil
}

// Cancel cancels bookingID on the member's behalf. A confirmed place is refunded and
// offered to the waitlist; a waitlist entry is simply dropped.
func (s *Service) Cancel(ctx context.Context, bookingID domain.BookingID) (*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.Cancel", trace.WithAttributes(
		attribute.String("booking.id", string(bookingID)),
	))
	defer span.End()

	// The owning session is needed to pick the lock; the booking is re-read under it.
	initial, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	unlock, err := s.locks.Lock(ctx, sessionLockKey(initial.SessionID()))
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("lock session: %w", err))
	}
	defer unlock()

	var u *unit
	err = s.retry(ctx, func() error {
		var err error
		u, err = s.cancelOnce(ctx, bookingID)
		return err
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	cancelled := u.updated[0]
	s.log.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"member_id":  cancelled.MemberID(),
		"session_id": cancelled.SessionID(),
	}).Info("booking cancelled")
	for _, b := range u.updated {
		s.dispatch(ctx, b.PullEvents())
	}
	return cancelled, nil
}

func (s *Service) cancelOnce(ctx context.Context, bookingID domain.BookingID) (*unit, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	session, err := s.loadSession(ctx, booking.SessionID())
	if err != nil {
		return nil, err
	}
	member, err := s.loadMember(ctx, booking.MemberID())
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	prev := booking.Status()
	if err := booking.Cancel(session.StartsAt(), now); err != nil {
		return nil, err
	}
	u := &unit{session: session, updated: []*domain.Booking{booking}}

	switch prev {
	case domain.BookingStatusConfirmed:
		promoted, ok, err := session.RemoveConfirmed(member.ID())
		if err != nil {
			return nil, fmt.Errorf("vacate confirmed place: %w", err)
		}
		if err := member.RefundCredit(1, s.refundExpiryDays, now); err != nil {
			return nil, err
		}
		u.members = append(u.members, member)
		if ok {
			if err := s.promote(ctx, u, promoted, now); err != nil {
				return nil, err
			}
		}
	case domain.BookingStatusWaitlisted:
		// Waitlisted bookings never held a credit.
		if err := session.RemoveFromWaitlist(member.ID()); err != nil {
			return nil, fmt.Errorf("leave waitlist: %w", err)
		}
	}
	session.Touch(now)

	if err := s.persist(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id domain.BookingID) (*domain.Booking, error) {
	return s.loadBooking(ctx, id)
}

func (s *Service) MarkAttended(ctx context.Context, id domain.BookingID) (*domain.Booking, error) {
	return s.settle(ctx, id, (*domain.Booking).MarkAttended)
}

func (s *Service) MarkNoShow(ctx context.Context, id domain.BookingID) (*domain.Booking, error) {
	return s.settle(ctx, id, (*domain.Booking).MarkNoShow)
}

// settle applies an attendance outcome under the owning session's lock, so it cannot
// interleave with a cancellation of the same booking.
func (s *Service) settle(ctx context.Context, id domain.BookingID, apply func(*domain.Booking, time.Time) error) (*domain.Booking, error) {
	initial, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, sessionLockKey(initial.SessionID()))
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	var booking *domain.Booking
	err = s.retry(ctx, func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context) error {
			b, err := s.loadBooking(ctx, id)
			if err != nil {
				return err
			}
			if err := apply(b, s.clk.Now()); err != nil {
				return err
			}
			if err := s.bookings.Save(ctx, bookingrepo.FromDomain(b)); err != nil {
				return mapBookingErr(err)
			}
			booking = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": id, "status": booking.Status()}).Info("attendance recorded")
	return booking, nil
}

// ListForSession returns every booking of sessionID, cancelled ones included, oldest first.
func (s *Service) ListForSession(ctx context.Context, sessionID domain.SessionID) ([]*domain.Booking, error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	recs, err := s.bookings.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Booking, 0, len(recs))
	for _, r := range recs {
		b, err := r.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("restore booking %s: %w", r.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// ListForMember returns every booking of memberID, oldest first.
func (s *Service) ListForMember(ctx context.Context, memberID domain.MemberID) ([]*domain.Booking, error) {
	if _, err := s.loadMember(ctx, memberID); err != nil {
		return nil, err
	}
	recs, err := s.bookings.ListByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Booking, 0, len(recs))
	for _, r := range recs {
		b, err := r.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("restore booking %s: %w", r.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Service) dispatch(ctx context.Context, events []domain.Event) {
	for _, e := range events {
		if err := s.sink.Emit(ctx, e); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"event":      e.EventName(),
				"booking_id": e.Booking(),
			}).Warn("notification not delivered")
		}
	}
}

// retry reruns fn while it loses version races. fn must reload everything it mutates.
func (s *Service) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if !isVersionConflict(err) {
			return err
		}
		s.log.WithField("attempt", attempt).Debug("version conflict; retrying")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
}

// fail records err on span. Business-rule outcomes are expected and are not marked as span errors.
func (s *Service) fail(span trace.Span, err error) error {
	if errors.Is(err, domain.ErrBusinessRule) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		span.SetAttributes(attribute.String("booking.outcome", err.Error()))
		s.log.WithError(err).Debug("booking request rejected")
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func sessionLockKey(id domain.SessionID) string { return "session:" + string(id) }
