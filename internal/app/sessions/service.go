// Package sessions schedules class sessions and reports their rosters.
package sessions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	clockport "github.com/Overland-East-Bay/class-booking-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/sessionrepo"
)

type Service struct {
	repo sessionrepo.Repository
	clk  clockport.Clock
	log  logrus.FieldLogger

	newSessionID func() domain.SessionID
}

func NewService(repo sessionrepo.Repository, clk clockport.Clock, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		repo: repo,
		clk:  clk,
		log:  log.WithField("component", "sessions"),
		newSessionID: func() domain.SessionID {
			return domain.SessionID(uuid.NewString())
		},
	}
}

// Schedule creates an empty session. Sessions may not be scheduled in the past.
func (s *Service) Schedule(ctx context.Context, in ScheduleInput) (SessionView, error) {
	date, err := time.Parse(dateLayout, strings.TrimSpace(in.Date))
	if err != nil {
		return SessionView{}, invalid("date", "must be YYYY-MM-DD")
	}
	start, err := domain.ParseTimeOfDay(in.StartTime)
	if err != nil {
		return SessionView{}, invalid("startTime", "must be HH:MM")
	}
	end, err := domain.ParseTimeOfDay(in.EndTime)
	if err != nil {
		return SessionView{}, invalid("endTime", "must be HH:MM")
	}
	slot, err := domain.NewTimeSlot(date.Weekday(), start, end)
	if err != nil {
		return SessionView{}, validationError(err)
	}
	capacity, err := domain.NewCapacity(in.Capacity)
	if err != nil {
		return SessionView{}, validationError(err)
	}

	now := s.clk.Now()
	sess, err := domain.NewSession(s.newSessionID(), in.Name, capacity, date, slot, now)
	if err != nil {
		return SessionView{}, validationError(err)
	}
	if !sess.StartsAt().After(now) {
		return SessionView{}, invalid("date", "session must start in the future")
	}
	if err := s.repo.Create(ctx, sessionrepo.FromDomain(sess)); err != nil {
		return SessionView{}, err
	}

	s.log.WithFields(logrus.Fields{
		"session_id": sess.ID(),
		"starts_at":  sess.StartsAt(),
		"capacity":   capacity.Int(),
	}).Info("session scheduled")
	return viewOf(sess), nil
}

func (s *Service) Get(ctx context.Context, id domain.SessionID) (SessionView, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrNotFound) {
			return SessionView{}, &Error{
				Status:  404,
				Code:    "SESSION_NOT_FOUND",
				Message: "session not found",
				Details: map[string]any{"sessionId": string(id)},
			}
		}
		return SessionView{}, err
	}
	sess, err := rec.ToDomain()
	if err != nil {
		return SessionView{}, err
	}
	return viewOf(sess), nil
}
