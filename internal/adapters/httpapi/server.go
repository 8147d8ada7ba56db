package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/nullable"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/sirupsen/logrus"

	"github.com/Overland-East-Bay/class-booking-api/internal/app/bookings"
	"github.com/Overland-East-Bay/class-booking-api/internal/app/members"
	"github.com/Overland-East-Bay/class-booking-api/internal/app/sessions"
	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/idempotency"
)

const maxBodyBytes = 1 << 20

// Server implements the HTTP handlers over the app services.
type Server struct {
	Members  *members.Service
	Sessions *sessions.Service
	Bookings *bookings.Service
	Idem     idempotency.Store

	log logrus.FieldLogger
}

func NewServer(membersSvc *members.Service, sessionsSvc *sessions.Service, bookingsSvc *bookings.Service, idem idempotency.Store, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		Members:  membersSvc,
		Sessions: sessionsSvc,
		Bookings: bookingsSvc,
		Idem:     idem,
		log:      log.WithField("component", "httpapi"),
	}
}

func (s *Server) RegisterMember(w http.ResponseWriter, r *http.Request) {
	var body RegisterMemberRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	m, err := s.Members.Register(r.Context(), members.RegisterInput{
		DisplayName: body.DisplayName,
		Email:       string(body.Email),
		Tier:        body.Tier,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MemberResponse{Member: memberProfileFromView(m)})
}

func (s *Server) GetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "memberId")
	if !ok {
		return
	}
	m, err := s.Members.Get(r.Context(), domain.MemberID(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MemberResponse{Member: memberProfileFromView(m)})
}

func (s *Server) RenewMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "memberId")
	if !ok {
		return
	}
	m, err := s.Members.Renew(r.Context(), domain.MemberID(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MemberResponse{Member: memberProfileFromView(m)})
}

func (s *Server) ScheduleSession(w http.ResponseWriter, r *http.Request) {
	var body ScheduleSessionRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	v, err := s.Sessions.Schedule(r.Context(), sessions.ScheduleInput{
		Name:      body.Name,
		Capacity:  body.Capacity,
		Date:      body.Date.String(),
		StartTime: body.StartTime,
		EndTime:   body.EndTime,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{Session: sessionDetailsFromView(v)})
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	v, err := s.Sessions.Get(r.Context(), domain.SessionID(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Session: sessionDetailsFromView(v)})
}

func (s *Server) ListSessionBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	bs, err := s.Bookings.ListForSession(r.Context(), domain.SessionID(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingList(bs))
}

func (s *Server) ListMemberBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "memberId")
	if !ok {
		return
	}
	bs, err := s.Bookings.ListForMember(r.Context(), domain.MemberID(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingList(bs))
}

func bookingList(bs []*domain.Booking) BookingListResponse {
	out := make([]Booking, 0, len(bs))
	for _, b := range bs {
		out = append(out, bookingFromDomain(b))
	}
	return BookingListResponse{Bookings: out}
}

// ReserveBooking honours an optional Idempotency-Key header: a retry with the same key
// and body replays the first successful response; the same key with a different body is rejected.
func (s *Server) ReserveBooking(w http.ResponseWriter, r *http.Request) {
	var body ReserveRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	body.MemberId = strings.TrimSpace(body.MemberId)
	body.SessionId = strings.TrimSpace(body.SessionId)
	if body.MemberId == "" || body.SessionId == "" {
		writeAPIError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "memberId and sessionId are required", map[string]any{
			"memberId":  body.MemberId,
			"sessionId": body.SessionId,
		})
		return
	}

	replay, err := s.beginIdempotent(r, routeReserve, body)
	if err != nil {
		if errors.Is(err, errIdempotencyKeyReuse) {
			writeAPIError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different payload", nil)
			return
		}
		s.writeError(w, r, err)
		return
	}
	if replay.found {
		w.Header().Set("Idempotent-Replayed", "true")
		w.Header().Set("Content-Type", replay.rec.ContentType)
		w.WriteHeader(replay.rec.StatusCode)
		_, _ = w.Write(replay.rec.Body)
		return
	}

	b, err := s.Bookings.Reserve(r.Context(), domain.MemberID(body.MemberId), domain.SessionID(body.SessionId))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := BookingResponse{Booking: bookingFromDomain(b)}
	s.finishIdempotent(r, replay, http.StatusCreated, resp)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bookingId")
	if !ok {
		return
	}
	b, err := s.Bookings.Get(r.Context(), domain.BookingID(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BookingResponse{Booking: bookingFromDomain(b)})
}

func (s *Server) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bookingId")
	if !ok {
		return
	}
	b, err := s.Bookings.Cancel(r.Context(), domain.BookingID(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BookingResponse{Booking: bookingFromDomain(b)})
}

func (s *Server) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bookingId")
	if !ok {
		return
	}
	var body AttendanceRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	var (
		b   *domain.Booking
		err error
	)
	switch domain.BookingStatus(strings.ToUpper(strings.TrimSpace(body.Outcome))) {
	case domain.BookingStatusAttended:
		b, err = s.Bookings.MarkAttended(r.Context(), domain.BookingID(id))
	case domain.BookingStatusNoShow:
		b, err = s.Bookings.MarkNoShow(r.Context(), domain.BookingID(id))
	default:
		writeAPIError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid outcome", map[string]any{"outcome": "must be ATTENDED or NO_SHOW"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BookingResponse{Booking: bookingFromDomain(b)})
}

// decodeBody reads a JSON body into dst, writing a 422 and returning false on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "malformed request body"
		if errors.Is(err, io.EOF) {
			msg = "missing request body"
		}
		writeAPIError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", msg, map[string]any{"body": err.Error()})
		return false
	}
	return true
}

// pathID binds a simple-style path parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil || strings.TrimSpace(id) == "" {
		writeAPIError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("invalid %s", name), map[string]any{name: "must be non-empty"})
		return "", false
	}
	return id, true
}

func memberProfileFromView(m members.MemberView) MemberProfile {
	return MemberProfile{
		MemberId:        string(m.ID),
		DisplayName:     m.DisplayName,
		Email:           openapi_types.Email(m.Email),
		Tier:            string(m.Tier),
		Credits:         m.Credits,
		CreditsExpireAt: nullableTime(m.CreditsExpireAt),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func sessionDetailsFromView(v sessions.SessionView) SessionDetails {
	date, _ := time.Parse("2006-01-02", v.Date)
	return SessionDetails{
		SessionId: string(v.ID),
		Name:      v.Name,
		Capacity:  v.Capacity,
		Date:      openapi_types.Date{Time: date},
		Day:       v.Day.String(),
		StartTime: v.StartTime,
		EndTime:   v.EndTime,
		StartsAt:  v.StartsAt,
		Confirmed: memberIDStrings(v.Confirmed),
		Waitlist:  memberIDStrings(v.Waitlist),
		Available: v.Available,
	}
}

func bookingFromDomain(b *domain.Booking) Booking {
	return Booking{
		BookingId:   string(b.ID()),
		MemberId:    string(b.MemberID()),
		SessionId:   string(b.SessionID()),
		Status:      string(b.Status()),
		CreatedAt:   b.CreatedAt(),
		CancelledAt: nullableTime(b.CancelledAt()),
	}
}

func nullableTime(p *time.Time) nullable.Nullable[time.Time] {
	if p == nil {
		return nullable.NewNullNullable[time.Time]()
	}
	return nullable.NewNullableWithValue(p.UTC())
}

func memberIDStrings(ids []domain.MemberID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
