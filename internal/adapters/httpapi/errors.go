package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"
	"github.com/sirupsen/logrus"

	"github.com/Overland-East-Bay/class-booking-api/internal/app/bookings"
	"github.com/Overland-East-Bay/class-booking-api/internal/app/members"
	"github.com/Overland-East-Bay/class-booking-api/internal/app/sessions"
	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	var er ErrorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		er.Error.RequestId = nullable.NewNullableWithValue(rid)
	}
	writeJSON(w, status, er)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ruleCodes maps business-rule violations to their API codes. All are 409.
var ruleCodes = []struct {
	err  error
	code string
}{
	{domain.ErrInsufficientCredit, "INSUFFICIENT_CREDIT"},
	{domain.ErrSessionFull, "SESSION_FULL"},
	{domain.ErrWaitlistIneligible, "WAITLIST_INELIGIBLE"},
	{domain.ErrNotCancellable, "NOT_CANCELLABLE"},
	{domain.ErrDuplicateBooking, "DUPLICATE_BOOKING"},
}

// writeError maps an error returned by an app service to a response.
// Anything unrecognized is logged and reported as a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if me := (*members.Error)(nil); errors.As(err, &me) {
		writeAPIError(w, r, me.Status, me.Code, me.Message, me.Details)
		return
	}
	if se := (*sessions.Error)(nil); errors.As(err, &se) {
		writeAPIError(w, r, se.Status, se.Code, se.Message, se.Details)
		return
	}
	if ve := (*domain.ValidationError)(nil); errors.As(err, &ve) {
		writeAPIError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", ve.Error(), map[string]any{ve.Field: ve.Reason})
		return
	}
	if nf := (*domain.NotFoundError)(nil); errors.As(err, &nf) {
		code := strings.ToUpper(strings.ReplaceAll(nf.Kind, " ", "_")) + "_NOT_FOUND"
		writeAPIError(w, r, http.StatusNotFound, code, nf.Error(), map[string]any{"id": nf.ID})
		return
	}
	if errors.Is(err, domain.ErrBusinessRule) {
		for _, rc := range ruleCodes {
			if errors.Is(err, rc.err) {
				writeAPIError(w, r, http.StatusConflict, rc.code, rc.err.Error(), nil)
				return
			}
		}
		writeAPIError(w, r, http.StatusConflict, "BUSINESS_RULE_VIOLATION", err.Error(), nil)
		return
	}
	if errors.Is(err, bookings.ErrConcurrentUpdate) {
		writeAPIError(w, r, http.StatusConflict, "CONCURRENT_UPDATE", "the resource was modified concurrently; retry the request", nil)
		return
	}

	s.log.WithError(err).WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).Error("request failed")
	writeAPIError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
