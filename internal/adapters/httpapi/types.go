package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// Wire types. Field names are the JSON contract; keep them stable.

type ErrorResponse struct {
	Error struct {
		Code      string                            `json:"code"`
		Message   string                            `json:"message"`
		Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
		RequestId nullable.Nullable[string]         `json:"requestId,omitempty"`
	} `json:"error"`
}

type RegisterMemberRequest struct {
	DisplayName string              `json:"displayName"`
	Email       openapi_types.Email `json:"email"`
	Tier        string              `json:"tier"`
}

type MemberProfile struct {
	MemberId        string                       `json:"memberId"`
	DisplayName     string                       `json:"displayName"`
	Email           openapi_types.Email          `json:"email"`
	Tier            string                       `json:"tier"`
	Credits         int                          `json:"credits"`
	CreditsExpireAt nullable.Nullable[time.Time] `json:"creditsExpireAt"`
	CreatedAt       time.Time                    `json:"createdAt"`
	UpdatedAt       time.Time                    `json:"updatedAt"`
}

type MemberResponse struct {
	Member MemberProfile `json:"member"`
}

type ScheduleSessionRequest struct {
	Name      string             `json:"name"`
	Capacity  int                `json:"capacity"`
	Date      openapi_types.Date `json:"date"`
	StartTime string             `json:"startTime"`
	EndTime   string             `json:"endTime"`
}

type SessionDetails struct {
	SessionId string             `json:"sessionId"`
	Name      string             `json:"name"`
	Capacity  int                `json:"capacity"`
	Date      openapi_types.Date `json:"date"`
	Day       string             `json:"day"`
	StartTime string             `json:"startTime"`
	EndTime   string             `json:"endTime"`
	StartsAt  time.Time          `json:"startsAt"`
	Confirmed []string           `json:"confirmed"`
	Waitlist  []string           `json:"waitlist"`
	Available int                `json:"available"`
}

type SessionResponse struct {
	Session SessionDetails `json:"session"`
}

type ReserveRequest struct {
	MemberId  string `json:"memberId"`
	SessionId string `json:"sessionId"`
}

type AttendanceRequest struct {
	// Outcome is ATTENDED or NO_SHOW.
	Outcome string `json:"outcome"`
}

type Booking struct {
	BookingId   string                       `json:"bookingId"`
	MemberId    string                       `json:"memberId"`
	SessionId   string                       `json:"sessionId"`
	Status      string                       `json:"status"`
	CreatedAt   time.Time                    `json:"createdAt"`
	CancelledAt nullable.Nullable[time.Time] `json:"cancelledAt"`
}

type BookingResponse struct {
	Booking Booking `json:"booking"`
}

type BookingListResponse struct {
	Bookings []Booking `json:"bookings"`
}
