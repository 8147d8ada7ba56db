package notify

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

const (
	metadataType      = "type"
	metadataBookingID = "booking_id"
)

// Topics lists every topic a booking event can be published to. Topics are named
// after the event.
var Topics = []string{
	domain.BookingConfirmed{}.EventName(),
	domain.AddedToWaitlist{}.EventName(),
	domain.BookingCancelled{}.EventName(),
	domain.PromotedFromWaitlist{}.EventName(),
	domain.SkippedInsufficientCredits{}.EventName(),
}

func encode(e domain.Event) (*message.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", e.EventName(), err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataType, e.EventName())
	msg.Metadata.Set(metadataBookingID, string(e.Booking()))
	return msg, nil
}

// decode restores the event carried by msg from its "type" metadata and JSON payload.
func decode(msg *message.Message) (domain.Event, error) {
	name := msg.Metadata.Get(metadataType)
	var (
		e   domain.Event
		err error
	)
	switch name {
	case domain.BookingConfirmed{}.EventName():
		e, err = unmarshal[domain.BookingConfirmed](msg.Payload)
	case domain.AddedToWaitlist{}.EventName():
		e, err = unmarshal[domain.AddedToWaitlist](msg.Payload)
	case domain.BookingCancelled{}.EventName():
		e, err = unmarshal[domain.BookingCancelled](msg.Payload)
	case domain.PromotedFromWaitlist{}.EventName():
		e, err = unmarshal[domain.PromotedFromWaitlist](msg.Payload)
	case domain.SkippedInsufficientCredits{}.EventName():
		e, err = unmarshal[domain.SkippedInsufficientCredits](msg.Payload)
	default:
		return nil, fmt.Errorf("unknown event type %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshalling %s: %w", name, err)
	}
	return e, nil
}

func unmarshal[T domain.Event](payload []byte) (domain.Event, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}
