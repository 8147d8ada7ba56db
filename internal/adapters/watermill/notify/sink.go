// Package notify carries booking events over watermill: a Sink that publishes them
// and a Router that consumes them for delivery to members.
package notify

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

// Sink publishes each event to the topic named after it.
type Sink struct {
	pub message.Publisher
}

func NewSink(pub message.Publisher) *Sink {
	return &Sink{pub: pub}
}

func (s *Sink) Emit(ctx context.Context, e domain.Event) error {
	msg, err := encode(e)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)
	if err := s.pub.Publish(e.EventName(), msg); err != nil {
		return fmt.Errorf("publishing %s: %w", e.EventName(), err)
	}
	return nil
}
