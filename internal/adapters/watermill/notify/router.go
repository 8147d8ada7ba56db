package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

// Deliverer hands a booking event to the member it concerns.
type Deliverer interface {
	Deliver(ctx context.Context, e domain.Event) error
}

type RouterDeps struct {
	Subscriber message.Subscriber
	Deliverer  Deliverer
	Logger     watermill.LoggerAdapter
}

type Router struct {
	*message.Router
}

// NewRouter subscribes to every booking topic and delivers what arrives.
// Failed deliveries are retried with backoff before the message is nacked.
func NewRouter(deps RouterDeps) (*Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Logger:          deps.Logger,
	}.Middleware)

	for _, topic := range Topics {
		router.AddNoPublisherHandler("deliver-"+topic, topic, deps.Subscriber, deliver(deps.Deliverer))
	}
	return &Router{router}, nil
}

func deliver(d Deliverer) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		e, err := decode(msg)
		if err != nil {
			return err
		}
		return d.Deliver(msg.Context(), e)
	}
}

// LogDeliverer records each notification in the service log. It stands in for
// member-facing channels such as email or push.
type LogDeliverer struct {
	Log logrus.FieldLogger
}

func (d LogDeliverer) Deliver(ctx context.Context, e domain.Event) error {
	_ = ctx
	fields := logrus.Fields{
		"event":      e.EventName(),
		"booking_id": e.Booking(),
	}
	switch ev := e.(type) {
	case domain.AddedToWaitlist:
		fields["position"] = ev.Position
	case domain.BookingCancelled:
		fields["credit_refunded"] = ev.CreditRefunded
	}
	d.Log.WithFields(fields).Info("member notified")
	return nil
}
