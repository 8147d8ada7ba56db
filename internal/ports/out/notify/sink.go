package notify

import (
	"context"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

// Sink delivers booking events to whatever notifies members (email, queue, log).
type Sink interface {
	Emit(ctx context.Context, e domain.Event) error
}
