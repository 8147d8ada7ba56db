package clock

import "time"

// Clock provides time to the application. Credit expiry and the cancellation
// cutoff are evaluated against it, so tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}
