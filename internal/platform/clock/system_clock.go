// Package clock provides the production Clock.
package clock

import "time"

// System reads the wall clock in UTC. Session start times and credit expiries are UTC.
type System struct{}

func NewSystem() System { return System{} }

func (System) Now() time.Time { return time.Now().UTC() }
