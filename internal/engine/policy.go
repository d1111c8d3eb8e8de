package engine

import (
	"time"

	"github.com/dyluth/rota/pkg/rotation"
)

// DefaultRestrictedFromMinute is the minute of every hour at which the restricted period starts.
const DefaultRestrictedFromMinute = 45

// Policy is the time-of-day staffing policy.
type Policy struct {
	// RestrictedFromMinute is the first minute of the hour that falls in the restricted period.
	RestrictedFromMinute int

	// EnforceRestricted disables the restricted period entirely when false.
	EnforceRestricted bool
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{RestrictedFromMinute: DefaultRestrictedFromMinute, EnforceRestricted: true}
}

// Period returns the policy period that applies at now.
func (p Policy) Period(now time.Time) rotation.Period {
	if !p.EnforceRestricted || now.Minute() < p.RestrictedFromMinute {
		return rotation.PeriodPermissive
	}
	return rotation.PeriodRestricted
}
