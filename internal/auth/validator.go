package auth

import (
	"time"

	"github.com/anujtewari17/iaqualink-spa-control/internal/reservation"
)

// Validator decides whether a presented access key grants entry: either the
// static admin key, or the code of the currently active reservation. It is
// read-only against the reservation store and never errors for "not found".
type Validator struct {
	adminKey     string
	reservations *reservation.Store
	now          func() time.Time
}

// NewValidator creates a validator. The admin key must be non-empty; the
// caller enforces that at boot, since an unset key would silently disable
// protection.
func NewValidator(adminKey string, reservations *reservation.Store) *Validator {
	return &Validator{
		adminKey:     adminKey,
		reservations: reservations,
		now:          time.Now,
	}
}

// Validate reports whether the key grants access right now.
func (v *Validator) Validate(key string) bool {
	if key == "" {
		return false
	}
	if key == v.adminKey {
		return true
	}
	if v.reservations == nil {
		return false
	}
	current := v.reservations.Current(v.now())
	return current != nil && current.Code == key
}

// IsAdmin reports whether the key is the admin key. Guest codes never pass.
func (v *Validator) IsAdmin(key string) bool {
	return key != "" && key == v.adminKey
}

// SetNow overrides the clock, for tests.
func (v *Validator) SetNow(now func() time.Time) {
	v.now = now
}
