package reservation

import (
	"fmt"
	"time"
)

// Reservation is one calendar event with its derived guest access code.
// The list is replaced wholesale on every feed refresh; individual entries
// are never mutated.
type Reservation struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Code  string    `json:"code"`
}

// DeriveCode builds the 8-character access code from the reservation's
// calendar dates: MMDD of the start date followed by MMDD of the end date,
// in UTC. The same interval always yields the same code across reloads;
// distinct reservations sharing dates collide, a known limitation.
func DeriveCode(start, end time.Time) string {
	s := start.UTC()
	e := end.UTC()
	return fmt.Sprintf("%02d%02d%02d%02d", int(s.Month()), s.Day(), int(e.Month()), e.Day())
}
