package reservation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

// Store holds the time-ordered reservation list, refreshed periodically
// from an external calendar feed. Without a feed URL the list stays empty
// and only the admin key grants access.
type Store struct {
	feedURL      string
	interval     time.Duration
	checkinHour  int
	checkoutHour int
	loc          *time.Location
	client       *http.Client

	mu           sync.RWMutex
	reservations []Reservation
}

// NewStore creates a reservation store. Check-in/checkout hours bound each
// reservation's active window inside its calendar span.
func NewStore(feedURL string, interval time.Duration, checkinHour, checkoutHour int, loc *time.Location) *Store {
	return &Store{
		feedURL:      feedURL,
		interval:     interval,
		checkinHour:  checkinHour,
		checkoutHour: checkoutHour,
		loc:          loc,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// Run refreshes the reservation list on start and then on the configured
// interval until the context is canceled.
func (s *Store) Run(ctx context.Context) {
	if s.feedURL == "" {
		log.Println("No calendar feed configured; reservation-based access is disabled.")
		return
	}

	if err := s.Refresh(ctx); err != nil {
		log.Printf("Initial reservation refresh failed: %v", err)
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reservation store shutting down.")
			return
		case <-timer.C:
			if err := s.Refresh(ctx); err != nil {
				log.Printf("Reservation refresh failed: %v", err)
			}
			timer.Reset(s.interval)
		}
	}
}

// Refresh fetches and parses the calendar feed, then replaces the in-memory
// list atomically. On any fetch or parse failure the previous list stays
// intact; there is no partial update.
func (s *Store) Refresh(ctx context.Context) error {
	if s.feedURL == "" {
		return nil
	}

	body, err := s.fetchFeed(ctx)
	if err != nil {
		return err
	}

	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse calendar feed: %w", err)
	}

	reservations := make([]Reservation, 0, len(cal.Events()))
	for _, ev := range cal.Events() {
		start, err := ev.GetStartAt()
		if err != nil {
			continue
		}
		end, err := ev.GetEndAt()
		if err != nil {
			continue
		}
		if end.Before(start) {
			continue
		}

		id := ev.Id()
		if id == "" {
			id = uuid.NewString()
		}

		reservations = append(reservations, Reservation{
			ID:    id,
			Start: start.UTC(),
			End:   end.UTC(),
			Code:  DeriveCode(start, end),
		})
	}

	sort.Slice(reservations, func(i, j int) bool {
		return reservations[i].Start.Before(reservations[j].Start)
	})

	s.mu.Lock()
	s.reservations = reservations
	s.mu.Unlock()

	log.Printf("Loaded %d reservations from calendar", len(reservations))
	return nil
}

func (s *Store) fetchFeed(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar feed: %w", err)
	}
	return body, nil
}

// Window returns the active window for a reservation: access opens at the
// check-in hour on the start date and closes at the checkout hour on the
// end date, both in the store's timezone.
func (s *Store) Window(r Reservation) (open, close time.Time) {
	sd := r.Start.In(s.loc)
	ed := r.End.In(s.loc)
	open = time.Date(sd.Year(), sd.Month(), sd.Day(), s.checkinHour, 0, 0, 0, s.loc)
	close = time.Date(ed.Year(), ed.Month(), ed.Day(), s.checkoutHour, 0, 0, 0, s.loc)
	return open, close
}

// Current returns the reservation whose active window contains now, or nil.
// With overlapping windows the first match in start order wins.
func (s *Store) Current(now time.Time) *Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.reservations {
		open, close := s.Window(r)
		if !now.Before(open) && !now.After(close) {
			out := r
			return &out
		}
	}
	return nil
}

// Active returns the zero-or-one element list of currently active
// reservations. Under the check-in/checkout model only one can be current.
func (s *Store) Active(now time.Time) []Reservation {
	if r := s.Current(now); r != nil {
		return []Reservation{*r}
	}
	return []Reservation{}
}

// All returns a copy of the full reservation list.
func (s *Store) All() []Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Reservation, len(s.reservations))
	copy(out, s.reservations)
	return out
}

// Replace swaps in a reservation list directly. Exported for tests and for
// operating without a live feed.
func (s *Store) Replace(reservations []Reservation) {
	sorted := make([]Reservation, len(reservations))
	copy(sorted, reservations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	s.mu.Lock()
	s.reservations = sorted
	s.mu.Unlock()
}
