package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anujtewari17/iaqualink-spa-control/internal/model"
	"github.com/anujtewari17/iaqualink-spa-control/internal/store"
)

// UnknownGuest is recorded when no reservation is active at session start,
// typically admin key use.
const UnknownGuest = "unknown"

// RetentionDays bounds the usage log; older entries are pruned on every
// session close.
const RetentionDays = 60

// UsageLogger tracks at most one open spa session and appends completed
// records to the usage log. Persistence is best effort: a failed write is
// logged and the in-memory log stays authoritative for the rest of the
// process lifetime.
type UsageLogger struct {
	store store.Store
	now   func() time.Time

	mu      sync.Mutex
	current *openSession
	closed  []model.UsageSession
}

type openSession struct {
	guest string
	start time.Time
}

// NewUsageLogger creates a usage logger backed by the given store.
func NewUsageLogger(s store.Store) *UsageLogger {
	return &UsageLogger{store: s, now: time.Now}
}

// SetNow overrides the clock, for tests.
func (l *UsageLogger) SetNow(now func() time.Time) {
	l.now = now
}

// StartSession opens a session for the given guest. A no-op when one is
// already open: only one unterminated session exists at a time.
func (l *UsageLogger) StartSession(guest string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != nil {
		return
	}
	if guest == "" {
		guest = UnknownGuest
	}
	l.current = &openSession{guest: guest, start: l.now().UTC()}
	log.Printf("Usage session started for guest %q", guest)
}

// EndSession closes the open session, appends the completed record, prunes
// entries past the retention window and persists. A no-op when no session
// is open; calling it twice appends exactly one record.
func (l *UsageLogger) EndSession(ctx context.Context) {
	l.mu.Lock()

	if l.current == nil {
		l.mu.Unlock()
		return
	}

	end := l.now().UTC()
	rec := model.UsageSession{
		ID:              uuid.NewString(),
		Guest:           l.current.guest,
		Start:           l.current.start,
		End:             end,
		DurationMinutes: int(end.Sub(l.current.start).Round(time.Minute) / time.Minute),
	}
	l.current = nil

	cutoff := end.AddDate(0, 0, -RetentionDays)
	l.closed = append(l.closed, rec)
	l.closed = pruneRecords(l.closed, cutoff)
	l.mu.Unlock()

	log.Printf("Usage session ended for guest %q after %d minutes", rec.Guest, rec.DurationMinutes)

	if err := l.store.AppendSession(ctx, rec); err != nil {
		log.Printf("Failed to persist usage session: %v", err)
	}
	if _, err := l.store.PruneSessions(ctx, cutoff); err != nil {
		log.Printf("Failed to prune usage log: %v", err)
	}
}

func pruneRecords(records []model.UsageSession, cutoff time.Time) []model.UsageSession {
	kept := records[:0]
	for _, r := range records {
		if !r.Start.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

// Open returns the guest and start time of the open session, if any.
func (l *UsageLogger) Open() (guest string, start time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return "", time.Time{}, false
	}
	return l.current.guest, l.current.start, true
}

// Sessions returns a copy of the completed records held in memory.
func (l *UsageLogger) Sessions() []model.UsageSession {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.UsageSession, len(l.closed))
	copy(out, l.closed)
	return out
}
