package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anujtewari17/iaqualink-spa-control/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// Usage log.
	AppendSession(ctx context.Context, s model.UsageSession) error
	PruneSessions(ctx context.Context, cutoff time.Time) (int64, error)
	ListSessions(ctx context.Context, since time.Time) ([]model.UsageSession, error)

	// Push subscriptions for long-runtime notifications.
	UpsertSubscription(ctx context.Context, sub model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// AppendSession writes one completed usage session.
func (s *gormStore) AppendSession(ctx context.Context, sess model.UsageSession) error {
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return fmt.Errorf("failed to append usage session: %w", err)
	}
	return nil
}

// PruneSessions removes usage sessions that started before the cutoff and
// returns how many rows were deleted.
func (s *gormStore) PruneSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("start < ?", cutoff).Delete(&model.UsageSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune usage sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListSessions returns completed sessions that started at or after since,
// oldest first.
func (s *gormStore) ListSessions(ctx context.Context, since time.Time) ([]model.UsageSession, error) {
	var sessions []model.UsageSession
	err := s.db.WithContext(ctx).
		Where("start >= ?", since).
		Order("start ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list usage sessions: %w", err)
	}
	return sessions, nil
}

// UpsertSubscription inserts or refreshes a push subscription keyed by its
// endpoint URL.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a push subscription. Deleting an unknown
// endpoint is not an error.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	err := s.db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Delete(&model.PushSubscription{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// ListSubscriptions returns every stored push subscription.
func (s *gormStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}
