package model

import "time"

// UsageSession is one completed spa session in the append-only usage log.
// Open sessions live in memory only; a row is written at close.
type UsageSession struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Guest           string    `gorm:"size:128;not null" json:"guest"`
	Start           time.Time `gorm:"not null;index" json:"start"`
	End             time.Time `gorm:"not null" json:"end"`
	DurationMinutes int       `gorm:"not null" json:"durationMinutes"`
	CreatedAt       time.Time `json:"-"`
}
