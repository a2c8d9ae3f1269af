package models

import "time"

// CacheEntry is a row in the database-backed cache used when Redis is not configured.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;column:cache_key;size:255"`
	Value     []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
