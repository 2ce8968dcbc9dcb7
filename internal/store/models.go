package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a story, chapter or unlock record is absent.
var ErrNotFound = errors.New("not found")

const (
	StoryStatusDraft  = "draft"
	StoryStatusActive = "active"
)

type Recipient struct {
	UserID         string
	Email          string
	Name           string
	CurrentChapter int
}

type StorySettings struct {
	CreatorGracePeriodDays int
	CreatorAccessUntil     *time.Time
}

type Story struct {
	ID          string
	CreatorID   string
	Title       string
	Recipients  []Recipient
	IsPublic    bool
	IsEncrypted bool
	// EncryptionKey is the encoded content key, set iff IsEncrypted.
	EncryptionKey string
	Settings      StorySettings
	Status        string
	ShortCode     string
	CreatedAt     time.Time
}

type ChapterContent struct {
	Body      string
	Encrypted bool
	MediaKey  string
}

type TimeCondition struct {
	Enabled  bool      `json:"enabled"`
	UnlockAt time.Time `json:"unlock_at"`
}

type LocationCondition struct {
	Enabled      bool    `json:"enabled"`
	Name         string  `json:"name,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters,omitempty"`
}

type SecretCodeCondition struct {
	Enabled  bool   `json:"enabled"`
	CodeHash string `json:"code_hash"`
}

type PasswordCondition struct {
	Enabled      bool   `json:"enabled"`
	PasswordHash string `json:"password_hash"`
	Hint         string `json:"hint,omitempty"`
}

// UnlockConditions is persisted as a single JSON document. Only hashes of
// secret material are ever stored here.
type UnlockConditions struct {
	Time                   *TimeCondition       `json:"time,omitempty"`
	Location               *LocationCondition   `json:"location,omitempty"`
	SecretCode             *SecretCodeCondition `json:"secret_code,omitempty"`
	Password               *PasswordCondition   `json:"password,omitempty"`
	RequirePreviousChapter bool                 `json:"require_previous_chapter"`
}

type Chapter struct {
	ID           string
	StoryID      string
	Number       int
	Title        string
	Content      ChapterContent
	Conditions   UnlockConditions
	AttemptCount int64
	CreatedAt    time.Time
}

// UnlockRecord is one ledger entry, unique per (ChapterID, UserID).
type UnlockRecord struct {
	ChapterID  string    `json:"chapter_id"`
	UserID     string    `json:"user_id"`
	UnlockedAt time.Time `json:"unlocked_at"`
	Method     string    `json:"method"`
}
