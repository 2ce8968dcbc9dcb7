// Package view builds the externally visible shape of stories and chapters.
// Each role has its own constructor; none of them ever copies a code hash,
// password hash or story key into the result.
package view

import (
	"time"

	"storylock/internal/secrets"
	"storylock/internal/store"
	"storylock/internal/unlock"
)

type TimeCondition struct {
	UnlockAt time.Time `json:"unlockAt"`
}

type LocationCondition struct {
	Name         string  `json:"name,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radiusMeters"`
}

type SecretCodeCondition struct {
	Enabled bool `json:"enabled"`
}

type PasswordCondition struct {
	Enabled bool   `json:"enabled"`
	Hint    string `json:"hint,omitempty"`
}

type Conditions struct {
	Time                   *TimeCondition       `json:"time,omitempty"`
	Location               *LocationCondition   `json:"location,omitempty"`
	SecretCode             *SecretCodeCondition `json:"secretCode,omitempty"`
	Password               *PasswordCondition   `json:"password,omitempty"`
	RequirePreviousChapter bool                 `json:"requirePreviousChapter"`
}

type Content struct {
	Body     string `json:"body"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

type Unlocker struct {
	UserID     string    `json:"userId"`
	UnlockedAt time.Time `json:"unlockedAt"`
	Method     string    `json:"method"`
}

type Chapter struct {
	ID                 string     `json:"id"`
	StoryID            string     `json:"storyId"`
	Number             int        `json:"chapterNumber"`
	Title              string     `json:"title"`
	Conditions         Conditions `json:"unlockConditions"`
	Locked             bool       `json:"locked"`
	Content            *Content   `json:"content,omitempty"`
	ContentUnavailable bool       `json:"contentUnavailable,omitempty"`
	UnlockedAt         *time.Time `json:"unlockedAt,omitempty"`
	UnlockMethod       string     `json:"unlockMethod,omitempty"`
	Preview            bool       `json:"preview,omitempty"`

	AttemptCount *int64     `json:"attemptCount,omitempty"`
	UnlockedBy   []Unlocker `json:"unlockedBy,omitempty"`
}

// Source is what every chapter view is built from. Unlock is the caller's
// own ledger record, nil while locked. MediaURL is already resolved.
type Source struct {
	Story       store.Story
	Chapter     store.Chapter
	Unlock      *store.UnlockRecord
	MediaURL    string
	GraceActive bool
}

// ShowsContent reports whether the body may be served for this source under
// the given role's rules.
func ShowsContent(unlocked, isCreator, graceActive bool) bool {
	return unlocked || (isCreator && graceActive)
}

// Creator builds the creator's view: content while unlocked or inside the
// grace window, plus the attempt counter and unlock roster.
func Creator(src Source, attempts int64, roster []store.UnlockRecord) Chapter {
	out := base(src)
	out.Preview = src.Unlock == nil && src.GraceActive
	if ShowsContent(src.Unlock != nil, true, src.GraceActive) {
		attachContent(&out, src)
	}
	attachUnlock(&out, src.Unlock)

	count := attempts
	out.AttemptCount = &count
	out.UnlockedBy = make([]Unlocker, 0, len(roster))
	for _, record := range roster {
		out.UnlockedBy = append(out.UnlockedBy, Unlocker{
			UserID:     record.UserID,
			UnlockedAt: record.UnlockedAt,
			Method:     record.Method,
		})
	}
	return out
}

// Recipient builds a recipient's view; content only with an unlock record.
func Recipient(src Source) Chapter {
	out := base(src)
	if src.Unlock != nil {
		attachContent(&out, src)
	}
	attachUnlock(&out, src.Unlock)
	return out
}

// Public builds the view for a visitor who is neither creator nor recipient.
func Public(src Source) Chapter {
	out := base(src)
	if src.Unlock != nil {
		attachContent(&out, src)
	}
	return out
}

func base(src Source) Chapter {
	c := src.Chapter
	return Chapter{
		ID:         c.ID,
		StoryID:    c.StoryID,
		Number:     c.Number,
		Title:      c.Title,
		Conditions: redactConditions(c.Conditions),
		Locked:     src.Unlock == nil,
	}
}

func attachUnlock(out *Chapter, record *store.UnlockRecord) {
	if record == nil {
		return
	}
	at := record.UnlockedAt
	out.UnlockedAt = &at
	out.UnlockMethod = record.Method
}

func attachContent(out *Chapter, src Source) {
	body, ok := openBody(src.Story, src.Chapter.Content)
	if !ok {
		out.ContentUnavailable = true
		return
	}
	out.Content = &Content{Body: body, MediaURL: src.MediaURL}
}

func openBody(story store.Story, content store.ChapterContent) (string, bool) {
	if !content.Encrypted {
		return content.Body, true
	}
	if story.EncryptionKey == "" {
		return "", false
	}
	body, err := secrets.Open(story.EncryptionKey, content.Body)
	if err != nil {
		return "", false
	}
	return body, true
}

func redactConditions(c store.UnlockConditions) Conditions {
	out := Conditions{RequirePreviousChapter: c.RequirePreviousChapter}
	if c.Time != nil && c.Time.Enabled {
		out.Time = &TimeCondition{UnlockAt: c.Time.UnlockAt}
	}
	if c.Location != nil && c.Location.Enabled {
		out.Location = &LocationCondition{
			Name:         c.Location.Name,
			Latitude:     c.Location.Latitude,
			Longitude:    c.Location.Longitude,
			RadiusMeters: radius(c.Location.RadiusMeters),
		}
	}
	if c.SecretCode != nil && c.SecretCode.Enabled {
		out.SecretCode = &SecretCodeCondition{Enabled: true}
	}
	if c.Password != nil && c.Password.Enabled {
		out.Password = &PasswordCondition{Enabled: true, Hint: c.Password.Hint}
	}
	return out
}

func radius(meters float64) float64 {
	if meters <= 0 {
		return unlock.DefaultRadiusMeters
	}
	return meters
}
