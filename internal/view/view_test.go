package view

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storylock/internal/secrets"
	"storylock/internal/store"
)

func fixture(t *testing.T) (store.Story, store.Chapter) {
	t.Helper()

	key, err := secrets.NewContentKey()
	require.NoError(t, err)
	sealed, err := secrets.Seal(key, "the treasure is under the oak")
	require.NoError(t, err)
	pwHash, err := secrets.HashPassword("sesame")
	require.NoError(t, err)

	story := store.Story{ID: "sty_1", CreatorID: "usr_creator", IsEncrypted: true, EncryptionKey: key}
	chapter := store.Chapter{
		ID:      "chp_1",
		StoryID: story.ID,
		Number:  1,
		Title:   "The Oak",
		Content: store.ChapterContent{Body: sealed, Encrypted: true, MediaKey: "stories/sty_1/oak.jpg"},
		Conditions: store.UnlockConditions{
			Location:   &store.LocationCondition{Enabled: true, Name: "Old Oak", Latitude: 1, Longitude: 2},
			SecretCode: &store.SecretCodeCondition{Enabled: true, CodeHash: secrets.HashCode("ACORN")},
			Password:   &store.PasswordCondition{Enabled: true, PasswordHash: pwHash, Hint: "Ali Baba"},
		},
	}
	return story, chapter
}

func TestViewsNeverLeakSecrets(t *testing.T) {
	story, chapter := fixture(t)
	record := &store.UnlockRecord{ChapterID: chapter.ID, UserID: "usr_creator", UnlockedAt: time.Now(), Method: "location"}
	src := Source{Story: story, Chapter: chapter, Unlock: record, MediaURL: "https://cdn.example/oak.jpg"}

	views := map[string]Chapter{
		"creator":   Creator(src, 4, []store.UnlockRecord{*record}),
		"recipient": Recipient(src),
		"public":    Public(src),
	}
	for name, v := range views {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		body := string(raw)

		assert.NotContains(t, body, chapter.Conditions.SecretCode.CodeHash, name)
		assert.NotContains(t, body, chapter.Conditions.Password.PasswordHash, name)
		assert.NotContains(t, body, story.EncryptionKey, name)
		assert.NotContains(t, body, chapter.Content.Body, name, "ciphertext must not be served")

		require.NotNil(t, v.Conditions.Password, name)
		assert.Equal(t, "Ali Baba", v.Conditions.Password.Hint, name)
		assert.True(t, v.Conditions.SecretCode.Enabled, name)
		assert.Equal(t, 80.0, v.Conditions.Location.RadiusMeters, name)
	}
}

func TestRecipientContentRequiresUnlock(t *testing.T) {
	story, chapter := fixture(t)

	locked := Recipient(Source{Story: story, Chapter: chapter})
	assert.True(t, locked.Locked)
	assert.Nil(t, locked.Content)
	assert.Nil(t, locked.UnlockedAt)

	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	unlocked := Recipient(Source{
		Story:    story,
		Chapter:  chapter,
		Unlock:   &store.UnlockRecord{UnlockedAt: at, Method: "location,secret_code"},
		MediaURL: "https://cdn.example/oak.jpg",
	})
	assert.False(t, unlocked.Locked)
	require.NotNil(t, unlocked.Content)
	assert.Equal(t, "the treasure is under the oak", unlocked.Content.Body)
	assert.Equal(t, "https://cdn.example/oak.jpg", unlocked.Content.MediaURL)
	assert.Equal(t, at, *unlocked.UnlockedAt)
	assert.Equal(t, "location,secret_code", unlocked.UnlockMethod)
	assert.Nil(t, unlocked.AttemptCount)
	assert.Nil(t, unlocked.UnlockedBy)
}

func TestRecipientIgnoresGraceWindow(t *testing.T) {
	story, chapter := fixture(t)
	v := Recipient(Source{Story: story, Chapter: chapter, GraceActive: true})
	assert.Nil(t, v.Content)
}

func TestCreatorPreviewDuringGrace(t *testing.T) {
	story, chapter := fixture(t)

	preview := Creator(Source{Story: story, Chapter: chapter, GraceActive: true}, 2, nil)
	assert.True(t, preview.Locked)
	assert.True(t, preview.Preview)
	require.NotNil(t, preview.Content)
	assert.Equal(t, "the treasure is under the oak", preview.Content.Body)
	require.NotNil(t, preview.AttemptCount)
	assert.Equal(t, int64(2), *preview.AttemptCount)
	assert.Empty(t, preview.UnlockedBy)

	closed := Creator(Source{Story: story, Chapter: chapter}, 2, nil)
	assert.False(t, closed.Preview)
	assert.Nil(t, closed.Content)
}

func TestDecryptionFailureDegrades(t *testing.T) {
	story, chapter := fixture(t)
	other, err := secrets.NewContentKey()
	require.NoError(t, err)
	story.EncryptionKey = other

	v := Recipient(Source{Story: story, Chapter: chapter, Unlock: &store.UnlockRecord{}})
	assert.Nil(t, v.Content)
	assert.True(t, v.ContentUnavailable)
	assert.False(t, v.Locked)
}

func TestPlaintextContent(t *testing.T) {
	story := store.Story{ID: "sty_2", IsPublic: true}
	chapter := store.Chapter{ID: "chp_2", Content: store.ChapterContent{Body: "open letter"}}
	v := Public(Source{Story: story, Chapter: chapter, Unlock: &store.UnlockRecord{Method: "none"}})
	require.NotNil(t, v.Content)
	assert.Equal(t, "open letter", v.Content.Body)
	assert.Empty(t, v.UnlockMethod)
}

func TestStoryViews(t *testing.T) {
	until := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	story := store.Story{
		ID:            "sty_1",
		CreatorID:     "usr_creator",
		IsEncrypted:   true,
		EncryptionKey: "k",
		Settings:      store.StorySettings{CreatorAccessUntil: &until},
		Recipients:    []store.Recipient{{UserID: "usr_r", Email: "r@example.com", Name: "R", CurrentChapter: 1}},
	}
	chapters := []store.Chapter{{ID: "c1", Number: 1}, {ID: "c2", Number: 2}}
	unlocked := map[string]bool{"c1": true}

	creator := CreatorStory(story, chapters, unlocked)
	assert.Len(t, creator.Recipients, 1)
	assert.Equal(t, until, *creator.CreatorAccessUntil)
	assert.Equal(t, 2, creator.TotalChapters)
	assert.False(t, creator.Chapters[0].Locked)
	assert.True(t, creator.Chapters[1].Locked)

	recipient := RecipientStory(story, chapters, unlocked, story.Recipients[0])
	assert.Nil(t, recipient.Recipients)
	assert.Nil(t, recipient.CreatorAccessUntil)
	assert.Equal(t, 1, recipient.CurrentChapter)

	public := PublicStory(story, chapters, nil)
	assert.Nil(t, public.Recipients)
	assert.True(t, public.Chapters[0].Locked)

	raw, err := json.Marshal(public)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "r@example.com")
}
