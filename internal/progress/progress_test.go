package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storylock/internal/store"
)

func fixture() ([]store.Chapter, map[string][]store.UnlockRecord) {
	chapters := []store.Chapter{
		{ID: "c3", Number: 3},
		{ID: "c1", Number: 1},
		{ID: "c2", Number: 2},
	}
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	unlocks := map[string][]store.UnlockRecord{
		"c1": {
			{ChapterID: "c1", UserID: "bob", UnlockedAt: t0.Add(time.Hour)},
			{ChapterID: "c1", UserID: "alice", UnlockedAt: t0},
		},
		"c2": {{ChapterID: "c2", UserID: "alice", UnlockedAt: t0.Add(2 * time.Hour)}},
		"c3": {{ChapterID: "c3", UserID: "carol", UnlockedAt: t0.Add(3 * time.Hour)}},
	}
	return chapters, unlocks
}

func TestWatermark(t *testing.T) {
	chapters, unlocks := fixture()

	assert.Equal(t, 2, Watermark(chapters, unlocks, "alice"))
	assert.Equal(t, 1, Watermark(chapters, unlocks, "bob"))
	assert.Equal(t, 3, Watermark(chapters, unlocks, "carol"), "watermark is the highest number, gaps allowed")
	assert.Equal(t, 0, Watermark(chapters, unlocks, "dave"))
	assert.Equal(t, 0, Watermark(chapters, unlocks, ""))
}

func TestDerive(t *testing.T) {
	chapters, unlocks := fixture()
	report := Derive(chapters, unlocks, "alice")
	assert.Equal(t, Report{CurrentChapter: 2, TotalChapters: 3}, report)
}

func TestRosterIgnoresStaleCache(t *testing.T) {
	chapters, unlocks := fixture()
	story := store.Story{Recipients: []store.Recipient{
		{UserID: "alice", Email: "alice@example.com", Name: "Alice", CurrentChapter: 1},
		{Email: "pending@example.com", Name: "Pending", CurrentChapter: 0},
	}}

	report := Roster(Derive(chapters, unlocks, "creator"), story, chapters, unlocks)

	require.Len(t, report.Chapters, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{report.Chapters[0].Number, report.Chapters[1].Number, report.Chapters[2].Number})
	require.Len(t, report.Chapters[0].Unlockers, 2)
	assert.Equal(t, "alice", report.Chapters[0].Unlockers[0].UserID)
	assert.Equal(t, "bob", report.Chapters[0].Unlockers[1].UserID)

	require.Len(t, report.Recipients, 2)
	assert.Equal(t, 2, report.Recipients[0].CurrentChapter)
	assert.Equal(t, 1, report.Recipients[0].CachedChapter)
	assert.Equal(t, 0, report.Recipients[1].CurrentChapter)
}
