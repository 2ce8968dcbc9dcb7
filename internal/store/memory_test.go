package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T) *MemoryStore {
	t.Helper()

	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.InsertStory(ctx, Story{
		ID:        "sty_1",
		CreatorID: "usr_creator",
		ShortCode: "abc123",
		Recipients: []Recipient{
			{UserID: "usr_a", Email: "a@example.com", Name: "A"},
			{Email: "B@Example.com", Name: "B"},
		},
	}))
	for _, n := range []int{2, 1, 3} {
		require.NoError(t, s.InsertChapter(ctx, Chapter{
			ID:      fmt.Sprintf("chp_%d", n),
			StoryID: "sty_1",
			Number:  n,
		}))
	}
	return s
}

func TestMemoryStoreLookups(t *testing.T) {
	s := seedMemory(t)
	ctx := context.Background()

	story, err := s.GetStoryByShortCode(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "sty_1", story.ID)
	assert.Equal(t, StoryStatusActive, story.Status)

	chapter, err := s.GetChapterByNumber(ctx, "sty_1", 3)
	require.NoError(t, err)
	assert.Equal(t, "chp_3", chapter.ID)

	chapters, err := s.ListChapters(ctx, "sty_1")
	require.NoError(t, err)
	require.Len(t, chapters, 3)
	for i, c := range chapters {
		assert.Equal(t, i+1, c.Number)
	}

	_, err = s.GetStory(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetChapterByNumber(ctx, "sty_1", 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRejectsDuplicateChapterNumber(t *testing.T) {
	s := seedMemory(t)
	err := s.InsertChapter(context.Background(), Chapter{ID: "chp_dup", StoryID: "sty_1", Number: 2})
	assert.Error(t, err)
}

func TestMemoryStoreRecordUnlockIsIdempotent(t *testing.T) {
	s := seedMemory(t)
	ctx := context.Background()
	first := UnlockRecord{ChapterID: "chp_1", UserID: "usr_a", UnlockedAt: time.Unix(100, 0), Method: "time"}

	stored, created, err := s.RecordUnlock(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first, stored)

	stored, created, err = s.RecordUnlock(ctx, UnlockRecord{ChapterID: "chp_1", UserID: "usr_a", UnlockedAt: time.Unix(200, 0), Method: "password"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, stored)

	records, err := s.ListUnlocks(ctx, "chp_1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMemoryStoreConcurrentRecordUnlock(t *testing.T) {
	s := seedMemory(t)
	ctx := context.Background()

	const workers = 64
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok, err := s.RecordUnlock(ctx, UnlockRecord{
				ChapterID:  "chp_2",
				UserID:     "usr_a",
				UnlockedAt: time.Unix(int64(i), 0),
				Method:     "secret_code",
			})
			assert.NoError(t, err)
			_, _ = s.IncrementAttempts(ctx, "chp_2")
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	records, err := s.ListUnlocks(ctx, "chp_2")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	attempts, err := s.AttemptCount(ctx, "chp_2")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), attempts)
}

func TestMemoryStoreRaiseWatermark(t *testing.T) {
	s := seedMemory(t)
	ctx := context.Background()

	require.NoError(t, s.RaiseWatermark(ctx, "sty_1", "usr_a", "", 2))
	require.NoError(t, s.RaiseWatermark(ctx, "sty_1", "usr_a", "", 1))
	require.NoError(t, s.RaiseWatermark(ctx, "sty_1", "usr_b", "b@example.com", 3))

	story, err := s.GetStory(ctx, "sty_1")
	require.NoError(t, err)
	assert.Equal(t, 2, story.Recipients[0].CurrentChapter)
	assert.Equal(t, "usr_b", story.Recipients[1].UserID)
	assert.Equal(t, 3, story.Recipients[1].CurrentChapter)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := seedMemory(t)
	ctx := context.Background()

	story, err := s.GetStory(ctx, "sty_1")
	require.NoError(t, err)
	story.Recipients[0].CurrentChapter = 99

	again, err := s.GetStory(ctx, "sty_1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Recipients[0].CurrentChapter)
}
