package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type unlockKey struct {
	chapterID string
	userID    string
}

// MemoryStore keeps stories and chapters in arenas addressed through id
// indexes. The unlock ledger is a keyed map; (chapter, user) uniqueness is
// enforced under the write lock.
type MemoryStore struct {
	mu sync.RWMutex

	stories      []Story
	storyIndex   map[string]int
	shortCodes   map[string]int
	chapters     []Chapter
	chapterIndex map[string]int
	byNumber     map[string]map[int]int

	unlocks   map[unlockKey]UnlockRecord
	byChapter map[string][]unlockKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		storyIndex:   make(map[string]int),
		shortCodes:   make(map[string]int),
		chapterIndex: make(map[string]int),
		byNumber:     make(map[string]map[int]int),
		unlocks:      make(map[unlockKey]UnlockRecord),
		byChapter:    make(map[string][]unlockKey),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) InsertStory(_ context.Context, story Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.storyIndex[story.ID]; ok {
		return fmt.Errorf("insert story: %s already exists", story.ID)
	}
	if story.ShortCode != "" {
		if _, ok := s.shortCodes[story.ShortCode]; ok {
			return fmt.Errorf("insert story: short code %s already in use", story.ShortCode)
		}
	}
	if story.Status == "" {
		story.Status = StoryStatusDraft
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now().UTC()
	}
	story.Recipients = append([]Recipient(nil), story.Recipients...)

	s.stories = append(s.stories, story)
	idx := len(s.stories) - 1
	s.storyIndex[story.ID] = idx
	if story.ShortCode != "" {
		s.shortCodes[story.ShortCode] = idx
	}
	return nil
}

func (s *MemoryStore) InsertChapter(_ context.Context, chapter Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	storyIdx, ok := s.storyIndex[chapter.StoryID]
	if !ok {
		return fmt.Errorf("insert chapter: story %s: %w", chapter.StoryID, ErrNotFound)
	}
	if _, ok := s.chapterIndex[chapter.ID]; ok {
		return fmt.Errorf("insert chapter: %s already exists", chapter.ID)
	}
	numbers := s.byNumber[chapter.StoryID]
	if numbers == nil {
		numbers = make(map[int]int)
		s.byNumber[chapter.StoryID] = numbers
	}
	if _, ok := numbers[chapter.Number]; ok {
		return fmt.Errorf("insert chapter: chapter %d already exists in story %s", chapter.Number, chapter.StoryID)
	}
	if chapter.CreatedAt.IsZero() {
		chapter.CreatedAt = time.Now().UTC()
	}

	s.chapters = append(s.chapters, chapter)
	idx := len(s.chapters) - 1
	s.chapterIndex[chapter.ID] = idx
	numbers[chapter.Number] = idx

	if s.stories[storyIdx].Status == StoryStatusDraft {
		s.stories[storyIdx].Status = StoryStatusActive
	}
	return nil
}

func (s *MemoryStore) GetStory(_ context.Context, storyID string) (Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.storyIndex[storyID]
	if !ok {
		return Story{}, ErrNotFound
	}
	return s.copyStory(idx), nil
}

func (s *MemoryStore) GetStoryByShortCode(_ context.Context, shortCode string) (Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.shortCodes[shortCode]
	if !ok {
		return Story{}, ErrNotFound
	}
	return s.copyStory(idx), nil
}

func (s *MemoryStore) copyStory(idx int) Story {
	story := s.stories[idx]
	story.Recipients = append([]Recipient(nil), story.Recipients...)
	return story
}

func (s *MemoryStore) RaiseWatermark(_ context.Context, storyID, userID, email string, chapterNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.storyIndex[storyID]
	if !ok {
		return ErrNotFound
	}
	recipients := s.stories[idx].Recipients
	for i := range recipients {
		byID := userID != "" && recipients[i].UserID == userID
		byEmail := email != "" && strings.EqualFold(recipients[i].Email, email)
		if !byID && !byEmail {
			continue
		}
		if recipients[i].UserID == "" {
			recipients[i].UserID = userID
		}
		if chapterNumber > recipients[i].CurrentChapter {
			recipients[i].CurrentChapter = chapterNumber
		}
	}
	return nil
}

func (s *MemoryStore) GetChapter(_ context.Context, chapterID string) (Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.chapterIndex[chapterID]
	if !ok {
		return Chapter{}, ErrNotFound
	}
	return s.chapters[idx], nil
}

func (s *MemoryStore) GetChapterByNumber(_ context.Context, storyID string, number int) (Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byNumber[storyID][number]
	if !ok {
		return Chapter{}, ErrNotFound
	}
	return s.chapters[idx], nil
}

func (s *MemoryStore) ListChapters(_ context.Context, storyID string) ([]Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Chapter, 0, len(s.byNumber[storyID]))
	for _, idx := range s.byNumber[storyID] {
		items = append(items, s.chapters[idx])
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Number < items[j].Number })
	return items, nil
}

func (s *MemoryStore) LookupUnlock(_ context.Context, chapterID, userID string) (UnlockRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.unlocks[unlockKey{chapterID: chapterID, userID: userID}]
	return record, ok, nil
}

func (s *MemoryStore) RecordUnlock(_ context.Context, record UnlockRecord) (UnlockRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := unlockKey{chapterID: record.ChapterID, userID: record.UserID}
	if existing, ok := s.unlocks[key]; ok {
		return existing, false, nil
	}
	s.unlocks[key] = record
	s.byChapter[record.ChapterID] = append(s.byChapter[record.ChapterID], key)
	return record, true, nil
}

func (s *MemoryStore) IncrementAttempts(_ context.Context, chapterID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.chapterIndex[chapterID]
	if !ok {
		return 0, ErrNotFound
	}
	s.chapters[idx].AttemptCount++
	return s.chapters[idx].AttemptCount, nil
}

func (s *MemoryStore) AttemptCount(_ context.Context, chapterID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.chapterIndex[chapterID]
	if !ok {
		return 0, ErrNotFound
	}
	return s.chapters[idx].AttemptCount, nil
}

// ListUnlocks returns the chapter's records in insertion order.
func (s *MemoryStore) ListUnlocks(_ context.Context, chapterID string) ([]UnlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byChapter[chapterID]
	items := make([]UnlockRecord, 0, len(keys))
	for _, key := range keys {
		items = append(items, s.unlocks[key])
	}
	return items, nil
}
