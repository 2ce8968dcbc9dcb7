package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storylock/internal/access"
	"storylock/internal/alias"
	"storylock/internal/geo"
	"storylock/internal/grace"
	"storylock/internal/media"
	"storylock/internal/metrics"
	"storylock/internal/progress"
	"storylock/internal/store"
	"storylock/internal/unlock"
	"storylock/internal/util"
	"storylock/internal/view"
)

type storyStore interface {
	GetStory(context.Context, string) (store.Story, error)
	GetStoryByShortCode(context.Context, string) (store.Story, error)
	GetChapter(context.Context, string) (store.Chapter, error)
	GetChapterByNumber(context.Context, string, int) (store.Chapter, error)
	ListChapters(context.Context, string) ([]store.Chapter, error)
	RaiseWatermark(context.Context, string, string, string, int) error
}

// unlockLedger is satisfied by store.PostgresStore, store.MemoryStore and
// ledger.RedisStore.
type unlockLedger interface {
	LookupUnlock(context.Context, string, string) (store.UnlockRecord, bool, error)
	RecordUnlock(context.Context, store.UnlockRecord) (store.UnlockRecord, bool, error)
	IncrementAttempts(context.Context, string) (int64, error)
	AttemptCount(context.Context, string) (int64, error)
	ListUnlocks(context.Context, string) ([]store.UnlockRecord, error)
}

type Options struct {
	Media   media.Linker
	Aliases *alias.Resolver
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Service struct {
	stories storyStore
	ledger  unlockLedger
	media   media.Linker
	aliases *alias.Resolver
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(stories storyStore, ledger unlockLedger, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		stories: stories,
		ledger:  ledger,
		media:   opts.Media,
		aliases: opts.Aliases,
		log:     log.Named("engine"),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type UnlockInput struct {
	Location *geo.Point `json:"location,omitempty"`
	Code     *string    `json:"code,omitempty"`
	Password *string    `json:"password,omitempty"`
}

type UnlockResult struct {
	Unlocked        bool                 `json:"unlocked"`
	AlreadyUnlocked bool                 `json:"alreadyUnlocked"`
	Checks          []unlock.CheckResult `json:"checks"`
	UnlockedAt      *time.Time           `json:"unlockedAt,omitempty"`
	Method          string               `json:"method,omitempty"`
	Chapter         *view.Chapter        `json:"chapter,omitempty"`
}

// Err returns a validation failure carrying the checks when the chapter
// stayed locked, nil otherwise.
func (r UnlockResult) Err() error {
	if r.Unlocked {
		return nil
	}
	return domainError(ErrValidationFailed, CodeValidationFailed, "Unlock conditions not met", r.Checks)
}

// ContentStatus reports a chapter view whose body could not be decrypted.
func ContentStatus(ch view.Chapter) error {
	if !ch.ContentUnavailable {
		return nil
	}
	return domainError(ErrContentUnavailable, CodeContentUnavailable, "Chapter content is unavailable", map[string]any{"chapterId": ch.ID})
}

func (s *Service) ResolveAccess(ctx context.Context, storyID string, caller access.Caller) (access.Access, error) {
	story, err := s.loadStory(ctx, storyID)
	if err != nil {
		return access.Access{}, err
	}
	return visibleAccess(story, caller)
}

func (s *Service) AttemptUnlock(ctx context.Context, chapterID string, caller access.Caller, input UnlockInput) (UnlockResult, error) {
	chapter, story, acc, err := s.loadChapter(ctx, chapterID, caller)
	if err != nil {
		return UnlockResult{}, err
	}
	if !acc.Can(access.ActionUnlock) {
		return UnlockResult{}, forbidden("Only the creator or a recipient can unlock this chapter")
	}
	if caller.ID == "" {
		return UnlockResult{}, forbidden("A user id is required to unlock a chapter")
	}
	log := s.log.With(
		zap.String("attempt_id", util.NewID("att")),
		zap.String("chapter_id", chapter.ID),
		zap.String("user_id", caller.ID),
	)

	existing, found, err := s.ledger.LookupUnlock(ctx, chapter.ID, caller.ID)
	if err != nil {
		return UnlockResult{}, fmt.Errorf("lookup unlock: %w", err)
	}
	if found {
		s.metrics.UnlockAttempt(metrics.OutcomeAlready)
		return s.unlockedResult(ctx, story, chapter, acc, existing, true), nil
	}

	if _, err := s.ledger.IncrementAttempts(ctx, chapter.ID); err != nil {
		s.metrics.BackendError("increment_attempts")
		log.Warn("attempt counter not incremented", zap.Error(err))
	}

	previous := false
	if chapter.Conditions.RequirePreviousChapter {
		previous, err = s.previousUnlocked(ctx, chapter, caller.ID)
		if err != nil {
			return UnlockResult{}, err
		}
	}

	now := s.now()
	checks := unlock.Evaluate(chapter, unlock.Input{
		Now:              now,
		Location:         input.Location,
		Code:             input.Code,
		Password:         input.Password,
		PreviousUnlocked: previous,
	})
	if !unlock.AllPassed(checks) {
		s.metrics.UnlockAttempt(metrics.OutcomeRejected)
		for _, failed := range unlock.Failed(checks) {
			s.metrics.CheckFailed(string(failed.Type))
		}
		log.Debug("unlock rejected", zap.Int("failed_checks", len(unlock.Failed(checks))))
		return UnlockResult{Checks: checks}, nil
	}

	stored, created, err := s.ledger.RecordUnlock(ctx, store.UnlockRecord{
		ChapterID:  chapter.ID,
		UserID:     caller.ID,
		UnlockedAt: now,
		Method:     unlock.Method(checks),
	})
	if err != nil {
		return UnlockResult{}, fmt.Errorf("record unlock: %w", err)
	}
	if !created {
		s.metrics.UnlockAttempt(metrics.OutcomeAlready)
		log.Debug("unlock already recorded by a concurrent request")
		return s.unlockedResult(ctx, story, chapter, acc, stored, true), nil
	}

	if acc.IsRecipient {
		if err := s.stories.RaiseWatermark(ctx, story.ID, caller.ID, caller.Email, chapter.Number); err != nil {
			s.metrics.BackendError("raise_watermark")
			log.Warn("recipient watermark not raised", zap.Error(err))
		}
	}
	s.metrics.UnlockAttempt(metrics.OutcomeUnlocked)
	log.Info("chapter unlocked", zap.String("method", stored.Method))

	result := s.unlockedResult(ctx, story, chapter, acc, stored, false)
	result.Checks = checks
	return result, nil
}

func (s *Service) unlockedResult(ctx context.Context, story store.Story, chapter store.Chapter, acc access.Access, record store.UnlockRecord, already bool) UnlockResult {
	at := record.UnlockedAt
	ch := s.chapterView(ctx, story, chapter, acc, &record)
	return UnlockResult{
		Unlocked:        true,
		AlreadyUnlocked: already,
		Checks:          []unlock.CheckResult{},
		UnlockedAt:      &at,
		Method:          record.Method,
		Chapter:         &ch,
	}
}

// previousUnlocked looks up the chapter numbered exactly one below. A gap in
// the numbering counts as locked.
func (s *Service) previousUnlocked(ctx context.Context, chapter store.Chapter, userID string) (bool, error) {
	prev, err := s.stories.GetChapterByNumber(ctx, chapter.StoryID, chapter.Number-1)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load previous chapter: %w", err)
	}
	_, found, err := s.ledger.LookupUnlock(ctx, prev.ID, userID)
	if err != nil {
		return false, fmt.Errorf("lookup previous unlock: %w", err)
	}
	return found, nil
}

func (s *Service) ViewChapter(ctx context.Context, chapterID string, caller access.Caller) (view.Chapter, error) {
	chapter, story, acc, err := s.loadChapter(ctx, chapterID, caller)
	if err != nil {
		return view.Chapter{}, err
	}
	var record *store.UnlockRecord
	if caller.ID != "" {
		existing, found, err := s.ledger.LookupUnlock(ctx, chapter.ID, caller.ID)
		if err != nil {
			return view.Chapter{}, fmt.Errorf("lookup unlock: %w", err)
		}
		if found {
			record = &existing
		}
	}
	return s.chapterView(ctx, story, chapter, acc, record), nil
}

func (s *Service) chapterView(ctx context.Context, story store.Story, chapter store.Chapter, acc access.Access, record *store.UnlockRecord) view.Chapter {
	src := view.Source{
		Story:       story,
		Chapter:     chapter,
		Unlock:      record,
		GraceActive: acc.Can(access.ActionPreview) && grace.Active(story.Settings, acc.IsCreator, s.now()),
	}
	if view.ShowsContent(record != nil, acc.IsCreator, src.GraceActive) {
		src.MediaURL = s.mediaURL(ctx, chapter)
		if record == nil {
			s.metrics.Preview()
		}
	}

	switch acc.Role {
	case access.RoleCreator:
		attempts, err := s.ledger.AttemptCount(ctx, chapter.ID)
		if err != nil {
			s.metrics.BackendError("attempt_count")
			s.log.Warn("attempt count unavailable", zap.String("chapter_id", chapter.ID), zap.Error(err))
		}
		roster, err := s.ledger.ListUnlocks(ctx, chapter.ID)
		if err != nil {
			s.metrics.BackendError("list_unlocks")
			s.log.Warn("unlock roster unavailable", zap.String("chapter_id", chapter.ID), zap.Error(err))
		}
		return view.Creator(src, attempts, roster)
	case access.RoleRecipient:
		return view.Recipient(src)
	default:
		return view.Public(src)
	}
}

func (s *Service) mediaURL(ctx context.Context, chapter store.Chapter) string {
	key := chapter.Content.MediaKey
	if key == "" || s.media == nil {
		return ""
	}
	link, err := s.media.URL(ctx, key)
	if err != nil {
		s.metrics.BackendError("media_url")
		s.log.Warn("media link unavailable", zap.String("chapter_id", chapter.ID), zap.Error(err))
		return ""
	}
	return link
}

func (s *Service) GetProgress(ctx context.Context, storyID string, caller access.Caller) (progress.Report, error) {
	story, err := s.loadStory(ctx, storyID)
	if err != nil {
		return progress.Report{}, err
	}
	acc, err := visibleAccess(story, caller)
	if err != nil {
		return progress.Report{}, err
	}
	chapters, err := s.stories.ListChapters(ctx, story.ID)
	if err != nil {
		return progress.Report{}, fmt.Errorf("list chapters: %w", err)
	}
	unlocks, err := s.unlocksByChapter(ctx, chapters)
	if err != nil {
		return progress.Report{}, err
	}

	report := progress.Derive(chapters, unlocks, caller.ID)
	if idx, ok := access.FindRecipient(story, caller); ok {
		report.CachedChapter = story.Recipients[idx].CurrentChapter
	}
	if acc.Can(access.ActionRoster) {
		report = progress.Roster(report, story, chapters, unlocks)
	}
	return report, nil
}

func (s *Service) unlocksByChapter(ctx context.Context, chapters []store.Chapter) (map[string][]store.UnlockRecord, error) {
	unlocks := make(map[string][]store.UnlockRecord, len(chapters))
	for _, c := range chapters {
		records, err := s.ledger.ListUnlocks(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("list unlocks for %s: %w", c.ID, err)
		}
		unlocks[c.ID] = records
	}
	return unlocks, nil
}

func (s *Service) GetStory(ctx context.Context, storyID string, caller access.Caller) (view.Story, error) {
	story, err := s.loadStory(ctx, storyID)
	if err != nil {
		return view.Story{}, err
	}
	return s.storyView(ctx, story, caller)
}

// GetStoryByShortCode resolves the public alias and then applies the same
// visibility rules as GetStory.
func (s *Service) GetStoryByShortCode(ctx context.Context, shortCode string, caller access.Caller) (view.Story, error) {
	storyID, err := s.resolveShortCode(ctx, shortCode)
	if err != nil {
		return view.Story{}, err
	}
	return s.GetStory(ctx, storyID, caller)
}

func (s *Service) resolveShortCode(ctx context.Context, shortCode string) (string, error) {
	if s.aliases != nil {
		storyID, err := s.aliases.StoryID(ctx, shortCode)
		if err != nil {
			return "", storeError(err, "Story not found", "resolve short code")
		}
		return storyID, nil
	}
	story, err := s.stories.GetStoryByShortCode(ctx, shortCode)
	if err != nil {
		return "", storeError(err, "Story not found", "resolve short code")
	}
	return story.ID, nil
}

func (s *Service) storyView(ctx context.Context, story store.Story, caller access.Caller) (view.Story, error) {
	acc, err := visibleAccess(story, caller)
	if err != nil {
		return view.Story{}, err
	}
	chapters, err := s.stories.ListChapters(ctx, story.ID)
	if err != nil {
		return view.Story{}, fmt.Errorf("list chapters: %w", err)
	}
	unlocked := make(map[string]bool, len(chapters))
	if caller.ID != "" {
		for _, c := range chapters {
			_, found, err := s.ledger.LookupUnlock(ctx, c.ID, caller.ID)
			if err != nil {
				return view.Story{}, fmt.Errorf("lookup unlock: %w", err)
			}
			unlocked[c.ID] = found
		}
	}

	switch acc.Role {
	case access.RoleCreator:
		return view.CreatorStory(story, chapters, unlocked), nil
	case access.RoleRecipient:
		idx, _ := access.FindRecipient(story, caller)
		return view.RecipientStory(story, chapters, unlocked, story.Recipients[idx]), nil
	default:
		return view.PublicStory(story, chapters, unlocked), nil
	}
}

func (s *Service) loadStory(ctx context.Context, storyID string) (store.Story, error) {
	story, err := s.stories.GetStory(ctx, storyID)
	if err != nil {
		return store.Story{}, storeError(err, "Story not found", "load story")
	}
	return story, nil
}

func (s *Service) loadChapter(ctx context.Context, chapterID string, caller access.Caller) (store.Chapter, store.Story, access.Access, error) {
	chapter, err := s.stories.GetChapter(ctx, chapterID)
	if err != nil {
		return store.Chapter{}, store.Story{}, access.Access{}, storeError(err, "Chapter not found", "load chapter")
	}
	story, err := s.loadStory(ctx, chapter.StoryID)
	if err != nil {
		return store.Chapter{}, store.Story{}, access.Access{}, err
	}
	acc, err := visibleAccess(story, caller)
	if err != nil {
		return store.Chapter{}, store.Story{}, access.Access{}, err
	}
	return chapter, story, acc, nil
}

func visibleAccess(story store.Story, caller access.Caller) (access.Access, error) {
	acc := access.Resolve(story, caller)
	if !acc.Visible {
		return acc, forbidden("You do not have access to this story")
	}
	return acc, nil
}

func storeError(err error, message, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(message)
	}
	return fmt.Errorf("%s: %w", op, err)
}
