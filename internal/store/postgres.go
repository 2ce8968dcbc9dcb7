package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertStory writes a story and its recipient roster. Authoring normally
// happens elsewhere; this exists for seeding and tests.
func (s *PostgresStore) InsertStory(ctx context.Context, story Story) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert story: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	status := story.Status
	if status == "" {
		status = StoryStatusDraft
	}
	createdAt := story.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stories (id, creator_id, title, is_public, is_encrypted, encryption_key, grace_period_days, creator_access_until, status, short_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, story.ID, story.CreatorID, story.Title, story.IsPublic, story.IsEncrypted, nullString(story.EncryptionKey),
		story.Settings.CreatorGracePeriodDays, story.Settings.CreatorAccessUntil, status, nullString(story.ShortCode), createdAt)
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}

	for i, recipient := range story.Recipients {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO story_recipients (story_id, position, user_id, email, name, current_chapter)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, story.ID, i, nullString(recipient.UserID), recipient.Email, recipient.Name, recipient.CurrentChapter)
		if err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert story: %w", err)
	}
	return nil
}

// InsertChapter adds a chapter and activates its story.
func (s *PostgresStore) InsertChapter(ctx context.Context, chapter Chapter) error {
	conditions, err := json.Marshal(chapter.Conditions)
	if err != nil {
		return fmt.Errorf("marshal unlock conditions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert chapter: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := chapter.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chapters (id, story_id, chapter_number, title, body, body_encrypted, media_key, unlock_conditions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, chapter.ID, chapter.StoryID, chapter.Number, chapter.Title, chapter.Content.Body, chapter.Content.Encrypted,
		chapter.Content.MediaKey, conditions, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert chapter: chapter %d already exists in story %s", chapter.Number, chapter.StoryID)
		}
		return fmt.Errorf("insert chapter: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE stories SET status=$2 WHERE id=$1 AND status=$3`,
		chapter.StoryID, StoryStatusActive, StoryStatusDraft); err != nil {
		return fmt.Errorf("activate story: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert chapter: %w", err)
	}
	return nil
}

const selectStory = `
	SELECT id, creator_id, title, is_public, is_encrypted, COALESCE(encryption_key, ''), grace_period_days,
		creator_access_until, status, COALESCE(short_code, ''), created_at
	FROM stories
`

func (s *PostgresStore) GetStory(ctx context.Context, storyID string) (Story, error) {
	return s.getStory(ctx, selectStory+` WHERE id=$1`, storyID)
}

func (s *PostgresStore) GetStoryByShortCode(ctx context.Context, shortCode string) (Story, error) {
	return s.getStory(ctx, selectStory+` WHERE short_code=$1`, shortCode)
}

func (s *PostgresStore) getStory(ctx context.Context, query string, arg string) (Story, error) {
	var (
		story       Story
		accessUntil sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&story.ID, &story.CreatorID, &story.Title, &story.IsPublic, &story.IsEncrypted, &story.EncryptionKey,
		&story.Settings.CreatorGracePeriodDays, &accessUntil, &story.Status, &story.ShortCode, &story.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Story{}, ErrNotFound
	}
	if err != nil {
		return Story{}, fmt.Errorf("get story: %w", err)
	}
	if accessUntil.Valid {
		until := accessUntil.Time
		story.Settings.CreatorAccessUntil = &until
	}

	recipients, err := s.listRecipients(ctx, story.ID)
	if err != nil {
		return Story{}, err
	}
	story.Recipients = recipients
	return story, nil
}

func (s *PostgresStore) listRecipients(ctx context.Context, storyID string) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(user_id, ''), email, name, current_chapter
		FROM story_recipients
		WHERE story_id=$1
		ORDER BY position ASC
	`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	items := make([]Recipient, 0)
	for rows.Next() {
		var item Recipient
		if err := rows.Scan(&item.UserID, &item.Email, &item.Name, &item.CurrentChapter); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return items, nil
}

// RaiseWatermark lifts current_chapter for the recipient matching userID or
// email. It never lowers it. A recipient matched only by email is bound to
// userID.
func (s *PostgresStore) RaiseWatermark(ctx context.Context, storyID, userID, email string, chapterNumber int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE story_recipients
		SET current_chapter = GREATEST(current_chapter, $4),
			user_id = COALESCE(user_id, NULLIF($2, ''))
		WHERE story_id = $1
			AND (($2 <> '' AND user_id = $2) OR ($3 <> '' AND LOWER(email) = LOWER($3)))
	`, storyID, userID, email, chapterNumber)
	if err != nil {
		return fmt.Errorf("raise watermark: %w", err)
	}
	return nil
}

const selectChapter = `
	SELECT id, story_id, chapter_number, title, body, body_encrypted, media_key, unlock_conditions, attempt_count, created_at
	FROM chapters
`

func (s *PostgresStore) GetChapter(ctx context.Context, chapterID string) (Chapter, error) {
	return scanChapter(s.db.QueryRowContext(ctx, selectChapter+` WHERE id=$1`, chapterID))
}

func (s *PostgresStore) GetChapterByNumber(ctx context.Context, storyID string, number int) (Chapter, error) {
	return scanChapter(s.db.QueryRowContext(ctx, selectChapter+` WHERE story_id=$1 AND chapter_number=$2`, storyID, number))
}

func (s *PostgresStore) ListChapters(ctx context.Context, storyID string) ([]Chapter, error) {
	rows, err := s.db.QueryContext(ctx, selectChapter+` WHERE story_id=$1 ORDER BY chapter_number ASC`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	items := make([]Chapter, 0)
	for rows.Next() {
		item, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapters: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChapter(row rowScanner) (Chapter, error) {
	var (
		item       Chapter
		conditions []byte
	)
	err := row.Scan(&item.ID, &item.StoryID, &item.Number, &item.Title, &item.Content.Body, &item.Content.Encrypted,
		&item.Content.MediaKey, &conditions, &item.AttemptCount, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Chapter{}, ErrNotFound
	}
	if err != nil {
		return Chapter{}, fmt.Errorf("scan chapter: %w", err)
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &item.Conditions); err != nil {
			return Chapter{}, fmt.Errorf("decode unlock conditions for %s: %w", item.ID, err)
		}
	}
	return item, nil
}

func (s *PostgresStore) LookupUnlock(ctx context.Context, chapterID, userID string) (UnlockRecord, bool, error) {
	record := UnlockRecord{ChapterID: chapterID, UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT unlocked_at, method FROM chapter_unlocks WHERE chapter_id=$1 AND user_id=$2
	`, chapterID, userID).Scan(&record.UnlockedAt, &record.Method)
	if errors.Is(err, sql.ErrNoRows) {
		return UnlockRecord{}, false, nil
	}
	if err != nil {
		return UnlockRecord{}, false, fmt.Errorf("lookup unlock: %w", err)
	}
	return record, true, nil
}

// RecordUnlock inserts record unless (chapter_id, user_id) already exists.
// It returns the stored record and whether this call created it; concurrent
// callers all observe the single winning row.
func (s *PostgresStore) RecordUnlock(ctx context.Context, record UnlockRecord) (UnlockRecord, bool, error) {
	stored := UnlockRecord{ChapterID: record.ChapterID, UserID: record.UserID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chapter_unlocks (chapter_id, user_id, unlocked_at, method)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chapter_id, user_id) DO NOTHING
		RETURNING unlocked_at, method
	`, record.ChapterID, record.UserID, record.UnlockedAt, record.Method).Scan(&stored.UnlockedAt, &stored.Method)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return UnlockRecord{}, false, fmt.Errorf("record unlock: %w", err)
	}

	existing, ok, err := s.LookupUnlock(ctx, record.ChapterID, record.UserID)
	if err != nil {
		return UnlockRecord{}, false, err
	}
	if !ok {
		return UnlockRecord{}, false, fmt.Errorf("record unlock: conflicting row for %s/%s vanished", record.ChapterID, record.UserID)
	}
	return existing, false, nil
}

func (s *PostgresStore) IncrementAttempts(ctx context.Context, chapterID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE chapters SET attempt_count = attempt_count + 1 WHERE id=$1 RETURNING attempt_count
	`, chapterID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AttemptCount(ctx context.Context, chapterID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT attempt_count FROM chapters WHERE id=$1`, chapterID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read attempt count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListUnlocks(ctx context.Context, chapterID string) ([]UnlockRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, unlocked_at, method
		FROM chapter_unlocks
		WHERE chapter_id=$1
		ORDER BY unlocked_at ASC, user_id ASC
	`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	defer rows.Close()

	items := make([]UnlockRecord, 0)
	for rows.Next() {
		item := UnlockRecord{ChapterID: chapterID}
		if err := rows.Scan(&item.UserID, &item.UnlockedAt, &item.Method); err != nil {
			return nil, fmt.Errorf("scan unlock: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unlocks: %w", err)
	}
	return items, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
