// Package progress derives reading progress from unlock ledger records.
// Cached recipient watermarks are reported next to the derived values but
// never used to compute them.
package progress

import (
	"sort"
	"strings"

	"storylock/internal/store"
)

type ChapterUnlocks struct {
	ChapterID string               `json:"chapterId"`
	Number    int                  `json:"chapterNumber"`
	Unlockers []store.UnlockRecord `json:"unlockedBy"`
}

type RecipientProgress struct {
	UserID         string `json:"userId,omitempty"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	CurrentChapter int    `json:"currentChapter"`
	CachedChapter  int    `json:"cachedChapter"`
}

type Report struct {
	CurrentChapter int `json:"currentChapter"`
	TotalChapters  int `json:"totalChapters"`
	CachedChapter  int `json:"cachedChapter,omitempty"`

	Chapters   []ChapterUnlocks    `json:"chapters,omitempty"`
	Recipients []RecipientProgress `json:"recipients,omitempty"`
}

// Watermark returns the highest chapter number userID has unlocked, or 0.
func Watermark(chapters []store.Chapter, unlocks map[string][]store.UnlockRecord, userID string) int {
	highest := 0
	if userID == "" {
		return highest
	}
	for _, c := range chapters {
		if c.Number <= highest {
			continue
		}
		for _, record := range unlocks[c.ID] {
			if record.UserID == userID {
				highest = c.Number
				break
			}
		}
	}
	return highest
}

// Derive builds the caller's report.
func Derive(chapters []store.Chapter, unlocks map[string][]store.UnlockRecord, userID string) Report {
	return Report{
		CurrentChapter: Watermark(chapters, unlocks, userID),
		TotalChapters:  len(chapters),
	}
}

// Roster adds the per-chapter unlockers and each recipient's derived
// watermark to report. It is only meant for the story's creator.
func Roster(report Report, story store.Story, chapters []store.Chapter, unlocks map[string][]store.UnlockRecord) Report {
	ordered := append([]store.Chapter(nil), chapters...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	report.Chapters = make([]ChapterUnlocks, 0, len(ordered))
	for _, c := range ordered {
		records := append([]store.UnlockRecord(nil), unlocks[c.ID]...)
		sort.SliceStable(records, func(i, j int) bool {
			if records[i].UnlockedAt.Equal(records[j].UnlockedAt) {
				return records[i].UserID < records[j].UserID
			}
			return records[i].UnlockedAt.Before(records[j].UnlockedAt)
		})
		report.Chapters = append(report.Chapters, ChapterUnlocks{ChapterID: c.ID, Number: c.Number, Unlockers: records})
	}

	report.Recipients = make([]RecipientProgress, 0, len(story.Recipients))
	for _, r := range story.Recipients {
		report.Recipients = append(report.Recipients, RecipientProgress{
			UserID:         r.UserID,
			Email:          strings.TrimSpace(r.Email),
			Name:           r.Name,
			CurrentChapter: Watermark(chapters, unlocks, r.UserID),
			CachedChapter:  r.CurrentChapter,
		})
	}
	return report
}
