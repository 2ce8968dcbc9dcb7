package view

import (
	"time"

	"storylock/internal/access"
	"storylock/internal/store"
)

type ChapterSummary struct {
	ID     string `json:"id"`
	Number int    `json:"chapterNumber"`
	Title  string `json:"title"`
	Locked bool   `json:"locked"`
}

type RecipientSummary struct {
	UserID         string `json:"userId,omitempty"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	CurrentChapter int    `json:"currentChapter"`
}

type Story struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Status        string           `json:"status"`
	ShortCode     string           `json:"shortCode,omitempty"`
	IsPublic      bool             `json:"isPublic"`
	IsEncrypted   bool             `json:"isEncrypted"`
	Role          access.Role      `json:"role"`
	TotalChapters int              `json:"totalChapters"`
	Chapters      []ChapterSummary `json:"chapters"`

	CurrentChapter     int                `json:"currentChapter,omitempty"`
	Recipients         []RecipientSummary `json:"recipients,omitempty"`
	CreatorAccessUntil *time.Time         `json:"creatorAccessUntil,omitempty"`
}

// CreatorStory includes the recipient roster and grace window.
func CreatorStory(story store.Story, chapters []store.Chapter, unlocked map[string]bool) Story {
	out := storyBase(story, access.RoleCreator, chapters, unlocked)
	out.Recipients = make([]RecipientSummary, 0, len(story.Recipients))
	for _, r := range story.Recipients {
		out.Recipients = append(out.Recipients, RecipientSummary{
			UserID:         r.UserID,
			Email:          r.Email,
			Name:           r.Name,
			CurrentChapter: r.CurrentChapter,
		})
	}
	if until := story.Settings.CreatorAccessUntil; until != nil {
		at := *until
		out.CreatorAccessUntil = &at
	}
	return out
}

// RecipientStory carries only the caller's own cached watermark.
func RecipientStory(story store.Story, chapters []store.Chapter, unlocked map[string]bool, self store.Recipient) Story {
	out := storyBase(story, access.RoleRecipient, chapters, unlocked)
	out.CurrentChapter = self.CurrentChapter
	return out
}

func PublicStory(story store.Story, chapters []store.Chapter, unlocked map[string]bool) Story {
	return storyBase(story, access.RolePublic, chapters, unlocked)
}

func storyBase(story store.Story, role access.Role, chapters []store.Chapter, unlocked map[string]bool) Story {
	out := Story{
		ID:            story.ID,
		Title:         story.Title,
		Status:        story.Status,
		ShortCode:     story.ShortCode,
		IsPublic:      story.IsPublic,
		IsEncrypted:   story.IsEncrypted,
		Role:          role,
		TotalChapters: len(chapters),
		Chapters:      make([]ChapterSummary, 0, len(chapters)),
	}
	for _, c := range chapters {
		out.Chapters = append(out.Chapters, ChapterSummary{
			ID:     c.ID,
			Number: c.Number,
			Title:  c.Title,
			Locked: !unlocked[c.ID],
		})
	}
	return out
}
