// Package access classifies a caller relative to a story and decides which
// engine actions that classification permits.
package access

import (
	"strings"

	"storylock/internal/store"
)

type Role string
type Action string

const (
	RoleCreator   Role = "creator"
	RoleRecipient Role = "recipient"
	RolePublic    Role = "public"
	RoleNone      Role = "none"
)

const (
	ActionView    Action = "view"
	ActionUnlock  Action = "unlock"
	ActionRoster  Action = "roster"
	ActionPreview Action = "preview"
)

// Caller is an authenticated identity supplied by the session layer.
type Caller struct {
	ID    string
	Email string
}

type Access struct {
	IsCreator   bool `json:"isCreator"`
	IsRecipient bool `json:"isRecipient"`
	Visible     bool `json:"visible"`
	Role        Role `json:"role"`
}

// Resolve classifies caller against story. Recipients match on user id or on
// a case-insensitive email comparison.
func Resolve(story store.Story, caller Caller) Access {
	result := Access{
		IsCreator:   caller.ID != "" && caller.ID == story.CreatorID,
		IsRecipient: IsRecipient(story, caller),
	}
	result.Visible = story.IsPublic || result.IsCreator || result.IsRecipient

	switch {
	case result.IsCreator:
		result.Role = RoleCreator
	case result.IsRecipient:
		result.Role = RoleRecipient
	case story.IsPublic:
		result.Role = RolePublic
	default:
		result.Role = RoleNone
	}
	return result
}

func IsRecipient(story store.Story, caller Caller) bool {
	_, ok := FindRecipient(story, caller)
	return ok
}

// FindRecipient returns the index of the first recipient matching caller.
func FindRecipient(story store.Story, caller Caller) (int, bool) {
	email := strings.TrimSpace(caller.Email)
	for i, recipient := range story.Recipients {
		if caller.ID != "" && recipient.UserID == caller.ID {
			return i, true
		}
		if email != "" && strings.EqualFold(strings.TrimSpace(recipient.Email), email) {
			return i, true
		}
	}
	return -1, false
}

// Can reports whether role may perform action. Creators may unlock chapters
// of their own stories just like recipients.
func Can(role Role, action Action) bool {
	switch role {
	case RoleCreator:
		return action == ActionView || action == ActionUnlock || action == ActionRoster || action == ActionPreview
	case RoleRecipient:
		return action == ActionView || action == ActionUnlock
	case RolePublic:
		return action == ActionView
	default:
		return false
	}
}

func (a Access) Can(action Action) bool {
	return Can(a.Role, action)
}
