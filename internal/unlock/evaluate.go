// Package unlock evaluates a chapter's unlock conditions. Evaluation is pure:
// everything it needs, including whether the previous chapter is unlocked,
// arrives through Input.
package unlock

import (
	"fmt"
	"math"
	"strings"
	"time"

	"storylock/internal/geo"
	"storylock/internal/secrets"
	"storylock/internal/store"
)

// DefaultRadiusMeters applies when a geofence has no radius.
const DefaultRadiusMeters = 80.0

type CheckType string

const (
	CheckTime            CheckType = "time"
	CheckLocation        CheckType = "location"
	CheckSecretCode      CheckType = "secret_code"
	CheckPassword        CheckType = "password"
	CheckPreviousChapter CheckType = "previous_chapter"
)

type CheckResult struct {
	Type    CheckType      `json:"type"`
	Passed  bool           `json:"passed"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// Input carries what the caller submitted plus engine-derived facts.
type Input struct {
	Now              time.Time
	Location         *geo.Point
	Code             *string
	Password         *string
	PreviousUnlocked bool
}

// Evaluate runs every enabled condition in a fixed order and returns all
// results, passing or not.
func Evaluate(chapter store.Chapter, in Input) []CheckResult {
	conditions := chapter.Conditions
	results := make([]CheckResult, 0, 5)

	if c := conditions.Time; c != nil && c.Enabled {
		results = append(results, checkTime(*c, in.Now))
	}
	if c := conditions.Location; c != nil && c.Enabled {
		results = append(results, checkLocation(*c, in.Location))
	}
	if c := conditions.SecretCode; c != nil && c.Enabled {
		results = append(results, checkSecretCode(*c, in.Code))
	}
	if c := conditions.Password; c != nil && c.Enabled {
		results = append(results, checkPassword(*c, in.Password))
	}
	if conditions.RequirePreviousChapter {
		results = append(results, checkPrevious(chapter.Number, in.PreviousUnlocked))
	}
	return results
}

// AllPassed is the conjunction of results. An empty list passes.
func AllPassed(results []CheckResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Method joins the evaluated condition types for the ledger record.
func Method(results []CheckResult) string {
	if len(results) == 0 {
		return "none"
	}
	types := make([]string, len(results))
	for i, r := range results {
		types[i] = string(r.Type)
	}
	return strings.Join(types, ",")
}

// Failed returns only the failing results.
func Failed(results []CheckResult) []CheckResult {
	var failed []CheckResult
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func checkTime(c store.TimeCondition, now time.Time) CheckResult {
	unlockAt := c.UnlockAt.UTC().Format(time.RFC3339)
	if !now.Before(c.UnlockAt) {
		return CheckResult{Type: CheckTime, Passed: true, Message: "Unlock time reached", Detail: map[string]any{"unlockAt": unlockAt}}
	}
	return CheckResult{
		Type:    CheckTime,
		Message: fmt.Sprintf("This chapter unlocks at %s", unlockAt),
		Detail:  map[string]any{"unlockAt": unlockAt},
	}
}

func checkLocation(c store.LocationCondition, submitted *geo.Point) CheckResult {
	radius := c.RadiusMeters
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}
	if submitted == nil {
		return CheckResult{
			Type:    CheckLocation,
			Message: "Location required",
			Detail:  map[string]any{"radiusMeters": radius},
		}
	}

	distance := geo.Distance(geo.Point{Latitude: c.Latitude, Longitude: c.Longitude}, *submitted)
	rounded := math.Round(distance)
	detail := map[string]any{"distanceMeters": rounded, "radiusMeters": radius}
	if distance <= radius {
		return CheckResult{
			Type:    CheckLocation,
			Passed:  true,
			Message: fmt.Sprintf("You are %.0fm away, within %.0fm", rounded, radius),
			Detail:  detail,
		}
	}
	return CheckResult{
		Type:    CheckLocation,
		Message: fmt.Sprintf("You are %.0fm away; must be within %.0fm", rounded, radius),
		Detail:  detail,
	}
}

func checkSecretCode(c store.SecretCodeCondition, submitted *string) CheckResult {
	if submitted == nil || *submitted == "" {
		return CheckResult{Type: CheckSecretCode, Message: "Secret code required"}
	}
	if secrets.MatchCode(c.CodeHash, *submitted) {
		return CheckResult{Type: CheckSecretCode, Passed: true, Message: "Secret code accepted"}
	}
	return CheckResult{Type: CheckSecretCode, Message: "Incorrect secret code"}
}

func checkPassword(c store.PasswordCondition, submitted *string) CheckResult {
	if submitted == nil || *submitted == "" {
		return CheckResult{Type: CheckPassword, Message: "Password required"}
	}
	if secrets.MatchPassword(c.PasswordHash, *submitted) {
		return CheckResult{Type: CheckPassword, Passed: true, Message: "Password accepted"}
	}
	return CheckResult{Type: CheckPassword, Message: "Incorrect password"}
}

func checkPrevious(number int, unlocked bool) CheckResult {
	detail := map[string]any{"requiredChapter": number - 1}
	if unlocked {
		return CheckResult{Type: CheckPreviousChapter, Passed: true, Message: "Previous chapter unlocked", Detail: detail}
	}
	return CheckResult{
		Type:    CheckPreviousChapter,
		Message: fmt.Sprintf("Unlock chapter %d first", number-1),
		Detail:  detail,
	}
}
