// Package alias maps public short codes to story ids. The mapping never
// changes once a story exists, so hits are served from memory.
package alias

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/ristretto/v2"

	"storylock/internal/store"
)

type storyLookup interface {
	GetStoryByShortCode(ctx context.Context, shortCode string) (store.Story, error)
}

type Resolver struct {
	stories storyLookup
	cache   *ristretto.Cache[string, string]
}

// NewResolver caches up to roughly counters/10 aliases.
func NewResolver(stories storyLookup, counters int64) (*Resolver, error) {
	if counters <= 0 {
		counters = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: counters,
		MaxCost:     counters / 10,
		BufferItems: 64,
		// Each alias costs 1 regardless of its in-memory size.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create alias cache: %w", err)
	}
	return &Resolver{stories: stories, cache: cache}, nil
}

// StoryID resolves shortCode. A miss falls through to the store; absent
// codes return store.ErrNotFound and are not cached.
func (r *Resolver) StoryID(ctx context.Context, shortCode string) (string, error) {
	code := strings.TrimSpace(shortCode)
	if code == "" {
		return "", store.ErrNotFound
	}
	if id, ok := r.cache.Get(code); ok {
		return id, nil
	}

	story, err := r.stories.GetStoryByShortCode(ctx, code)
	if err != nil {
		return "", err
	}
	r.cache.Set(code, story.ID, 1)
	return story.ID, nil
}

// Wait blocks until buffered cache writes are visible.
func (r *Resolver) Wait() {
	r.cache.Wait()
}

func (r *Resolver) Close() {
	r.cache.Close()
}
