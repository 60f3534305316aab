// Package prompts implements the TTL-cached prompt template registry
// (§4.10), grounded on the teacher's pkg/runbook/cache.go lazy-refresh
// pattern: entries are fetched on demand and kept until they age out.
package prompts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Template is a named prompt body with "{{var}}" placeholders.
type Template struct {
	Name      string
	Body      string
	FetchedAt time.Time
}

// Source fetches the current body for a named template from wherever
// prompts are authored (a file, a config service, a database row).
type Source func(ctx context.Context, name string) (string, error)

// Registry caches templates fetched from Source for TTL before refetching.
type Registry struct {
	source Source
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]Template
}

// NewRegistry builds a Registry that refreshes entries older than ttl.
func NewRegistry(source Source, ttl time.Duration) *Registry {
	return &Registry{source: source, ttl: ttl, cache: map[string]Template{}}
}

// Get returns the named template, refreshing from Source if the cached
// copy is missing or stale.
func (r *Registry) Get(ctx context.Context, name string) (Template, error) {
	r.mu.Lock()
	entry, ok := r.cache[name]
	fresh := ok && time.Since(entry.FetchedAt) < r.ttl
	r.mu.Unlock()
	if fresh {
		return entry, nil
	}

	body, err := r.source(ctx, name)
	if err != nil {
		if ok {
			// Serve the stale entry rather than fail a request outright
			// when the upstream source is temporarily unavailable.
			return entry, nil
		}
		return Template{}, fmt.Errorf("prompts: fetch %q: %w", name, err)
	}

	t := Template{Name: name, Body: body, FetchedAt: time.Now()}
	r.mu.Lock()
	r.cache[name] = t
	r.mu.Unlock()
	return t, nil
}

// Render substitutes "{{var}}" placeholders in the template body with vars,
// leaving unmatched placeholders untouched. It never mutates vars.
func (t Template) Render(vars map[string]string) string {
	body := t.Body
	for k, v := range vars {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body
}
