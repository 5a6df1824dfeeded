// Package templates serves operator-editable message templates.
//
// Templates live in a message_templates table (Postgres or SQLite) so copy
// changes ship without a deploy. The service caches the active set for a few
// minutes and falls back to built-in copies of the critical messages whenever
// the table is unreachable or a key is missing, so the bot never goes silent
// over a missing row.
package templates

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// CacheTTL is how long the in-process template cache is trusted before the
// next lookup refreshes it from the source.
const CacheTTL = 5 * time.Minute

// knownVariables are the placeholders the bot supplies when rendering.
// Operators editing templates in the database get a warning on refresh for
// anything else, since unknown placeholders render as empty strings.
var knownVariables = map[string]bool{
	"name": true,
}

// Template is one row of the message_templates table.
type Template struct {
	Key      string
	Title    string
	Category string
	Content  string
	IsActive bool
}

// Source loads the active template set from a backend.
type Source interface {
	// LoadActive returns every active template.
	LoadActive(ctx context.Context) ([]Template, error)
	// Close releases backend resources.
	Close() error
}

// Service caches templates from a Source and renders them with variables.
type Service struct {
	source Source

	mu          sync.RWMutex
	cache       map[string]Template
	lastRefresh time.Time

	// now is swappable for cache-expiry tests.
	now func() time.Time
}

// NewService creates a template service on top of a source. A nil source is
// allowed and serves fallbacks only.
func NewService(source Source) *Service {
	slog.Debug("Creating template Service", "source_set", source != nil)
	return &Service{
		source: source,
		cache:  make(map[string]Template),
		now:    time.Now,
	}
}

// Initialize warms the cache. Failure is non-fatal; the service keeps serving
// fallbacks and retries on the next lookup.
func (s *Service) Initialize(ctx context.Context) {
	if s.source == nil {
		slog.Info("Template service running on built-in fallbacks only")
		return
	}
	if err := s.refresh(ctx); err != nil {
		slog.Warn("Template cache warm-up failed, serving fallbacks until refresh", "error", err)
	}
}

// Get returns the content for a template key, or the built-in fallback when
// the key is unknown or the source is unavailable.
func (s *Service) Get(ctx context.Context, key string) string {
	if tmpl, ok := s.lookup(ctx, key); ok {
		return tmpl.Content
	}
	return FallbackMessage(key)
}

// Render returns the template content with {{variable}} placeholders replaced.
// Unknown placeholders render as empty strings, matching a partial variable
// map rather than leaking braces to the user.
func (s *Service) Render(ctx context.Context, key string, variables map[string]string) string {
	return RenderContent(s.Get(ctx, key), variables)
}

// RenderContent substitutes {{name}} placeholders in content.
func RenderContent(content string, variables map[string]string) string {
	for name, value := range variables {
		content = strings.ReplaceAll(content, "{{"+name+"}}", value)
	}
	// Blank out any placeholder the caller did not supply.
	for {
		start := strings.Index(content, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(content[start:], "}}")
		if end < 0 {
			break
		}
		content = content[:start] + content[start+end+2:]
	}
	return content
}

// ExtractVariables returns the distinct placeholder names in content, in
// first-appearance order.
func ExtractVariables(content string) []string {
	var names []string
	seen := make(map[string]bool)
	for {
		start := strings.Index(content, "{{")
		if start < 0 {
			break
		}
		rest := content[start+2:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			break
		}
		name := rest[:end]
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		content = rest[end+2:]
	}
	return names
}

func (s *Service) lookup(ctx context.Context, key string) (Template, bool) {
	if s.source == nil {
		return Template{}, false
	}

	s.mu.RLock()
	stale := s.now().Sub(s.lastRefresh) > CacheTTL
	tmpl, ok := s.cache[key]
	s.mu.RUnlock()

	if stale {
		if err := s.refresh(ctx); err != nil {
			slog.Warn("Template cache refresh failed, serving stale entries", "error", err, "key", key)
		} else {
			s.mu.RLock()
			tmpl, ok = s.cache[key]
			s.mu.RUnlock()
		}
	}

	if !ok {
		slog.Debug("Template not found, using fallback", "key", key)
	}
	return tmpl, ok
}

func (s *Service) refresh(ctx context.Context) error {
	all, err := s.source.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("load active templates: %w", err)
	}

	fresh := make(map[string]Template, len(all))
	for _, tmpl := range all {
		for _, name := range ExtractVariables(tmpl.Content) {
			if !knownVariables[name] {
				slog.Warn("Template references unknown variable, it will render empty",
					"key", tmpl.Key, "variable", name)
			}
		}
		fresh[tmpl.Key] = tmpl
	}

	s.mu.Lock()
	s.cache = fresh
	s.lastRefresh = s.now()
	s.mu.Unlock()

	slog.Info("Template cache refreshed", "count", len(fresh))
	return nil
}

// Close closes the underlying source.
func (s *Service) Close() error {
	if s.source == nil {
		return nil
	}
	return s.source.Close()
}
