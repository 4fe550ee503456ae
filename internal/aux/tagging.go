package aux

import (
	"regexp"
	"sort"
	"strings"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
)

// maxTagLength bounds a single tag (spec.md §4.12 "tag length/charset
// limits").
const maxTagLength = 64

var validTagPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidateTag rejects tags outside the allowed charset/length, mirroring
// the registry's session-name validation idiom.
func ValidateTag(tag string) error {
	norm := strings.ToLower(strings.TrimSpace(tag))
	if norm == "" {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "tag cannot be empty")
	}
	if len(norm) > maxTagLength {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "tag too long (max 64 chars)")
	}
	if !validTagPattern.MatchString(norm) {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "tag can only contain lowercase letters, numbers, hyphens, and underscores")
	}
	return nil
}

// Tagger manages session tags, keeping the registry row and the vector
// store's chunk metadata in sync (spec.md §4.12 "add/remove/list/find-by-tag").
type Tagger struct {
	Registry *registry.Registry
	Store    *vectorstore.Store
}

// AddTag appends tag to sessionID's tag set (idempotent, case-insensitive).
func (t *Tagger) AddTag(sessionID, tag string) error {
	if err := ValidateTag(tag); err != nil {
		return err
	}
	norm := strings.ToLower(strings.TrimSpace(tag))

	sess, ok := t.Registry.Get(sessionID)
	if !ok {
		return sessionerrors.New(sessionerrors.KindNotFound, "session not found").WithQuery(sessionID)
	}

	tags := mergeTag(sess.Tags, norm)
	return t.applyTags(sessionID, tags)
}

// RemoveTag removes tag from sessionID's tag set (no-op if absent).
func (t *Tagger) RemoveTag(sessionID, tag string) error {
	norm := strings.ToLower(strings.TrimSpace(tag))

	sess, ok := t.Registry.Get(sessionID)
	if !ok {
		return sessionerrors.New(sessionerrors.KindNotFound, "session not found").WithQuery(sessionID)
	}

	var tags []string
	for _, existing := range sess.Tags {
		if existing != norm {
			tags = append(tags, existing)
		}
	}
	return t.applyTags(sessionID, tags)
}

// ListTags returns sessionID's current tag set, sorted.
func (t *Tagger) ListTags(sessionID string) ([]string, error) {
	sess, ok := t.Registry.Get(sessionID)
	if !ok {
		return nil, sessionerrors.New(sessionerrors.KindNotFound, "session not found").WithQuery(sessionID)
	}
	out := append([]string(nil), sess.Tags...)
	sort.Strings(out)
	return out, nil
}

// FindByTag lists every session carrying tag.
func (t *Tagger) FindByTag(tag string) []registry.Session {
	norm := strings.ToLower(strings.TrimSpace(tag))
	return t.Registry.List(registry.ListFilter{Tag: norm})
}

func (t *Tagger) applyTags(sessionID string, tags []string) error {
	sort.Strings(tags)
	if err := t.Registry.Update(sessionID, registry.Update{Tags: &tags}); err != nil {
		return err
	}
	return t.Store.SetSessionTags(sessionID, tags)
}

func mergeTag(existing []string, tag string) []string {
	for _, e := range existing {
		if e == tag {
			return existing
		}
	}
	return append(append([]string(nil), existing...), tag)
}
