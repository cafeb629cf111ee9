// Package fingerprint normalizes raw WordPress records and computes stable
// content digests for change detection. Everything here is pure: no I/O, no
// shared mutable state.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pressarc/wp-archive/internal/wordpress"
)

// Volatile markup that changes between requests without representing a real
// content change: social sharing widgets, ad slots, scripts, generated
// styling and data attributes.
var (
	reShareThis = regexp.MustCompile(`(?is)<div[^>]*class="[^"]*sharethis[^"]*"[^>]*>.*?</div>`)
	reSocial    = regexp.MustCompile(`(?is)<div[^>]*class="[^"]*(?:social-share|share-buttons|social-media)[^"]*"[^>]*>.*?</div>`)
	reAds       = regexp.MustCompile(`(?is)<div[^>]*class="[^"]*(?:adsbygoogle|advertisement|ad-container)[^"]*"[^>]*>.*?</div>`)
	reScript    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reStyleAttr = regexp.MustCompile(`style="[^"]*"`)
	reDataAttr  = regexp.MustCompile(`data-[^=\s>]*="[^"]*"`)
	reEmptyDiv  = regexp.MustCompile(`<div[^>]*>\s*</div>`)
	reEmptySpan = regexp.MustCompile(`<span[^>]*>\s*</span>`)
	reSpace     = regexp.MustCompile(`\s+`)
)

// NormalizeHTML strips volatile markup from rendered HTML and collapses it
// into a whitespace-normalized form suitable for hashing.
func NormalizeHTML(content string) string {
	if content == "" {
		return ""
	}
	content = reShareThis.ReplaceAllString(content, "")
	content = reSocial.ReplaceAllString(content, "")
	content = reAds.ReplaceAllString(content, "")
	content = reScript.ReplaceAllString(content, "")
	content = reStyleAttr.ReplaceAllString(content, "")
	content = reDataAttr.ReplaceAllString(content, "")
	content = reEmptyDiv.ReplaceAllString(content, "")
	content = reEmptySpan.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = reSpace.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}

// Canonical is the normalized form of one record: named fields with volatile
// content already stripped.
type Canonical map[string]string

// Sum computes the SHA-256 digest over a deterministic serialization of the
// canonical form. Field order is fixed by sorting names, so the same logical
// content always yields the same digest regardless of source ordering.
func (c Canonical) Sum() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, c[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Engine builds canonical forms per content type. The set of fields dropped
// before hashing is configurable per type; the defaults exclude request-scoped
// metadata (links, modification timestamps) and usage counters.
type Engine struct {
	volatile map[wordpress.ContentType]map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithVolatileFields marks additional canonical fields of a content type as
// volatile: they are stripped before fingerprinting.
func WithVolatileFields(ct wordpress.ContentType, fields ...string) Option {
	return func(e *Engine) {
		m := e.volatile[ct]
		if m == nil {
			m = make(map[string]bool)
			e.volatile[ct] = m
		}
		for _, f := range fields {
			m[f] = true
		}
	}
}

// New creates an Engine with the default per-type volatile field sets.
func New(opts ...Option) *Engine {
	e := &Engine{
		volatile: map[wordpress.ContentType]map[string]bool{
			// Term counts change whenever any post is published; they are
			// not content changes.
			wordpress.TypeCategories: {"count": true},
			wordpress.TypeTags:       {"count": true},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Canonicalize reduces an item to its canonical form.
func (e *Engine) Canonicalize(item wordpress.Item) Canonical {
	var ct wordpress.ContentType
	c := Canonical{}

	switch v := item.(type) {
	case *wordpress.Post:
		ct = wordpress.TypePosts
		c["title"] = NormalizeHTML(v.Title.Rendered)
		c["content"] = NormalizeHTML(v.Content.Rendered)
		c["excerpt"] = NormalizeHTML(v.Excerpt.Rendered)
		c["status"] = v.Status
		c["slug"] = v.Slug
		c["author"] = strconv.FormatInt(v.Author, 10)
		// Term membership is content: re-categorizing a post is a change.
		c["categories"] = joinIDs(v.Categories)
		c["tags"] = joinIDs(v.Tags)
	case *wordpress.Comment:
		ct = wordpress.TypeComments
		c["content"] = NormalizeHTML(v.Content.Rendered)
		c["status"] = v.Status
		c["post"] = strconv.FormatInt(v.Post, 10)
		c["parent"] = strconv.FormatInt(v.Parent, 10)
		c["author_name"] = v.AuthorName
		c["author_email"] = v.AuthorEmail
		c["author_url"] = v.AuthorURL
	case *wordpress.Page:
		ct = wordpress.TypePages
		c["title"] = NormalizeHTML(v.Title.Rendered)
		c["content"] = NormalizeHTML(v.Content.Rendered)
		c["excerpt"] = NormalizeHTML(v.Excerpt.Rendered)
		c["status"] = v.Status
		c["slug"] = v.Slug
		c["author"] = strconv.FormatInt(v.Author, 10)
	case *wordpress.User:
		ct = wordpress.TypeUsers
		c["name"] = v.Name
		c["description"] = NormalizeHTML(v.Description)
		c["url"] = v.URL
		c["slug"] = v.Slug
	case *wordpress.Category:
		ct = wordpress.TypeCategories
		c["name"] = v.Name
		c["description"] = NormalizeHTML(v.Description)
		c["slug"] = v.Slug
		c["taxonomy"] = v.Taxonomy
		c["parent"] = strconv.FormatInt(v.Parent, 10)
		c["count"] = strconv.FormatInt(v.Count, 10)
	case *wordpress.Tag:
		ct = wordpress.TypeTags
		c["name"] = v.Name
		c["description"] = NormalizeHTML(v.Description)
		c["slug"] = v.Slug
		c["taxonomy"] = v.Taxonomy
		c["count"] = strconv.FormatInt(v.Count, 10)
	}

	for f := range e.volatile[ct] {
		delete(c, f)
	}
	return c
}

// joinIDs renders an id set order-independently.
func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// Fingerprint returns the stable digest for an item.
func (e *Engine) Fingerprint(item wordpress.Item) string {
	return e.Canonicalize(item).Sum()
}
