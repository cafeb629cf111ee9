package wordpress

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContentType identifies one of the WordPress REST collections we archive.
type ContentType string

const (
	TypePosts      ContentType = "posts"
	TypeComments   ContentType = "comments"
	TypePages      ContentType = "pages"
	TypeUsers      ContentType = "users"
	TypeCategories ContentType = "categories"
	TypeTags       ContentType = "tags"
)

// AllTypes lists every archivable content type.
var AllTypes = []ContentType{
	TypePosts, TypeComments, TypePages, TypeUsers, TypeCategories, TypeTags,
}

// Valid reports whether ct names a known content type.
func (ct ContentType) Valid() bool {
	switch ct {
	case TypePosts, TypeComments, TypePages, TypeUsers, TypeCategories, TypeTags:
		return true
	}
	return false
}

// Rendered is WordPress's wrapper around server-rendered HTML fields.
type Rendered struct {
	Rendered string `json:"rendered"`
}

// Post is a raw post record from /wp/v2/posts.
type Post struct {
	ID         int64    `json:"id"`
	Date       string   `json:"date"`
	Modified   string   `json:"modified"`
	Slug       string   `json:"slug"`
	Status     string   `json:"status"`
	Link       string   `json:"link"`
	Title      Rendered `json:"title"`
	Content    Rendered `json:"content"`
	Excerpt    Rendered `json:"excerpt"`
	Author     int64    `json:"author"`
	Categories []int64  `json:"categories"`
	Tags       []int64  `json:"tags"`
}

// Comment is a raw comment record from /wp/v2/comments.
type Comment struct {
	ID          int64    `json:"id"`
	Post        int64    `json:"post"`
	Parent      int64    `json:"parent"`
	AuthorName  string   `json:"author_name"`
	AuthorEmail string   `json:"author_email"`
	AuthorURL   string   `json:"author_url"`
	Date        string   `json:"date"`
	Status      string   `json:"status"`
	Link        string   `json:"link"`
	Content     Rendered `json:"content"`
}

// Page is a raw page record from /wp/v2/pages.
type Page struct {
	ID       int64    `json:"id"`
	Date     string   `json:"date"`
	Modified string   `json:"modified"`
	Slug     string   `json:"slug"`
	Status   string   `json:"status"`
	Link     string   `json:"link"`
	Title    Rendered `json:"title"`
	Content  Rendered `json:"content"`
	Excerpt  Rendered `json:"excerpt"`
	Author   int64    `json:"author"`
}

// User is a raw user record from /wp/v2/users.
type User struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Description string            `json:"description"`
	Link        string            `json:"link"`
	Slug        string            `json:"slug"`
	AvatarURLs  map[string]string `json:"avatar_urls"`
}

// Category is a raw category record from /wp/v2/categories.
type Category struct {
	ID          int64  `json:"id"`
	Count       int64  `json:"count"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Taxonomy    string `json:"taxonomy"`
	Parent      int64  `json:"parent"`
}

// Tag is a raw tag record from /wp/v2/tags.
type Tag struct {
	ID          int64  `json:"id"`
	Count       int64  `json:"count"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Taxonomy    string `json:"taxonomy"`
}

// Item is the tagged union over all raw record shapes.
type Item interface {
	RemoteID() int64
	// ModifiedAt returns the item's modification date when the type has one.
	// Users, categories and tags carry no reliable date and report ok=false.
	ModifiedAt() (time.Time, bool)
}

func (p *Post) RemoteID() int64     { return p.ID }
func (c *Comment) RemoteID() int64  { return c.ID }
func (p *Page) RemoteID() int64     { return p.ID }
func (u *User) RemoteID() int64     { return u.ID }
func (c *Category) RemoteID() int64 { return c.ID }
func (t *Tag) RemoteID() int64      { return t.ID }

func (p *Post) ModifiedAt() (time.Time, bool)    { return parseDate(p.Modified, p.Date) }
func (c *Comment) ModifiedAt() (time.Time, bool) { return parseDate(c.Date) }
func (p *Page) ModifiedAt() (time.Time, bool)    { return parseDate(p.Modified, p.Date) }
func (u *User) ModifiedAt() (time.Time, bool)    { return time.Time{}, false }
func (c *Category) ModifiedAt() (time.Time, bool) {
	return time.Time{}, false
}
func (t *Tag) ModifiedAt() (time.Time, bool) { return time.Time{}, false }

// wpDateLayout is the naive ISO format WordPress uses for site-local dates.
const wpDateLayout = "2006-01-02T15:04:05"

func parseDate(candidates ...string) (time.Time, bool) {
	for _, s := range candidates {
		if s == "" {
			continue
		}
		if t, err := time.Parse(wpDateLayout, s); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, strings.Replace(s, "Z", "+00:00", 1)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DecodeItem decodes one raw record into its typed shape.
func DecodeItem(ct ContentType, raw json.RawMessage) (Item, error) {
	var (
		item Item
		err  error
	)
	switch ct {
	case TypePosts:
		v := &Post{}
		err = json.Unmarshal(raw, v)
		item = v
	case TypeComments:
		v := &Comment{}
		err = json.Unmarshal(raw, v)
		item = v
	case TypePages:
		v := &Page{}
		err = json.Unmarshal(raw, v)
		item = v
	case TypeUsers:
		v := &User{}
		err = json.Unmarshal(raw, v)
		item = v
	case TypeCategories:
		v := &Category{}
		err = json.Unmarshal(raw, v)
		item = v
	case TypeTags:
		v := &Tag{}
		err = json.Unmarshal(raw, v)
		item = v
	default:
		return nil, fmt.Errorf("unknown content type %q", ct)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s record: %w", ct, err)
	}
	if item.RemoteID() <= 0 {
		return nil, fmt.Errorf("decode %s record: missing or invalid id %d", ct, item.RemoteID())
	}
	return item, nil
}
