// Package search maintains a Bleve keyword index over the CURRENT version of
// every archived item. Historical versions are queryable through the store,
// not the index; re-indexing an item overwrites its previous entry so the
// index always reflects current versions only.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/pressarc/wp-archive/internal/storage"
)

// Index wraps a Bleve search index.
type Index struct {
	index bleve.Index
}

// IndexedVersion is the projection of a current version into the index.
type IndexedVersion struct {
	ID          string // contentType:remoteID
	ContentType string
	RemoteID    int64
	Version     int
	Title       string
	Content     string
	Author      string
	Slug        string
	RecordedAt  time.Time
}

// Result is one search hit.
type Result struct {
	ID          string
	ContentType string
	RemoteID    int64
	Version     int
	Title       string
	Author      string
	Score       float64
	Fragments   map[string][]string // highlighted snippets
}

// Open opens or creates a Bleve index at path.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en" // English analyzer for better stemming

	// Content type is matched exactly, never tokenized.
	typeFieldMapping := bleve.NewTextFieldMapping()
	typeFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ContentType", typeFieldMapping)
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("Content", textFieldMapping)
	docMapping.AddFieldMappingsAt("Author", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Slug", bleve.NewTextFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexVersion indexes a version as the current one for its logical item,
// replacing whatever version was indexed before.
func (i *Index) IndexVersion(v *storage.Version) error {
	doc := fromVersion(v)
	return i.index.Index(doc.ID, doc)
}

func fromVersion(v *storage.Version) *IndexedVersion {
	return &IndexedVersion{
		ID:          fmt.Sprintf("%s:%d", v.ContentType, v.RemoteID),
		ContentType: v.ContentType,
		RemoteID:    v.RemoteID,
		Version:     v.Number,
		Title:       v.Title,
		Content:     v.Content,
		Author:      v.Author,
		Slug:        v.Slug,
		RecordedAt:  v.RecordedAt,
	}
}

// Search runs a query string query (quotes, boolean operators, fuzzy ~)
// against current versions, optionally restricted to content types.
func (i *Index) Search(queryStr string, contentTypes []string, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = 10
	}

	var q query.Query = bleve.NewQueryStringQuery(queryStr)
	if len(contentTypes) > 0 {
		var typeQueries []query.Query
		for _, ct := range contentTypes {
			tq := bleve.NewTermQuery(ct)
			tq.SetField("ContentType")
			typeQueries = append(typeQueries, tq)
		}
		q = bleve.NewConjunctionQuery(q, bleve.NewDisjunctionQuery(typeQueries...))
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Fields = []string{"ContentType", "RemoteID", "Version", "Title", "Author"}

	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var out []*Result
	for _, hit := range results.Hits {
		r := &Result{
			ID:        hit.ID,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}
		if ct, ok := hit.Fields["ContentType"].(string); ok {
			r.ContentType = ct
		}
		if id, ok := hit.Fields["RemoteID"].(float64); ok {
			r.RemoteID = int64(id)
		}
		if n, ok := hit.Fields["Version"].(float64); ok {
			r.Version = int(n)
		}
		if title, ok := hit.Fields["Title"].(string); ok {
			r.Title = title
		}
		if author, ok := hit.Fields["Author"].(string); ok {
			r.Author = author
		}
		out = append(out, r)
	}
	return out, nil
}

// Rebuild reindexes the current version of every item in the store.
func (i *Index) Rebuild(ctx context.Context, store *storage.Store, contentTypes []string, progress func(done, total int)) error {
	batch := i.index.NewBatch()
	var all []*storage.Version
	for _, ct := range contentTypes {
		versions, err := store.CurrentVersions(ctx, ct)
		if err != nil {
			return fmt.Errorf("load current versions: %w", err)
		}
		all = append(all, versions...)
	}

	for n, v := range all {
		doc := fromVersion(v)
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
		if progress != nil {
			progress(n+1, len(all))
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Count returns the number of indexed current versions.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
