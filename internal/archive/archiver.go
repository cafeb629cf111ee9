// Package archive drives the versioning pipeline: paginate the remote
// source, fingerprint each item, decide new/unchanged/updated, write through
// the version store and record one session per run.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/pressarc/wp-archive/internal/fingerprint"
	"github.com/pressarc/wp-archive/internal/storage"
	"github.com/pressarc/wp-archive/internal/wordpress"
)

// Source is the consumed slice of the remote content API.
type Source interface {
	FetchPage(ctx context.Context, ct wordpress.ContentType, page, perPage int, after *time.Time) (*wordpress.ItemPage, error)
	FetchItem(ctx context.Context, ct wordpress.ContentType, id int64) (json.RawMessage, error)
	Verify(ctx context.Context) error
}

// Indexer receives the current version of each item after insert. Optional.
type Indexer interface {
	IndexVersion(v *storage.Version) error
}

// Options control one archive run.
type Options struct {
	Limit       int        // cap on items processed, 0 = unlimited
	After       *time.Time // only items modified on or after; undated types ignore it
	PageSize    int
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	return o
}

// TypeAll archives every content type in warm-first order.
const TypeAll = "all"

// Categories and tags are archived before posts so post relationship edges
// resolve locally instead of triggering on-demand fetches.
var archiveOrder = []wordpress.ContentType{
	wordpress.TypeCategories,
	wordpress.TypeTags,
	wordpress.TypeUsers,
	wordpress.TypePosts,
	wordpress.TypeComments,
	wordpress.TypePages,
}

// Archiver orchestrates archive runs.
type Archiver struct {
	src    Source
	store  *storage.Store
	engine *fingerprint.Engine
	index  Indexer
	logger *slog.Logger
}

// New creates an Archiver. index may be nil to skip search indexing.
func New(src Source, store *storage.Store, index Indexer, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		src:    src,
		store:  store,
		engine: fingerprint.New(),
		index:  index,
		logger: logger,
	}
}

// run carries the mutable state of one archive run. Counter and error
// updates are mutex-guarded because items fan out across workers.
type run struct {
	mu       sync.Mutex
	sess     *storage.Session
	limit    int
	resolved map[string]bool // terms known present this run
}

// tryProcess counts one attempted item, refusing once the limit is reached.
func (r *run) tryProcess() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && r.sess.ItemsProcessed >= r.limit {
		return false
	}
	r.sess.ItemsProcessed++
	return true
}

func (r *run) limitReached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit > 0 && r.sess.ItemsProcessed >= r.limit
}

func (r *run) addNew() {
	r.mu.Lock()
	r.sess.ItemsNew++
	r.mu.Unlock()
}

func (r *run) addUpdated() {
	r.mu.Lock()
	r.sess.ItemsUpdated++
	r.mu.Unlock()
}

func (r *run) addUnchanged() {
	r.mu.Lock()
	r.sess.ItemsUnchanged++
	r.mu.Unlock()
}

func (r *run) recordError(ct wordpress.ContentType, remoteID int64, err error) {
	r.mu.Lock()
	r.sess.Errors = append(r.sess.Errors, storage.ItemError{
		ContentType: string(ct),
		RemoteID:    remoteID,
		Kind:        classifyKind(err),
		Message:     err.Error(),
	})
	r.mu.Unlock()
}

func (r *run) markResolved(ct wordpress.ContentType, id int64) {
	r.mu.Lock()
	r.resolved[termKey(ct, id)] = true
	r.mu.Unlock()
}

func (r *run) isResolved(ct wordpress.ContentType, id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved[termKey(ct, id)]
}

func termKey(ct wordpress.ContentType, id int64) string {
	return string(ct) + "/" + strconv.FormatInt(id, 10)
}

// Archive runs one session over a single content type or TypeAll. The
// returned session is always finalized, including on failure.
func (a *Archiver) Archive(ctx context.Context, contentType string, opts Options) (*storage.Session, error) {
	opts = opts.withDefaults()

	var types []wordpress.ContentType
	if contentType == TypeAll {
		types = archiveOrder
	} else {
		ct := wordpress.ContentType(contentType)
		if !ct.Valid() {
			return nil, fmt.Errorf("unknown content type %q", contentType)
		}
		types = []wordpress.ContentType{ct}
	}

	sess, err := a.store.BeginSession(ctx, contentType)
	if err != nil {
		return nil, err
	}
	r := &run{sess: sess, limit: opts.Limit, resolved: make(map[string]bool)}

	// Finalize exactly once, with a fresh context so the record survives
	// cancellation of the run context.
	finalize := func() {
		fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.store.FinalizeSession(fctx, sess); err != nil {
			a.logger.Error("finalize session", "session", sess.ID, "error", err)
		}
	}

	start := time.Now()
	a.logger.Info("archive starting", "session", sess.ID, "content_type", contentType,
		"limit", opts.Limit, "page_size", opts.PageSize)

	if err := a.src.Verify(ctx); err != nil {
		r.recordError(wordpress.ContentType(contentType), 0, err)
		sess.Status = storage.StatusFailed
		finalize()
		return sess, fmt.Errorf("source verification failed: %w", err)
	}

	var fatal error
	for _, ct := range types {
		if ctx.Err() != nil || r.limitReached() {
			break
		}
		if err := a.archiveType(ctx, ct, opts, r); err != nil {
			fatal = err
			break
		}
	}

	switch {
	case fatal != nil && sess.ItemsProcessed == 0:
		sess.Status = storage.StatusFailed
	case fatal != nil, ctx.Err() != nil, len(sess.Errors) > 0:
		sess.Status = storage.StatusPartial
	default:
		sess.Status = storage.StatusCompleted
	}
	finalize()

	a.logger.Info("archive finished", "session", sess.ID, "status", sess.Status,
		"processed", sess.ItemsProcessed, "new", sess.ItemsNew,
		"updated", sess.ItemsUpdated, "unchanged", sess.ItemsUnchanged,
		"errors", len(sess.Errors), "duration", time.Since(start))

	return sess, fatal
}

// pageResult carries either a fetched page or the terminal fetch error.
type pageResult struct {
	page *wordpress.ItemPage
	err  error
}

// archiveType paginates one content type. The prefetch goroutine stays one
// page ahead of processing; items within a page fan out to workers, with
// same-remote-id items routed to the same worker so writes for one logical
// item stay serialized. A non-nil return is a fatal source failure.
func (a *Archiver) archiveType(ctx context.Context, ct wordpress.ContentType, opts Options, r *run) error {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pages := make(chan pageResult, 1)
	go func() {
		defer close(pages)
		for page := 1; ; page++ {
			ip, err := a.src.FetchPage(fctx, ct, page, opts.PageSize, opts.After)
			if err != nil {
				select {
				case pages <- pageResult{err: err}:
				case <-fctx.Done():
				}
				return
			}
			select {
			case pages <- pageResult{page: ip}:
			case <-fctx.Done():
				return
			}
			if !ip.HasMore {
				return
			}
		}
	}()

	workers := make([]chan wordpress.Item, opts.Concurrency)
	var wg sync.WaitGroup
	for n := range workers {
		workers[n] = make(chan wordpress.Item)
		wg.Add(1)
		go func(ch <-chan wordpress.Item) {
			defer wg.Done()
			for item := range ch {
				a.processItem(ctx, ct, item, r)
			}
		}(workers[n])
	}
	closeWorkers := func() {
		for _, ch := range workers {
			close(ch)
		}
		wg.Wait()
	}

	var fetchErr error
dispatch:
	for res := range pages {
		if res.err != nil {
			fetchErr = res.err
			break
		}
		for _, raw := range res.page.Items {
			if ctx.Err() != nil {
				break dispatch
			}
			item, err := wordpress.DecodeItem(ct, raw)
			if err != nil {
				if !r.tryProcess() {
					break dispatch
				}
				merr := &MalformedContentError{ContentType: ct, RemoteID: rawID(raw), Err: err}
				a.logger.Warn("skipping malformed item", "content_type", ct, "remote_id", merr.RemoteID, "error", err)
				r.recordError(ct, merr.RemoteID, merr)
				continue
			}
			if opts.After != nil {
				if mod, ok := item.ModifiedAt(); ok && mod.Before(*opts.After) {
					continue
				}
			}
			if !r.tryProcess() {
				break dispatch
			}
			idx := int(item.RemoteID() % int64(opts.Concurrency))
			select {
			case workers[idx] <- item:
			case <-ctx.Done():
				break dispatch
			}
		}
	}
	cancel()
	closeWorkers()

	if fetchErr != nil {
		var notFound *wordpress.NotFoundError
		if errors.As(fetchErr, &notFound) {
			// Unsupported collection: fatal for this type only.
			a.logger.Warn("content type unavailable", "content_type", ct)
			r.recordError(ct, 0, fetchErr)
			return nil
		}
		r.recordError(ct, 0, fetchErr)
		return fmt.Errorf("fetch %s: %w", ct, fetchErr)
	}
	return nil
}

// rawID pulls the remote id out of an undecodable record, best effort.
func rawID(raw json.RawMessage) int64 {
	var probe struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.ID
}

// processItem applies the per-item decision algorithm. Failures are recorded
// into the session; they never abort the run.
func (a *Archiver) processItem(ctx context.Context, ct wordpress.ContentType, item wordpress.Item, r *run) {
	hash := a.engine.Fingerprint(item)

	cur, err := a.store.CurrentVersion(ctx, string(ct), item.RemoteID())
	if err != nil {
		// One retry on storage failure, then record fatal for this item.
		cur, err = a.store.CurrentVersion(ctx, string(ct), item.RemoteID())
		if err != nil {
			r.recordError(ct, item.RemoteID(), err)
			return
		}
	}

	if cur != nil && cur.ContentHash == hash {
		r.addUnchanged()
		return
	}

	next := 1
	if cur != nil {
		next = cur.Number + 1
	}
	v, edges := buildVersion(ct, item, next, hash)

	if err := a.store.InsertVersion(ctx, v, edges); err != nil {
		var conflict *storage.ConflictError
		if errors.As(err, &conflict) {
			// Version-sequence violation: a logic bug or concurrent-writer
			// race. Surfaced, never silently retried.
			r.recordError(ct, item.RemoteID(), err)
			return
		}
		if err = a.store.InsertVersion(ctx, v, edges); err != nil {
			r.recordError(ct, item.RemoteID(), err)
			return
		}
	}

	if cur == nil {
		r.addNew()
	} else {
		r.addUpdated()
		a.logger.Info("new version", "content_type", ct, "remote_id", v.RemoteID, "version", v.Number)
	}

	if a.index != nil {
		// The index is derived data and rebuildable; an index failure does
		// not fail the item.
		if err := a.index.IndexVersion(v); err != nil {
			a.logger.Warn("index version", "content_type", ct, "remote_id", v.RemoteID, "error", err)
		}
	}

	if post, ok := item.(*wordpress.Post); ok {
		a.resolveTerms(ctx, post, r)
	}
}

// resolveTerms archives categories and tags a post references that are not
// yet in the store. Depth is bounded at one level: terms never reference
// posts, and category parents are stored in meta without being resolved.
func (a *Archiver) resolveTerms(ctx context.Context, post *wordpress.Post, r *run) {
	type termRef struct {
		ct wordpress.ContentType
		id int64
	}
	var queue []termRef
	for _, id := range post.Categories {
		queue = append(queue, termRef{wordpress.TypeCategories, id})
	}
	for _, id := range post.Tags {
		queue = append(queue, termRef{wordpress.TypeTags, id})
	}

	for _, ref := range queue {
		if ctx.Err() != nil {
			return
		}
		if r.isResolved(ref.ct, ref.id) {
			continue
		}
		cur, err := a.store.CurrentVersion(ctx, string(ref.ct), ref.id)
		if err != nil {
			r.recordError(ref.ct, ref.id, err)
			continue
		}
		if cur != nil {
			r.markResolved(ref.ct, ref.id)
			continue
		}

		// Resolution attempts count against the limit like any other item.
		if !r.tryProcess() {
			return
		}

		// The edge was already written; the term itself is archived
		// on demand as its own logical item.
		raw, err := a.src.FetchItem(ctx, ref.ct, ref.id)
		if err != nil {
			r.recordError(ref.ct, ref.id, err)
			continue
		}
		item, err := wordpress.DecodeItem(ref.ct, raw)
		if err != nil {
			r.recordError(ref.ct, ref.id, &MalformedContentError{ContentType: ref.ct, RemoteID: ref.id, Err: err})
			continue
		}

		hash := a.engine.Fingerprint(item)
		v, _ := buildVersion(ref.ct, item, 1, hash)
		if err := a.store.InsertVersion(ctx, v, nil); err != nil {
			var conflict *storage.ConflictError
			if errors.As(err, &conflict) {
				// Another worker resolved it first.
				r.markResolved(ref.ct, ref.id)
				continue
			}
			r.recordError(ref.ct, ref.id, err)
			continue
		}
		r.addNew()
		r.markResolved(ref.ct, ref.id)
		if a.index != nil {
			if err := a.index.IndexVersion(v); err != nil {
				a.logger.Warn("index version", "content_type", ref.ct, "remote_id", ref.id, "error", err)
			}
		}
		a.logger.Info("resolved term on demand", "content_type", ref.ct, "remote_id", ref.id)
	}
}

// buildVersion maps a typed raw record onto a version row plus, for posts,
// its relationship edges. Stored fields keep the raw rendered content; only
// the fingerprint works on normalized forms.
func buildVersion(ct wordpress.ContentType, item wordpress.Item, number int, hash string) (*storage.Version, []storage.Edge) {
	v := &storage.Version{
		ContentType: string(ct),
		RemoteID:    item.RemoteID(),
		Number:      number,
		ContentHash: hash,
	}
	var edges []storage.Edge

	switch it := item.(type) {
	case *wordpress.Post:
		v.Title = it.Title.Rendered
		v.Content = it.Content.Rendered
		v.Excerpt = it.Excerpt.Rendered
		v.Author = strconv.FormatInt(it.Author, 10)
		v.Status = it.Status
		v.Slug = it.Slug
		v.DateCreated = it.Date
		v.DateModified = it.Modified
		v.Meta = mustMeta(map[string]any{
			"link":       it.Link,
			"author_id":  it.Author,
			"categories": it.Categories,
			"tags":       it.Tags,
		})
		for _, id := range it.Categories {
			edges = append(edges, storage.Edge{RelatedType: storage.RelatedCategory, RelatedID: id})
		}
		for _, id := range it.Tags {
			edges = append(edges, storage.Edge{RelatedType: storage.RelatedTag, RelatedID: id})
		}
	case *wordpress.Comment:
		v.Title = it.AuthorName
		v.Content = it.Content.Rendered
		v.Author = it.AuthorName
		v.Status = it.Status
		v.DateCreated = it.Date
		v.Meta = mustMeta(map[string]any{
			"post":         it.Post,
			"parent":       it.Parent,
			"author_email": it.AuthorEmail,
			"author_url":   it.AuthorURL,
			"link":         it.Link,
		})
	case *wordpress.Page:
		v.Title = it.Title.Rendered
		v.Content = it.Content.Rendered
		v.Excerpt = it.Excerpt.Rendered
		v.Author = strconv.FormatInt(it.Author, 10)
		v.Status = it.Status
		v.Slug = it.Slug
		v.DateCreated = it.Date
		v.DateModified = it.Modified
		v.Meta = mustMeta(map[string]any{
			"link":      it.Link,
			"author_id": it.Author,
		})
	case *wordpress.User:
		v.Title = it.Name
		v.Content = it.Description
		v.Author = it.Name
		v.Slug = it.Slug
		v.Meta = mustMeta(map[string]any{
			"url":         it.URL,
			"link":        it.Link,
			"avatar_urls": it.AvatarURLs,
		})
	case *wordpress.Category:
		v.Title = it.Name
		v.Content = it.Description
		v.Slug = it.Slug
		v.Meta = mustMeta(map[string]any{
			"taxonomy": it.Taxonomy,
			"parent":   it.Parent,
			"count":    it.Count,
			"link":     it.Link,
		})
	case *wordpress.Tag:
		v.Title = it.Name
		v.Content = it.Description
		v.Slug = it.Slug
		v.Meta = mustMeta(map[string]any{
			"taxonomy": it.Taxonomy,
			"count":    it.Count,
			"link":     it.Link,
		})
	}

	return v, edges
}

func mustMeta(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
