// Package importer loads legacy forum exports (JSON lines) into the search index.
package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/contenttype"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
)

// Steps lists export row types in import order. Threads come first so posts can inherit
// their node and prefix metadata.
var Steps = []string{contenttype.TypeThread, contenttype.TypePost, contenttype.TypeProfilePost}

const maxLineBytes = 16 << 20

// Result summarizes one import run.
type Result struct {
	RunID    string         `json:"run_id"`
	Imported map[string]int `json:"imported"`
	Skipped  int            `json:"skipped"`
	Duration time.Duration  `json:"duration"`
}

// Total returns the number of imported items across steps.
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Imported {
		n += c
	}
	return n
}

// Importer feeds export rows to a source handler in rebuild mode.
type Importer struct {
	handler search.SourceHandler
	store   storage.Store
	logger  *zap.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets a logger for step progress and skipped lines.
func WithLogger(l *zap.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// New returns an importer writing through handler. store receives thread rows used by
// joined constraints.
func New(handler search.SourceHandler, store storage.Store, opts ...Option) *Importer {
	im := &Importer{handler: handler, store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportFile imports a JSON-lines export file.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// Import reads every line, then runs each step in order. The handler stays in rebuild mode
// for the whole run and its batch is finalized after every step.
// A failed run flushes rows batched before the failure, or drops them when they cannot be
// written, so no stale batch outlives the run.
func (im *Importer) Import(ctx context.Context, r io.Reader) (_ *Result, err error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString(), Imported: make(map[string]int)}
	logger := im.logger.With(zap.String("run_id", res.RunID))

	byType, skipped, err := im.readRows(r, logger)
	if err != nil {
		return nil, err
	}
	res.Skipped = skipped

	im.handler.SetIsRebuild(true)
	defer func() {
		if err != nil {
			im.abort(context.WithoutCancel(ctx), logger)
		}
		im.handler.SetIsRebuild(false)
	}()

	threads := make(map[int64]*models.Thread)
	for _, step := range Steps {
		rows := byType[step]
		n := 0
		for _, data := range rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			ok, err := im.importRow(ctx, step, data, threads, logger)
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", step, err)
			}
			if ok {
				n++
			} else {
				res.Skipped++
			}
		}
		if err := im.handler.FinalizeRebuildSet(ctx); err != nil {
			return nil, fmt.Errorf("step %s: failed to finalize: %w", step, err)
		}
		res.Imported[step] = n
		logger.Info("import step complete", zap.String("step", step), zap.Int("items", n), zap.Int("rows", len(rows)))
	}
	res.Duration = time.Since(start)
	return res, nil
}

// rebuildDiscarder is implemented by handlers that can drop their rebuild batch.
type rebuildDiscarder interface {
	DiscardRebuildSet() int
}

// abort settles the rebuild batch of a failed run.
func (im *Importer) abort(ctx context.Context, logger *zap.Logger) {
	err := im.handler.FinalizeRebuildSet(ctx)
	if err == nil {
		return
	}
	logger.Warn("failed to flush batch of failed import", zap.Error(err))
	if d, ok := im.handler.(rebuildDiscarder); ok {
		logger.Warn("discarded batched rows", zap.Int("rows", d.DiscardRebuildSet()))
	}
}

// readRows groups valid JSON lines by their "type" field.
func (im *Importer) readRows(r io.Reader, logger *zap.Logger) (map[string][]gjson.Result, int, error) {
	byType := make(map[string][]gjson.Result)
	skipped := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if len(text) == 0 {
			continue
		}
		if !gjson.Valid(text) {
			logger.Warn("skipping malformed line", zap.Int("line", line))
			skipped++
			continue
		}
		data := gjson.Parse(text)
		typ := data.Get("type")
		if typ.Type != gjson.String || !knownStep(typ.String()) {
			logger.Warn("skipping line with unknown type", zap.Int("line", line), zap.String("type", typ.String()))
			skipped++
			continue
		}
		byType[typ.String()] = append(byType[typ.String()], data)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read export: %w", err)
	}
	return byType, skipped, nil
}

func knownStep(t string) bool {
	for _, s := range Steps {
		if s == t {
			return true
		}
	}
	return false
}

// importRow indexes one row. It returns false for rows that fail field decoding; write
// failures are returned as errors.
func (im *Importer) importRow(ctx context.Context, step string, data gjson.Result, threads map[int64]*models.Thread, logger *zap.Logger) (bool, error) {
	r := &row{data: data}
	var item *models.IndexItem

	switch step {
	case contenttype.TypeThread:
		t := &models.Thread{
			ThreadID:   r.intField("thread_id", true),
			NodeID:     r.intField("node_id", true),
			Title:      r.stringField("title", true),
			UserID:     r.intField("user_id", false),
			PostDate:   r.intField("post_date", true),
			ReplyCount: r.intField("reply_count", false),
			PrefixID:   r.intField("prefix_id", false),
		}
		message := r.stringField("message", false)
		tags := r.listField("tags")
		if r.err != nil {
			break
		}
		if err := im.store.UpsertThread(ctx, t); err != nil {
			return false, fmt.Errorf("failed to store thread %d: %w", t.ThreadID, err)
		}
		threads[t.ThreadID] = t
		item = contenttype.ThreadItem(t, message)
		if len(tags) > 0 {
			item.Metadata = append(item.Metadata, models.Meta("tag", tags...))
		}

	case contenttype.TypePost:
		postID := r.intField("post_id", true)
		threadID := r.intField("thread_id", true)
		message := r.stringField("message", true)
		postDate := r.intField("post_date", true)
		userID := r.intField("user_id", false)
		if r.err != nil {
			break
		}
		t, err := im.thread(ctx, threads, threadID)
		if err != nil {
			return false, err
		}
		item = contenttype.PostItem(postID, t, message, postDate, userID)

	case contenttype.TypeProfilePost:
		id := r.intField("profile_post_id", true)
		profileUserID := r.intField("profile_user_id", true)
		message := r.stringField("message", true)
		postDate := r.intField("post_date", true)
		userID := r.intField("user_id", false)
		if r.err != nil {
			break
		}
		item = contenttype.ProfilePostItem(id, profileUserID, message, postDate, userID)
	}

	if r.err != nil {
		logger.Warn("skipping row", zap.String("step", step), zap.Error(r.err))
		return false, nil
	}
	if err := im.handler.InsertIntoIndex(ctx, item); err != nil {
		return false, err
	}
	return true, nil
}

// thread returns a thread from this run, the store, or a bare placeholder.
func (im *Importer) thread(ctx context.Context, threads map[int64]*models.Thread, id int64) (*models.Thread, error) {
	if t, ok := threads[id]; ok {
		return t, nil
	}
	t, err := im.store.GetThread(ctx, id)
	if err == nil {
		threads[id] = t
		return t, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return &models.Thread{ThreadID: id}, nil
	}
	return nil, err
}
