package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kensaku/internal/models"
)

const recordColumns = "content_type, content_id, title, message, metadata, item_date, user_id, discussion_id"

// Columns of search_index that Update may change.
var updatableColumns = map[string]bool{
	"title":         true,
	"message":       true,
	"metadata":      true,
	"item_date":     true,
	"user_id":       true,
	"discussion_id": true,
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SQLiteStorage implements Store using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS search_index (
		content_type TEXT NOT NULL,
		content_id INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '',
		item_date INTEGER NOT NULL DEFAULT 0,
		user_id INTEGER NOT NULL DEFAULT 0,
		discussion_id INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (content_type, content_id)
	);

	CREATE INDEX IF NOT EXISTS idx_search_index_user_date ON search_index(user_id, item_date);
	CREATE INDEX IF NOT EXISTS idx_search_index_discussion ON search_index(discussion_id);

	CREATE TABLE IF NOT EXISTS thread (
		thread_id INTEGER PRIMARY KEY,
		node_id INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		user_id INTEGER NOT NULL DEFAULT 0,
		post_date INTEGER NOT NULL DEFAULT 0,
		reply_count INTEGER NOT NULL DEFAULT 0,
		prefix_id INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Upsert replaces the record keyed by (content_type, content_id).
func (s *SQLiteStorage) Upsert(ctx context.Context, rec *models.IndexRecord) error {
	_, err := s.db.ExecContext(ctx,
		`REPLACE INTO search_index (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		recordArgs(rec)...,
	)
	return err
}

// BatchUpsert replaces multiple records in a transaction.
func (s *SQLiteStorage) BatchUpsert(ctx context.Context, recs []*models.IndexRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`REPLACE INTO search_index (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, recordArgs(rec)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func recordArgs(rec *models.IndexRecord) []any {
	return []any{rec.ContentType, rec.ContentID, rec.Title, rec.Message, rec.Metadata, rec.ItemDate, rec.UserID, rec.DiscussionID}
}

// Update sets the given columns. Unknown columns return ErrInvalidIdentifier.
func (s *SQLiteStorage) Update(ctx context.Context, contentType string, contentID int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !updatableColumns[col] {
			return fmt.Errorf("%w: column %q", ErrInvalidIdentifier, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+2)
	for i, col := range cols {
		sets[i] = col + " = ?"
		args = append(args, fields[col])
	}
	args = append(args, contentType, contentID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE search_index SET `+strings.Join(sets, ", ")+` WHERE content_type = ? AND content_id = ?`,
		args...,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, models.ContentKey(contentType, contentID))
	}
	return nil
}

// Delete removes records of contentType with the given ids.
func (s *SQLiteStorage) Delete(ctx context.Context, contentType string, contentIDs []int64) error {
	if len(contentIDs) == 0 {
		return nil
	}
	args := make([]any, 0, len(contentIDs)+1)
	args = append(args, contentType)
	for _, id := range contentIDs {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM search_index WHERE content_type = ? AND content_id IN (`+placeholders(len(contentIDs))+`)`,
		args...,
	)
	return err
}

// Get returns one record.
func (s *SQLiteStorage) Get(ctx context.Context, contentType string, contentID int64) (*models.IndexRecord, error) {
	var rec models.IndexRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM search_index WHERE content_type = ? AND content_id = ?`,
		contentType, contentID,
	).Scan(&rec.ContentType, &rec.ContentID, &rec.Title, &rec.Message, &rec.Metadata, &rec.ItemDate, &rec.UserID, &rec.DiscussionID)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, models.ContentKey(contentType, contentID))
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns records in key order with offset and limit.
func (s *SQLiteStorage) List(ctx context.Context, offset, limit int) ([]*models.IndexRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM search_index ORDER BY content_type, content_id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.IndexRecord
	for rows.Next() {
		var rec models.IndexRecord
		if err := rows.Scan(&rec.ContentType, &rec.ContentID, &rec.Title, &rec.Message, &rec.Metadata, &rec.ItemDate, &rec.UserID, &rec.DiscussionID); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// ListByUser returns a user's content ordered by item_date descending.
func (s *SQLiteStorage) ListByUser(ctx context.Context, userID, maxDate int64, limit int) ([]models.ContentRef, error) {
	query := `SELECT content_type, content_id FROM search_index WHERE user_id = ?`
	args := []any{userID}
	if maxDate > 0 {
		query += ` AND item_date < ?`
		args = append(args, maxDate)
	}
	query += ` ORDER BY item_date DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make([]models.ContentRef, 0)
	for rows.Next() {
		var ref models.ContentRef
		if err := rows.Scan(&ref.ContentType, &ref.ContentID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Lookup runs SELECT DISTINCT key FROM table WHERE preds. Predicates on other tables are ignored.
func (s *SQLiteStorage) Lookup(ctx context.Context, table, key string, preds []models.Predicate) ([]int64, error) {
	if !identifierPattern.MatchString(table) || !identifierPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: %s.%s", ErrInvalidIdentifier, table, key)
	}
	var where []string
	var args []any
	for _, p := range preds {
		if p.Table != table {
			continue
		}
		clause, clauseArgs, err := predicateSQL(p)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
		args = append(args, clauseArgs...)
	}
	query := `SELECT DISTINCT ` + key + ` FROM ` + table
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ` + key

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]int64, 0)
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// SortRefs orders refs by order. Parts on search_index sort by each hit's own row and parts
// on other tables sort through joins keyed by table alias; a joined Key must be unique in
// its table. Grouped refs carry discussion ids, so joins relate on the ref id and
// search_index parts are skipped. Ties keep the incoming order.
func (s *SQLiteStorage) SortRefs(ctx context.Context, refs []models.ContentRef, order []models.OrderPart, joins map[string]models.Join, grouped bool) ([]models.ContentRef, error) {
	if len(refs) == 0 || len(order) == 0 {
		return refs, nil
	}
	values := make([]string, len(refs))
	args := make([]any, 0, 2*len(refs))
	for i, ref := range refs {
		values[i] = fmt.Sprintf("(%d, ?, ?)", i)
		args = append(args, ref.ContentType, ref.ContentID)
	}

	var query strings.Builder
	query.WriteString(`WITH hits(pos, content_type, content_id) AS (VALUES ` + strings.Join(values, ", ") + `)
	SELECT h.content_type, h.content_id FROM hits h`)
	if !grouped {
		query.WriteString(` LEFT JOIN search_index si ON si.content_type = h.content_type AND si.content_id = h.content_id`)
	}

	joined := make(map[string]string)
	orderBy := make([]string, 0, len(order)+1)
	for _, o := range order {
		if !identifierPattern.MatchString(o.Field) {
			return nil, fmt.Errorf("%w: order column %q", ErrInvalidIdentifier, o.Field)
		}
		dir := "ASC"
		if o.Descending() {
			dir = "DESC"
		}
		if o.Table == "" || o.Table == models.IndexTable {
			if !grouped {
				orderBy = append(orderBy, "si."+o.Field+" "+dir)
			}
			continue
		}
		alias, ok := joined[o.Table]
		if !ok {
			j, found := joins[o.Table]
			if !found {
				return nil, fmt.Errorf("no join structure for order table %q", o.Table)
			}
			if !identifierPattern.MatchString(j.Table) || !identifierPattern.MatchString(j.Key) || !identifierPattern.MatchString(j.RelationshipField) {
				return nil, fmt.Errorf("%w: join %s.%s = %s", ErrInvalidIdentifier, j.Table, j.Key, j.RelationshipField)
			}
			if j.RelationshipTable != models.IndexTable {
				return nil, fmt.Errorf("join %s relates to %s, not %s", o.Table, j.RelationshipTable, models.IndexTable)
			}
			alias = fmt.Sprintf("j%d", len(joined))
			joined[o.Table] = alias
			on := "si." + j.RelationshipField
			if grouped {
				on = "h.content_id"
			}
			fmt.Fprintf(&query, " LEFT JOIN %s %s ON %s.%s = %s", j.Table, alias, alias, j.Key, on)
		}
		orderBy = append(orderBy, alias+"."+o.Field+" "+dir)
	}
	query.WriteString(" ORDER BY " + strings.Join(append(orderBy, "h.pos"), ", "))

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sorted := make([]models.ContentRef, 0, len(refs))
	for rows.Next() {
		var ref models.ContentRef
		if err := rows.Scan(&ref.ContentType, &ref.ContentID); err != nil {
			return nil, err
		}
		sorted = append(sorted, ref)
	}
	return sorted, rows.Err()
}

// predicateSQL renders one predicate; lists become IN / NOT IN.
func predicateSQL(p models.Predicate) (string, []any, error) {
	if !identifierPattern.MatchString(p.Field) {
		return "", nil, fmt.Errorf("%w: column %q", ErrInvalidIdentifier, p.Field)
	}
	if err := p.Validate(); err != nil {
		return "", nil, err
	}
	if p.IsList() {
		op := "IN"
		if p.Operator == models.OpNotEqual {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", p.Field, op, placeholders(len(p.Values))), p.Values, nil
	}
	return fmt.Sprintf("%s %s ?", p.Field, p.Operator), p.Values, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// UpsertThread replaces a thread row.
func (s *SQLiteStorage) UpsertThread(ctx context.Context, t *models.Thread) error {
	_, err := s.db.ExecContext(ctx,
		`REPLACE INTO thread (thread_id, node_id, title, user_id, post_date, reply_count, prefix_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ThreadID, t.NodeID, t.Title, t.UserID, t.PostDate, t.ReplyCount, t.PrefixID,
	)
	return err
}

// GetThread returns one thread row.
func (s *SQLiteStorage) GetThread(ctx context.Context, threadID int64) (*models.Thread, error) {
	var t models.Thread
	err := s.db.QueryRowContext(ctx,
		`SELECT thread_id, node_id, title, user_id, post_date, reply_count, prefix_id
		 FROM thread WHERE thread_id = ?`, threadID,
	).Scan(&t.ThreadID, &t.NodeID, &t.Title, &t.UserID, &t.PostDate, &t.ReplyCount, &t.PrefixID)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: thread %d", ErrNotFound, threadID)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteThreads removes thread rows by id.
func (s *SQLiteStorage) DeleteThreads(ctx context.Context, threadIDs []int64) error {
	if len(threadIDs) == 0 {
		return nil
	}
	args := make([]any, len(threadIDs))
	for i, id := range threadIDs {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM thread WHERE thread_id IN (`+placeholders(len(threadIDs))+`)`,
		args...,
	)
	return err
}

// Count returns the number of index records.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_index`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
