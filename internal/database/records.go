package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media-publisher/internal/logging"
	"media-publisher/internal/mediatypes"
	"media-publisher/internal/metrics"
)

const recordColumns = `id, display_name, relative_path, mime_type, kind, source,
	COALESCE(data_path, ''), size, width, height, mod_time, is_pending, date_added, date_indexed`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (MediaRecord, error) {
	var r MediaRecord
	var kind string
	var pending int
	var modTime, dateAdded, dateIndexed int64
	err := row.Scan(&r.ID, &r.DisplayName, &r.RelativePath, &r.MimeType, &kind, &r.Source,
		&r.DataPath, &r.Size, &r.Width, &r.Height, &modTime, &pending, &dateAdded, &dateIndexed)
	if err != nil {
		return MediaRecord{}, err
	}
	r.Kind = mediatypes.MediaKind(kind)
	r.Pending = pending != 0
	if modTime > 0 {
		r.ModTime = time.Unix(modTime, 0)
	}
	r.DateAdded = time.Unix(dateAdded, 0)
	if dateIndexed > 0 {
		r.DateIndexed = time.Unix(dateIndexed, 0)
	}
	return r, nil
}

// InsertPending inserts a store record marked pending and assigns its data
// path. dataPathFor receives the new row id so callers can derive a unique
// file location from it. rec.ID and rec.DataPath are filled in on success.
// Returns ErrNameTaken when (RelativePath, DisplayName) is already in use.
func (d *Database) InsertPending(ctx context.Context, rec *MediaRecord, dataPathFor func(id int64) string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_pending", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Error("failed to rollback pending insert: %v", rbErr)
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO media (display_name, relative_path, mime_type, kind, source, is_pending)
		VALUES (?, ?, ?, ?, ?, 1)
	`, rec.DisplayName, rec.RelativePath, rec.MimeType, string(rec.Kind), SourceStore)
	if err != nil {
		if isUniqueViolation(err) {
			err = ErrNameTaken
			return err
		}
		return fmt.Errorf("failed to insert pending record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read record id: %w", err)
	}

	dataPath := dataPathFor(id)
	if _, err = tx.ExecContext(ctx, "UPDATE media SET data_path = ? WHERE id = ?", dataPath, id); err != nil {
		return fmt.Errorf("failed to assign data path: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pending record: %w", err)
	}

	rec.ID = id
	rec.DataPath = dataPath
	rec.Source = SourceStore
	rec.Pending = true
	return nil
}

// FinalizeRecord clears the pending flag and records the final size.
func (d *Database) FinalizeRecord(ctx context.Context, id, size int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("finalize_record", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE media SET is_pending = 0, size = ?, mod_time = ?
		WHERE id = ?
	`, size, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to finalize record %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

// DeleteRecord removes a record by id. Deleting a missing id is not an error.
func (d *Database) DeleteRecord(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_record", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM media WHERE id = ?", id)
	return err
}

// UpsertScan records the result of scanning a file at rec.DataPath. Existing
// rows for the same data path (including store rows) keep their identity and
// display name; only the file facts are refreshed. Returns the row id.
func (d *Database) UpsertScan(ctx context.Context, rec MediaRecord) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_scan", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().Unix()
	var id int64
	err = d.db.QueryRowContext(ctx, `
		INSERT INTO media (display_name, relative_path, mime_type, kind, source, data_path,
			size, width, height, mod_time, is_pending, date_indexed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(data_path) DO UPDATE SET
			size = excluded.size,
			width = excluded.width,
			height = excluded.height,
			mod_time = excluded.mod_time,
			mime_type = COALESCE(NULLIF(media.mime_type, ''), excluded.mime_type),
			date_indexed = excluded.date_indexed
		RETURNING id
	`, rec.DisplayName, rec.RelativePath, rec.MimeType, string(rec.Kind), SourceScan, rec.DataPath,
		rec.Size, rec.Width, rec.Height, rec.ModTime.Unix(), now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert scan record for %s: %w", rec.DataPath, err)
	}
	return id, nil
}

// GetRecord returns the record with the given id.
func (d *Database) GetRecord(ctx context.Context, id int64) (MediaRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_record", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rec, err := scanRecord(d.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM media WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return rec, err
}

// GetRecordByPath returns the record whose data file lives at dataPath.
func (d *Database) GetRecordByPath(ctx context.Context, dataPath string) (MediaRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_record", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rec, err := scanRecord(d.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM media WHERE data_path = ?", dataPath))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return rec, err
}

// ListRecords returns a page of records, newest first.
func (d *Database) ListRecords(ctx context.Context, opts ListOptions) (*RecordList, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_records", start, err) }()

	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	where := "WHERE 1=1"
	var args []any
	if opts.Kind != "" {
		where += " AND kind = ?"
		args = append(args, string(opts.Kind))
	}
	if !opts.IncludePending {
		where += " AND is_pending = 0"
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result := &RecordList{Items: []MediaRecord{}, Limit: opts.Limit, Offset: opts.Offset}

	if err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM media "+where, args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM media "+where+" ORDER BY date_added DESC, id DESC LIMIT ? OFFSET ?",
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Error("failed to close rows: %v", closeErr)
		}
	}()

	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		result.Items = append(result.Items, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SweepMissing deletes finalized records whose data file no longer exists
// according to exists. Returns the ids of the removed rows.
func (d *Database) SweepMissing(ctx context.Context, exists func(path string) bool) ([]int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("sweep_missing", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT id, data_path FROM media WHERE is_pending = 0 AND data_path IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to query records for sweep: %w", err)
	}

	var missing []int64
	for rows.Next() {
		var (
			id   int64
			path string
		)
		if err = rows.Scan(&id, &path); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if !exists(path) {
			missing = append(missing, id)
		}
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}

	for _, id := range missing {
		if _, err = d.db.ExecContext(ctx, "DELETE FROM media WHERE id = ?", id); err != nil {
			return nil, fmt.Errorf("failed to delete missing record %d: %w", id, err)
		}
	}
	return missing, nil
}

// PurgeStalePending removes pending rows older than maxAge. These are left
// behind when the process dies mid-write. Returns the removed data paths so
// the caller can delete partial files.
func (d *Database) PurgeStalePending(ctx context.Context, maxAge time.Duration) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("sweep_missing", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cutoff := time.Now().Add(-maxAge).Unix()
	rows, err := d.db.QueryContext(ctx, `
		DELETE FROM media WHERE is_pending = 1 AND date_added < ?
		RETURNING COALESCE(data_path, '')
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to purge pending records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err = rows.Scan(&p); err != nil {
			return nil, err
		}
		if p != "" {
			paths = append(paths, p)
		}
	}
	err = rows.Err()
	return paths, err
}

// GetStats returns record counts for the metrics collector.
func (d *Database) GetStats() metrics.Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var stats metrics.Stats
	err := d.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'image' AND is_pending = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'video' AND is_pending = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(is_pending), 0),
			COALESCE(SUM(CASE WHEN is_pending = 0 THEN size ELSE 0 END), 0)
		FROM media
	`).Scan(&stats.TotalImages, &stats.TotalVideos, &stats.PendingRecords, &stats.TotalBytes)
	if err != nil {
		logging.Warn("failed to collect media stats: %v", err)
	}
	return stats
}
