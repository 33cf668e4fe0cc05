package chain

import (
	"context"
	"database/sql"
	"time"
)

// Archive is the persistence collaborator for the chain. The in-memory Store
// stays the source of truth; the archive is a write-behind journal so the
// audit trail of attempts (including failed ones) survives restarts. It also
// holds small agent config values such as the local auth token.
type Archive interface {
	RecordAppended(ctx context.Context, rec ClipRecord) error
	RecordPatched(ctx context.Context, rec ClipRecord) error
	Cleared(ctx context.Context) error
	ListClips(ctx context.Context, limit int) ([]ClipRecord, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// NoopArchive discards everything. Used when no journal database is wired.
type NoopArchive struct{}

func (NoopArchive) RecordAppended(ctx context.Context, rec ClipRecord) error { return nil }
func (NoopArchive) RecordPatched(ctx context.Context, rec ClipRecord) error  { return nil }
func (NoopArchive) Cleared(ctx context.Context) error                        { return nil }
func (NoopArchive) ListClips(ctx context.Context, limit int) ([]ClipRecord, error) {
	return nil, nil
}
func (NoopArchive) GetConfig(ctx context.Context, key string) (string, error) { return "", nil }
func (NoopArchive) SetConfig(ctx context.Context, key, value string) error    { return nil }

// SQLiteArchive journals chain mutations into the agent's SQLite database.
type SQLiteArchive struct {
	db *sql.DB
}

func NewSQLiteArchive(db *sql.DB) *SQLiteArchive {
	return &SQLiteArchive{db: db}
}

func (a *SQLiteArchive) RecordAppended(ctx context.Context, rec ClipRecord) error {
	return a.upsert(ctx, rec)
}

func (a *SQLiteArchive) RecordPatched(ctx context.Context, rec ClipRecord) error {
	return a.upsert(ctx, rec)
}

func (a *SQLiteArchive) upsert(ctx context.Context, rec ClipRecord) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO clips (id, input_image_ref, prompt_text, output_video_ref, continuation_frame_ref, job_id, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			output_video_ref = excluded.output_video_ref,
			continuation_frame_ref = excluded.continuation_frame_ref,
			job_id = excluded.job_id,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, rec.ID, rec.InputImageRef, rec.PromptText, nullString(rec.OutputVideoRef),
		nullString(rec.ContinuationFrameRef), nullString(rec.JobID), string(rec.Status),
		nullString(rec.Error), rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339))
	return err
}

func (a *SQLiteArchive) Cleared(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM clips`)
	return err
}

func (a *SQLiteArchive) ListClips(ctx context.Context, limit int) ([]ClipRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, input_image_ref, prompt_text, output_video_ref, continuation_frame_ref, job_id, status, error, created_at, updated_at
		FROM clips ORDER BY created_at ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClipRecord
	for rows.Next() {
		var rec ClipRecord
		var outputRef, frameRef, jobID, errMsg sql.NullString
		var status, createdAt, updatedAt string
		if err := rows.Scan(&rec.ID, &rec.InputImageRef, &rec.PromptText, &outputRef,
			&frameRef, &jobID, &status, &errMsg, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rec.OutputVideoRef = outputRef.String
		rec.ContinuationFrameRef = frameRef.String
		rec.JobID = jobID.String
		rec.Status = Status(status)
		rec.Error = errMsg.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *SQLiteArchive) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := a.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (a *SQLiteArchive) SetConfig(ctx context.Context, key, value string) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
