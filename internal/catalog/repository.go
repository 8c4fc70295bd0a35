package catalog

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateVideo(ctx context.Context, v *Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	GetVideoByPath(ctx context.Context, path string) (*Video, error)
	ListVideos(ctx context.Context) ([]*Video, error)
	DeleteVideo(ctx context.Context, id string) error
	UpdateVideoStatus(ctx context.Context, id, status string) error
	UpdateVideoProbe(ctx context.Context, id string, durationS float64, width, height int, sizeBytes int64) error
	CountVideos(ctx context.Context) (int, error)

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error

	CreateResult(ctx context.Context, res *ResultRecord) error
	GetResult(ctx context.Context, id string) (*ResultRecord, error)
	GetLatestResult(ctx context.Context, videoID string) (*ResultRecord, error)
	ListResultsByVideo(ctx context.Context, videoID string) ([]*ResultRecord, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateVideo(ctx context.Context, v *Video) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (id, path, exercise, size_bytes, duration_s, width, height, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.Path, v.Exercise, v.SizeBytes, v.DurationS, v.Width, v.Height, v.Status,
		v.CreatedAt.Format(time.RFC3339), v.UpdatedAt.Format(time.RFC3339))
	return err
}

const videoColumns = `id, path, exercise, size_bytes, duration_s, width, height, status, created_at, updated_at`

func (r *SQLiteRepository) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+videoColumns+` FROM videos WHERE id = ?
	`, id)
	return scanVideo(row)
}

func (r *SQLiteRepository) GetVideoByPath(ctx context.Context, path string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+videoColumns+` FROM videos WHERE path = ?
	`, path)
	return scanVideo(row)
}

func scanVideo(row *sql.Row) (*Video, error) {
	var v Video
	var createdAt, updatedAt string

	err := row.Scan(&v.ID, &v.Path, &v.Exercise, &v.SizeBytes, &v.DurationS,
		&v.Width, &v.Height, &v.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	v.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &v, nil
}

func (r *SQLiteRepository) ListVideos(ctx context.Context) ([]*Video, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		var v Video
		var createdAt, updatedAt string
		if err := rows.Scan(&v.ID, &v.Path, &v.Exercise, &v.SizeBytes, &v.DurationS,
			&v.Width, &v.Height, &v.Status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		v.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		videos = append(videos, &v)
	}
	return videos, rows.Err()
}

func (r *SQLiteRepository) DeleteVideo(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) UpdateVideoStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE videos SET status = ?, updated_at = datetime('now') WHERE id = ?
	`, status, id)
	return err
}

func (r *SQLiteRepository) UpdateVideoProbe(ctx context.Context, id string, durationS float64, width, height int, sizeBytes int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE videos SET duration_s = ?, width = ?, height = ?, size_bytes = ?, updated_at = datetime('now')
		WHERE id = ?
	`, durationS, width, height, sizeBytes, id)
	return err
}

func (r *SQLiteRepository) CountVideos(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM videos").Scan(&count)
	return count, err
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, video_id, status, progress, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, nullString(j.VideoID), j.Status, j.Progress, j.Error,
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

const jobColumns = `id, type, video_id, status, progress, error, created_at, updated_at`

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE id = ?
	`, id)

	var j Job
	var videoID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&j.ID, &j.Type, &videoID, &j.Status, &j.Progress, &j.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.VideoID = videoID.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = 'pending' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var j Job
		var videoID sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&j.ID, &j.Type, &videoID, &j.Status, &j.Progress, &j.Error, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		j.VideoID = videoID.String
		j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, errorMsg, id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = datetime('now') WHERE id = ?
	`, progress, id)
	return err
}

func (r *SQLiteRepository) CreateResult(ctx context.Context, res *ResultRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO results (id, video_id, exercise, success, ai_score, band, feedback, details, error, suspicion, report_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.ID, res.VideoID, res.Exercise, boolToInt(res.Success), res.AIScore, res.Band,
		res.Feedback, res.Details, res.Error, res.Suspicion, res.ReportPath,
		res.CreatedAt.Format(time.RFC3339))
	return err
}

const resultColumns = `id, video_id, exercise, success, ai_score, band, feedback, details, error, suspicion, report_path, created_at`

func (r *SQLiteRepository) GetResult(ctx context.Context, id string) (*ResultRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+resultColumns+` FROM results WHERE id = ?
	`, id)
	return scanResult(row)
}

func (r *SQLiteRepository) GetLatestResult(ctx context.Context, videoID string) (*ResultRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+resultColumns+` FROM results WHERE video_id = ? ORDER BY created_at DESC LIMIT 1
	`, videoID)
	return scanResult(row)
}

func scanResult(row *sql.Row) (*ResultRecord, error) {
	var res ResultRecord
	var success int
	var createdAt string

	err := row.Scan(&res.ID, &res.VideoID, &res.Exercise, &success, &res.AIScore, &res.Band,
		&res.Feedback, &res.Details, &res.Error, &res.Suspicion, &res.ReportPath, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res.Success = success == 1
	res.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &res, nil
}

func (r *SQLiteRepository) ListResultsByVideo(ctx context.Context, videoID string) ([]*ResultRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+resultColumns+` FROM results WHERE video_id = ? ORDER BY created_at DESC
	`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*ResultRecord
	for rows.Next() {
		var res ResultRecord
		var success int
		var createdAt string
		if err := rows.Scan(&res.ID, &res.VideoID, &res.Exercise, &success, &res.AIScore, &res.Band,
			&res.Feedback, &res.Details, &res.Error, &res.Suspicion, &res.ReportPath, &createdAt); err != nil {
			return nil, err
		}
		res.Success = success == 1
		res.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		results = append(results, &res)
	}
	return results, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
