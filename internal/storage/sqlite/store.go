// Package sqlite 基于 modernc.org/sqlite 实现直播会话的持久化。
package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lk2023060901/danmu-live-session/internal/livesession"
	"github.com/lk2023060901/danmu-live-session/internal/storage/sqlite/migrations"
	"github.com/lk2023060901/danmu-live-session/pkg/log"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
	"github.com/lk2023060901/danmu-live-session/pkg/util/retry"
)

// Config 为 SQLite 存储配置。
type Config struct {
	// Path 为数据库文件路径。
	Path string `mapstructure:"path" env:"PATH"`
}

// Store 为 livesession.Store 的 SQLite 实现。
// break_time 中的间隔与时长以分钟为单位保存。
type Store struct {
	db *sql.DB
}

var _ livesession.Store = (*Store)(nil)

// Open 打开数据库并执行迁移；数据库被占用时按退避策略重试。
func Open(ctx context.Context, cfg Config) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, merr.WrapErrParameterMissing("storage.sqlite.path")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, merr.WrapErrIoFailed(path, err)
	}

	err = retry.Do(ctx, func() error {
		return db.PingContext(ctx)
	}, retry.Attempts(5), retry.Sleep(100*time.Millisecond))
	if err != nil {
		_ = db.Close()
		return nil, merr.WrapErrIoFailed(path, err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, merr.WrapErrIoFailed(path, err)
	}
	log.Info("sqlite live session store opened", zap.String("path", path))
	return &Store{db: db}, nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) LoadSession(ctx context.Context, id string) (*livesession.SessionRecord, error) {
	var (
		rec       livesession.SessionRecord
		status    string
		startedAt sql.NullInt64
		createdAt int64
		updatedAt int64
		interval  sql.NullInt64
		duration  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT s.id, s.title, s.organizer_id, s.status, s.started_at, s.created_at, s.updated_at,
       b.interval_minutes, b.duration_minutes
FROM live_session s
LEFT JOIN break_time b ON b.session_id = s.id
WHERE s.id = ?`, id).Scan(
		&rec.ID, &rec.Title, &rec.OrganizerID, &status, &startedAt, &createdAt, &updatedAt,
		&interval, &duration,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, merr.WrapErrLiveSessionNotFound(id)
	}
	if err != nil {
		return nil, merr.WrapErrIoFailed(id, err)
	}

	rec.Status, err = livesession.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t := time.UnixMilli(startedAt.Int64).UTC()
		rec.StartedAt = &t
	}
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if interval.Valid && duration.Valid {
		rec.BreakConfig = &livesession.BreakConfig{
			Interval: time.Duration(interval.Int64) * time.Minute,
			Duration: time.Duration(duration.Int64) * time.Minute,
		}
	}
	return &rec, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status livesession.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE live_session SET status = ?, updated_at = ? WHERE id = ?`,
		status.String(), time.Now().UTC().UnixMilli(), id)
	return checkAffected(id, res, err)
}

func (s *Store) AppendTransitionLog(ctx context.Context, record livesession.TransitionLogRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO live_session_transition_log (live_session_id, from_state, to_state, transitioned_at)
VALUES (?, ?, ?, ?)`,
		record.SessionID, record.From.String(), record.To.String(), record.TransitionedAt.UTC().UnixMilli())
	if err != nil {
		return merr.WrapErrIoFailed(record.SessionID, err)
	}
	return nil
}

func (s *Store) RecordStart(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE live_session SET started_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC().UnixMilli(), time.Now().UTC().UnixMilli(), id)
	return checkAffected(id, res, err)
}

// CreateSession 写入一条新的会话记录，BreakConfig 非空时一并写入 break_time。
func (s *Store) CreateSession(ctx context.Context, rec livesession.SessionRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return merr.WrapErrParameterMissing("live session id")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merr.WrapErrIoFailed(rec.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	var startedAt any
	if rec.StartedAt != nil {
		startedAt = rec.StartedAt.UTC().UnixMilli()
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO live_session (id, title, organizer_id, status, started_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.OrganizerID, rec.Status.String(), startedAt,
		rec.CreatedAt.UTC().UnixMilli(), now.UnixMilli()); err != nil {
		return merr.WrapErrIoFailed(rec.ID, err)
	}
	if rec.BreakConfig != nil {
		if err := upsertBreakConfig(ctx, tx, rec.ID, rec.BreakConfig); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return merr.WrapErrIoFailed(rec.ID, err)
	}
	return nil
}

// SetBreakConfig 设置或清除会话的 break 配置，cfg 为 nil 表示清除。
func (s *Store) SetBreakConfig(ctx context.Context, id string, cfg *livesession.BreakConfig) error {
	if cfg == nil {
		_, err := s.db.ExecContext(ctx, `DELETE FROM break_time WHERE session_id = ?`, id)
		if err != nil {
			return merr.WrapErrIoFailed(id, err)
		}
		return nil
	}
	if cfg.Interval < 0 || cfg.Duration < 0 {
		return merr.WrapErrParameterInvalidMsg("break config must not be negative")
	}
	return upsertBreakConfig(ctx, s.db, id, cfg)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertBreakConfig(ctx context.Context, db execer, id string, cfg *livesession.BreakConfig) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO break_time (session_id, interval_minutes, duration_minutes) VALUES (?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    interval_minutes = excluded.interval_minutes,
    duration_minutes = excluded.duration_minutes`,
		id, int64(cfg.Interval/time.Minute), int64(cfg.Duration/time.Minute))
	if err != nil {
		return merr.WrapErrIoFailed(id, err)
	}
	return nil
}

// ListTransitionLogs 按写入顺序返回会话的迁移日志。
func (s *Store) ListTransitionLogs(ctx context.Context, id string) ([]livesession.TransitionLogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT from_state, to_state, transitioned_at
FROM live_session_transition_log
WHERE live_session_id = ?
ORDER BY id`, id)
	if err != nil {
		return nil, merr.WrapErrIoFailed(id, err)
	}
	defer rows.Close()

	var records []livesession.TransitionLogRecord
	for rows.Next() {
		var (
			from, to string
			at       int64
		)
		if err := rows.Scan(&from, &to, &at); err != nil {
			return nil, merr.WrapErrIoFailed(id, err)
		}
		rec := livesession.TransitionLogRecord{SessionID: id, TransitionedAt: time.UnixMilli(at).UTC()}
		if rec.From, err = livesession.ParseStatus(from); err != nil {
			return nil, err
		}
		if rec.To, err = livesession.ParseStatus(to); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, merr.WrapErrIoFailed(id, err)
	}
	return records, nil
}

func checkAffected(id string, res sql.Result, err error) error {
	if err != nil {
		return merr.WrapErrIoFailed(id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return merr.WrapErrIoFailed(id, err)
	}
	if n == 0 {
		return merr.WrapErrLiveSessionNotFound(id)
	}
	return nil
}
