package metadatastore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// SQLStore implements MetadataStore on SQLite or PostgreSQL. Each table keeps
// a few indexed columns next to the JSON encoded record.
type SQLStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open picks the driver from the connection string: postgres:// URLs use
// PostgreSQL, anything else is treated as a SQLite file path.
func Open(databaseURL, sqlitePath string) (*SQLStore, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return NewPostgresStore(databaseURL)
	}
	if databaseURL != "" {
		sqlitePath = databaseURL
	}
	return NewSQLiteStore(sqlitePath)
}

// NewSQLiteStore creates a new SQLite-based storage instance
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized by SQLite anyway
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var journalMode string
	if err := db.Get(&journalMode, "PRAGMA journal_mode"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check journal mode: %w", err)
	}
	if journalMode != "wal" && journalMode != "delete" && journalMode != "memory" {
		db.Close()
		return nil, fmt.Errorf("unexpected journal mode: got %s", journalMode)
	}

	return newStore(db, "sqlite")
}

// NewPostgresStore connects to PostgreSQL using a lib/pq connection URL
func NewPostgresStore(url string) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return newStore(db, "postgres")
}

func newStore(db *sqlx.DB, driver string) (*SQLStore, error) {
	store := &SQLStore{
		db:     db,
		logger: zap.L().Named("metadatastore").With(zap.String("driver", driver)),
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	store.logger.Debug("Metadata store ready")
	return store, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// retryOnBusy retries a database operation if it fails because SQLite is locked
func (s *SQLStore) retryOnBusy(operation func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		// 10ms, 20ms, 40ms, ...
		backoff := time.Duration(10*(1<<uint(i))) * time.Millisecond
		s.logger.Debug("Database busy, retrying", zap.Int("attempt", i+1), zap.Duration("backoff", backoff))
		time.Sleep(backoff)
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// initSchema creates the database schema if it doesn't exist. The statements
// are portable between SQLite and PostgreSQL.
func (s *SQLStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			best_model TEXT,
			best_version TEXT,
			created_at BIGINT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_training_runs_created_at ON training_runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS model_records (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			version TEXT,
			status TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_model_records_run_id ON model_records(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_model_records_version ON model_records(version)`,
		`CREATE TABLE IF NOT EXISTS prediction_runs (
			id TEXT PRIMARY KEY,
			model_version TEXT,
			created_at BIGINT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prediction_runs_created_at ON prediction_runs(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveTrainingRun saves a training run and its model records in one transaction
func (s *SQLStore) SaveTrainingRun(run *models.TrainingRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal training run: %w", err)
	}

	return s.retryOnBusy(func() error {
		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.Exec(tx.Rebind(`
			INSERT INTO training_runs (id, status, best_model, best_version, created_at, data)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				status = excluded.status,
				best_model = excluded.best_model,
				best_version = excluded.best_version,
				created_at = excluded.created_at,
				data = excluded.data
		`), run.ID, string(run.Status), string(run.BestModel), run.BestVersion, run.CreatedAt.UnixNano(), string(data))
		if err != nil {
			return fmt.Errorf("failed to save training run: %w", err)
		}

		for _, record := range run.Models {
			if err := saveModelRecord(tx, record); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, 5)
}

func saveModelRecord(tx *sqlx.Tx, record *models.ModelRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal model record: %w", err)
	}
	_, err = tx.Exec(tx.Rebind(`
		INSERT INTO model_records (id, run_id, kind, version, status, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			run_id = excluded.run_id,
			kind = excluded.kind,
			version = excluded.version,
			status = excluded.status,
			created_at = excluded.created_at,
			data = excluded.data
	`), record.ID, record.RunID, string(record.Kind), record.Version, string(record.Status), record.CreatedAt.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("failed to save model record %s: %w", record.ID, err)
	}
	return nil
}

// GetTrainingRun retrieves a training run by ID
func (s *SQLStore) GetTrainingRun(id string) (*models.TrainingRun, error) {
	var data string
	err := s.db.Get(&data, s.db.Rebind(`SELECT data FROM training_runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: training run %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get training run: %w", err)
	}
	return decode[models.TrainingRun](data)
}

// LatestTrainingRun returns the most recent training run
func (s *SQLStore) LatestTrainingRun() (*models.TrainingRun, error) {
	runs, err := s.ListTrainingRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no training runs", ErrNotFound)
	}
	return runs[0], nil
}

// ListTrainingRuns lists training runs newest first. A non-positive limit
// returns every run.
func (s *SQLStore) ListTrainingRuns(limit int) ([]*models.TrainingRun, error) {
	var rows []string
	if err := s.db.Select(&rows, s.limited(`SELECT data FROM training_runs ORDER BY created_at DESC, id DESC`, limit)); err != nil {
		return nil, fmt.Errorf("failed to list training runs: %w", err)
	}
	return decodeAll[models.TrainingRun](rows, s.logger)
}

// CountTrainingRuns returns the number of stored training runs
func (s *SQLStore) CountTrainingRuns() (int, error) {
	var n int
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM training_runs`); err != nil {
		return 0, fmt.Errorf("failed to count training runs: %w", err)
	}
	return n, nil
}

// PruneTrainingRuns deletes all but the newest keep training runs together
// with their model records. It returns the number of runs removed.
func (s *SQLStore) PruneTrainingRuns(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	var ids []string
	if err := s.db.Select(&ids, s.db.Rebind(`SELECT id FROM training_runs ORDER BY created_at DESC, id DESC`)); err != nil {
		return 0, fmt.Errorf("failed to list training runs: %w", err)
	}
	if len(ids) <= keep {
		return 0, nil
	}
	stale := ids[keep:]

	err := s.retryOnBusy(func() error {
		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		for _, table := range []string{"model_records", "training_runs"} {
			column := "id"
			if table == "model_records" {
				column = "run_id"
			}
			query, args, err := sqlx.In(fmt.Sprintf(`DELETE FROM %s WHERE %s IN (?)`, table, column), stale)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(tx.Rebind(query), args...); err != nil {
				return fmt.Errorf("failed to prune %s: %w", table, err)
			}
		}
		return tx.Commit()
	}, 5)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Pruned training history", zap.Int("removed", len(stale)), zap.Int("kept", keep))
	return len(stale), nil
}

// ListModelRecords lists every model record newest first
func (s *SQLStore) ListModelRecords() ([]*models.ModelRecord, error) {
	var rows []string
	if err := s.db.Select(&rows, `SELECT data FROM model_records ORDER BY created_at DESC, id`); err != nil {
		return nil, fmt.Errorf("failed to list model records: %w", err)
	}
	return decodeAll[models.ModelRecord](rows, s.logger)
}

// GetModelRecordByVersion returns the newest record that produced an artifact version
func (s *SQLStore) GetModelRecordByVersion(version string) (*models.ModelRecord, error) {
	var data string
	err := s.db.Get(&data, s.db.Rebind(`SELECT data FROM model_records WHERE version = ? ORDER BY created_at DESC LIMIT 1`), version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: model version %s", ErrNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model record: %w", err)
	}
	return decode[models.ModelRecord](data)
}

// SavePredictionRun saves a prediction summary
func (s *SQLStore) SavePredictionRun(run *models.PredictionRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction run: %w", err)
	}
	return s.retryOnBusy(func() error {
		_, err := s.db.Exec(s.db.Rebind(`
			INSERT INTO prediction_runs (id, model_version, created_at, data)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				model_version = excluded.model_version,
				created_at = excluded.created_at,
				data = excluded.data
		`), run.ID, run.ModelVersion, run.CreatedAt.UnixNano(), string(data))
		if err != nil {
			return fmt.Errorf("failed to save prediction run: %w", err)
		}
		return nil
	}, 5)
}

// LatestPredictionRun returns the most recent prediction summary
func (s *SQLStore) LatestPredictionRun() (*models.PredictionRun, error) {
	runs, err := s.ListPredictionRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no prediction runs", ErrNotFound)
	}
	return runs[0], nil
}

// ListPredictionRuns lists prediction summaries newest first
func (s *SQLStore) ListPredictionRuns(limit int) ([]*models.PredictionRun, error) {
	var rows []string
	if err := s.db.Select(&rows, s.limited(`SELECT data FROM prediction_runs ORDER BY created_at DESC, id DESC`, limit)); err != nil {
		return nil, fmt.Errorf("failed to list prediction runs: %w", err)
	}
	return decodeAll[models.PredictionRun](rows, s.logger)
}

func (s *SQLStore) limited(query string, limit int) string {
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return query
}

func decode[T any](data string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %T: %w", v, err)
	}
	return &v, nil
}

// decodeAll skips rows that no longer unmarshal
func decodeAll[T any](rows []string, logger *zap.Logger) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, data := range rows {
		v, err := decode[T](data)
		if err != nil {
			logger.Warn("Skipping unreadable record", zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
