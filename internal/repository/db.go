package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"study-planner/internal/apperr"
	"study-planner/internal/model"
)

const defaultDSN = "study_planner.db"

type dbOptions struct {
	log *zap.SugaredLogger
}

// Option tunes NewDB.
type Option func(*dbOptions)

// WithLogger sends gorm's warnings and slow query reports to log.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *dbOptions) { o.log = log }
}

// gormWriter adapts a zap logger to gorm's Printf writer.
type gormWriter struct{ log *zap.SugaredLogger }

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Warnf(format, args...)
}

// NewDB opens the SQLite database behind every repository and migrates all
// study planner tables.
func NewDB(dsn string, opts ...Option) (*gorm.DB, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	o := dbOptions{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(gormWriter{log: o.log.Named("gorm")}, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  dbLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, apperr.Persistence("open db", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Task{}, &model.Plan{}, &model.Event{}, &model.ContextEntry{}, &model.Document{}); err != nil {
		return nil, apperr.Persistence("migrate db", err)
	}
	o.log.Debugw("database ready", "dsn", dsn, "vector_sql", VectorSQLEnabled())
	return db, nil
}

// ensureDirForSQLite creates the parent directory of a file DSN.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
