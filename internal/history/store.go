package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"synthmigrate/internal/migrate"
)

// Store keeps finished run reports, in Postgres when a DSN is configured and
// in a local JSON file otherwise.
type Store struct {
	path string
	db   *sql.DB

	loadOnce sync.Once
	mu       sync.RWMutex
	byID     map[string]Run

	schemaOnce sync.Once
	schemaErr  error

	runCache *lru.Cache[string, Run]
}

func New(path string) *Store {
	return &Store{
		path: path,
		byID: make(map[string]Run),
	}
}

func NewPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	cache, err := lru.New[string, Run](256)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, runCache: cache}, nil
}

// Open picks Postgres when dsn is set and falls back to the file at path
// when it is empty or unreachable. The returned error reports the fallback.
func Open(ctx context.Context, dsn, path string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return New(path), nil
	}
	s, err := NewPostgres(ctx, dsn)
	if err != nil {
		return New(path), err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a finalized report. Recording the same run twice replaces
// the earlier row.
func (s *Store) Record(ctx context.Context, rep *migrate.Report) error {
	if s == nil {
		return errors.New("history store is nil")
	}
	if rep == nil || strings.TrimSpace(rep.RunID) == "" {
		return errors.New("history: report with run_id is required")
	}
	run := fromReport(rep)
	if s.db != nil {
		if err := s.putDB(ctx, run); err != nil {
			return err
		}
		s.runCache.Add(run.RunID, run)
		return nil
	}
	return s.putFile(run)
}

func (s *Store) Get(ctx context.Context, runID string) (Run, bool, error) {
	if s == nil {
		return Run{}, false, nil
	}
	id := strings.TrimSpace(runID)
	if id == "" {
		return Run{}, false, nil
	}
	if s.db != nil {
		if run, ok := s.runCache.Get(id); ok {
			return run, true, nil
		}
		run, ok, err := s.getDB(ctx, id)
		if ok {
			s.runCache.Add(id, run)
		}
		return run, ok, err
	}
	return s.getFile(id)
}

// List returns runs newest first, without their entries. limit <= 0 lists all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if s == nil {
		return nil, nil
	}
	if s.db != nil {
		return s.listDB(ctx, limit)
	}
	return s.listFile(limit)
}
