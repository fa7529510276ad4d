package datastore

import (
	"context"

	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dbwriter"
)

// Store pairs the write and read sides of one run store.
type Store struct {
	Writer     dbwriter.Writer
	Repository Repository
}

// Close releases the store.
func (s *Store) Close() error {
	return s.Writer.Close()
}

// Connect opens the store selected by cfg and applies pending migrations. The
// memory driver gets an InMemWriter and a repository over it.
func Connect(ctx context.Context, cfg config.StoreConf, logger *zap.Logger) (*Store, error) {
	if cfg.Driver == "memory" {
		w := dbwriter.NewInMemWriter()
		return &Store{Writer: w, Repository: NewInMemRepository(w)}, nil
	}
	db, dialect, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		Writer:     dbwriter.NewSQLWriter(db, dialect, logger),
		Repository: NewSQLRepository(db, dialect),
	}, nil
}
