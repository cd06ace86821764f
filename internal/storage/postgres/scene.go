package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Vasu1712/scenyx-narrator/internal/storage/sqlstore"
	"github.com/lib/pq" // PostgreSQL driver
)

// Dialect is the PostgreSQL flavor of the shared SQL store. Post appends take
// a row lock on the scene so sequences stay gapless across processes.
var Dialect = sqlstore.Dialect{
	Name:                 "postgres",
	NumberedPlaceholders: true,
	LockForUpdate:        " FOR UPDATE",
	IsUniqueViolation:    isUniqueViolation,
}

// Open connects to PostgreSQL using dataSourceName and applies migrations.
func Open(ctx context.Context, dataSourceName string) (*sqlstore.Store, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := sqlstore.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Println("[Store] Connected to PostgreSQL for scenes.")
	return store, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
