package config

import (
	"context"
	"database/sql"
	"time"

	"pairchat/internal/observability"

	_ "github.com/lib/pq"
)

// NewPostgresConnection creates a new PostgreSQL database connection
func NewPostgresConnection(dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

// ReportPoolStats exports connection pool gauges until ctx is cancelled.
func ReportPoolStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			observability.DBConnectionsOpen.Set(float64(stats.OpenConnections))
			observability.DBConnectionsInUse.Set(float64(stats.InUse))
			observability.DBConnectionsIdle.Set(float64(stats.Idle))
		}
	}
}
