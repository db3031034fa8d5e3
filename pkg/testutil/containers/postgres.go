//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"veritas/internal/platform/postgres"
)

// PostgresContainer wraps a testcontainers Postgres instance with both
// database handles the stores use.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
	Pool      *pgxpool.Pool
}

// NewPostgresContainer starts Postgres and applies the migrations.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("veritas"),
		tcpostgres.WithUsername("veritas"),
		tcpostgres.WithPassword("veritas"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := postgres.Open(ctx, url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres: %v", err)
	}
	if err := postgres.Migrate(db); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to migrate postgres: %v", err)
	}
	pool, err := postgres.OpenPool(ctx, url)
	if err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open pgx pool: %v", err)
	}

	// Shared across suites through the Manager; Ryuk reaps the container.
	return &PostgresContainer{
		Container: container,
		URL:       url,
		DB:        db,
		Pool:      pool,
	}
}

// TruncateTables empties the named tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", strings.Join(tables, ", ")))
	return err
}
