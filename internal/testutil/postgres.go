// ABOUTME: Test helper that starts a throwaway Postgres testcontainer with trust
// ABOUTME: auth. Use StartCluster(t) in integration tests that need a real catalog.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Cluster describes a running throwaway Postgres instance. Host/Port/User
// are what catalog.New and pgbin.New expect; trust auth means no password is
// needed, matching the production assumption that credentials live outside
// the tool (~/.pgpass).
type Cluster struct {
	Host     string
	Port     int
	User     string
	Database string
}

// StartCluster starts a Postgres testcontainer and returns its connection
// coordinates. The container is terminated via t.Cleanup.
func StartCluster(t *testing.T) *Cluster {
	t.Helper()
	ctx := context.Background()

	pgCtr, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pgverify_test"),
		tcpostgres.WithUsername("pgverify_test"),
		tcpostgres.WithPassword("testpassword"),
		// Trust auth so passwordless clients (the code under test) connect.
		testcontainers.WithEnv(map[string]string{"POSTGRES_HOST_AUTH_METHOD": "trust"}),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgCtr.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := pgCtr.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := pgCtr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	return &Cluster{
		Host:     host,
		Port:     port.Int(),
		User:     "pgverify_test",
		Database: "pgverify_test",
	}
}

// Exec runs sql statements against db for test data setup.
func (c *Cluster) Exec(t *testing.T, db string, stmts ...string) {
	t.Helper()
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s", c.Host, c.Port, c.User, db))
	if err != nil {
		t.Fatalf("connect to %s: %v", db, err)
	}
	defer conn.Close(ctx)

	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}
