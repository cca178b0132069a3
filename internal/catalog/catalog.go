// ABOUTME: Read-only Postgres catalog access: enumerates connectable databases
// ABOUTME: and their ordinary tables, largest first, via short-lived pgx connections.
package catalog

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// maintenanceDB is the database used to enumerate the cluster's databases.
// template1 exists on every cluster and is always connectable for superusers.
const maintenanceDB = "template1"

// Catalog runs discovery queries against the cluster catalogs. Each call
// opens its own connection — discovery is a handful of one-shot queries per
// run, so there is nothing to pool.
type Catalog struct {
	host string
	port int
	user string
}

// New returns a Catalog bound to the given connection parameters. host may
// be a hostname, an IP, or a unix socket directory.
func New(host string, port int, user string) *Catalog {
	return &Catalog{host: host, port: port, user: user}
}

// dsn builds the keyword/value connection string for db.
func (c *Catalog) dsn(db string) string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s", c.host, c.port, c.user, db)
}

// ListDatabases returns the names of all connectable, non-template databases
// in the cluster, sorted by name.
func (c *Catalog) ListDatabases(ctx context.Context) ([]string, error) {
	query, args, err := sq.Select("datname").
		From("pg_database").
		Where("not datistemplate and datallowconn").
		OrderBy("datname").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return c.queryStrings(ctx, maintenanceDB, query, args)
}

// ListTables returns db's ordinary persistent tables as quoted, schema
// qualified names, ordered by descending physical size (relpages) so the
// longest dumps are enqueued first. System namespaces are excluded.
func (c *Catalog) ListTables(ctx context.Context, db string) ([]string, error) {
	query, args, err := sq.Select("quote_ident(nspname) || '.' || quote_ident(relname)").
		From("pg_class c").
		Join("pg_namespace n ON n.oid = c.relnamespace").
		// relkind/relpersistence are the internal "char" type; inline literals
		// avoid binding text parameters against it.
		Where("relkind = 'r'").
		Where("relpersistence = 'p'").
		Where(`not nspname like any(array['information_schema', 'pg\_%'])`).
		OrderBy("relpages DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return c.queryStrings(ctx, db, query, args)
}

// queryStrings opens a connection to db, runs a single-column string query
// and closes the connection again.
func (c *Catalog) queryStrings(ctx context.Context, db, query string, args []any) ([]string, error) {
	conn, err := pgx.Connect(ctx, c.dsn(db))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", db, err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", db, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
