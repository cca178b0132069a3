// Command pgverify dumps every table of a Postgres cluster to a discard sink
// in parallel to verify that the data files can be read end to end. Meant for
// replicas where parallel pg_dump cannot be used. NB: integrity is still not
// fully guaranteed with this approach (no snapshot, no constraint/index
// validation).
//
// Subcommands:
//
//	run        — run the verification (default workflow)
//	databases  — print the databases discovery would verify
//	tables     — print the tables discovery would verify for one database
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	// Embeds the IANA timezone database so the binary behaves the same in
	// containers that ship no /usr/share/zoneinfo.
	_ "time/tzdata"

	// Sets GOMEMLIMIT from the cgroup memory limit so the GC triggers before
	// the OOM killer fires in containers.
	_ "github.com/KimMachineGun/automemlimit"

	"github.com/spf13/cobra"

	"github.com/kmoppel/pgverify/internal/catalog"
	"github.com/kmoppel/pgverify/internal/config"
	"github.com/kmoppel/pgverify/internal/pgbin"
	"github.com/kmoppel/pgverify/internal/verify"
)

// flags mirror the config fields they override. Empty/zero means "not set";
// cobra's Changed() distinguishes an explicit zero from an untouched flag.
var flags struct {
	host     string
	port     int
	user     string
	binDir   string
	jobs     int
	database string
	quiet    bool
}

func main() {
	root := &cobra.Command{
		Use:   "pgverify",
		Short: "pgverify — best-effort Postgres data file integrity verification via pg_dump",
		// Silence default error printing; we print it ourselves with slog.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.host, "host", "", "PG host: IP, hostname or unix socket dir (default /var/run/postgresql/)")
	pf.IntVarP(&flags.port, "port", "p", 0, "PG port (default 5432)")
	pf.StringVarP(&flags.user, "username", "U", "", "PG user (default $PGUSER or $USER; password read from ~/.pgpass)")
	pf.StringVarP(&flags.binDir, "bindir", "b", "", "Postgres binaries folder (required)")
	pf.IntVarP(&flags.jobs, "jobs", "j", 0, fmt.Sprintf("max parallel dumps (default CPUs/4 = %d)", config.DefaultJobs()))
	pf.StringVarP(&flags.database, "dbname", "d", "", "verify only a single database")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "log errors only")

	root.AddCommand(
		runCmd(),
		databasesCmd(),
		tablesCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// ── run ───────────────────────────────────────────────────────────────────────

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Verify all databases and tables of the cluster",
		RunE:  runVerify,
	}
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	slog.SetDefault(log)
	log.Info("starting verification",
		"host", cfg.Host, "port", cfg.Port, "user", cfg.User,
		"bindir", cfg.BinDir, "jobs", cfg.Jobs, "dbname", cfg.Database)

	tools, err := pgbin.New(cfg.BinDir, cfg.Host, cfg.Port, cfg.User, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	coord := &verify.Coordinator{
		Source:   catalog.New(cfg.Host, cfg.Port, cfg.User),
		Verifier: tools,
		Dumper:   tools,
		Jobs:     cfg.Jobs,
		Database: cfg.Database,
		Log:      log,
	}
	return coord.Run(ctx)
}

// ── databases / tables ────────────────────────────────────────────────────────

func databasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "Print the connectable, non-template databases of the cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cfg))
			dbs, err := catalog.New(cfg.Host, cfg.Port, cfg.User).ListDatabases(cmd.Context())
			if err != nil {
				return err
			}
			for _, db := range dbs {
				fmt.Println(db)
			}
			return nil
		},
	}
}

func tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables <database>",
		Short: "Print the tables verification would dump for one database, largest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cfg))
			tables, err := catalog.New(cfg.Host, cfg.Port, cfg.User).ListTables(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, tbl := range tables {
				fmt.Println(tbl)
			}
			return nil
		},
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

// loadConfig parses the environment config and applies explicit flag
// overrides. Validation is skipped for discovery-only subcommands that never
// touch the binaries.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host = flags.host
	}
	if f.Changed("port") {
		cfg.Port = flags.port
	}
	if f.Changed("username") {
		cfg.User = flags.user
	}
	if f.Changed("bindir") {
		cfg.BinDir = flags.binDir
	}
	if f.Changed("jobs") {
		cfg.Jobs = flags.jobs
	}
	if f.Changed("dbname") {
		cfg.Database = flags.database
	}
	if f.Changed("quiet") {
		cfg.Quiet = flags.quiet
	}

	if cmd.Name() == "run" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger creates a slog.Logger per the configured format and quiet toggle.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Quiet {
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
