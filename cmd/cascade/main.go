package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/koba/db-cascade/internal/audit"
	"github.com/koba/db-cascade/internal/cascade"
	"github.com/koba/db-cascade/internal/config"
	"github.com/koba/db-cascade/internal/database"
)

var (
	mode      string
	dryRun    bool
	verbose   bool
	rulesPath string
	auditPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cascade <uid>",
	Short: "Delete a row as if its schema had ON DELETE CASCADE",
	Long: `Delete one row together with every row that depends on it through
foreign keys. Relations listed as trouble in the rules file are set to NULL
instead of being followed.`,
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: setupLogging,
	RunE:              runCascade,
	SilenceUsage:      true,
}

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the topological rank of every table",
	Long:  `Print the order in which dependent tables are processed, or the cycle that still needs a trouble relation.`,
	Args:  cobra.NoArgs,
	RunE:  runOrder,
}

var auditCmd = &cobra.Command{
	Use:   "audit <file>",
	Short: "Print the statements recorded in an audit file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rulesPath, "config", "c", config.DefaultRulesPath, "Rules file listing trouble relations and unloadable tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print out all the SQL statements")

	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "Database table to unload from")
	rootCmd.Flags().BoolVarP(&dryRun, "dryrun", "d", false, "Dry run (don't commit anything)")
	rootCmd.Flags().StringVar(&auditPath, "audit", "", "Write the executed statements to this SQLite file")
	_ = rootCmd.MarkFlagRequired("mode")
	_ = rootCmd.RegisterFlagCompletionFunc("mode", completeMode)

	rootCmd.AddCommand(orderCmd, auditCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	return nil
}

func completeMode(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	rules, err := config.LoadRules(rulesPath)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return rules.Unloadables, cobra.ShellCompDirectiveNoFileComp
}

// connect loads the store configuration, connects and builds the catalog
func connect(ctx context.Context, rules *config.Rules) (database.Database, *cascade.Catalog, error) {
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.NewDatabase(dbConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database: %w", err)
	}

	if err := db.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	keys, relations, err := database.Load(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	catalog, err := cascade.NewCatalog(keys, relations, rules.Trouble)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	log.Debug().
		Int("tables", len(catalog.Graph().Tables())).
		Int("relations", len(relations)).
		Int("trouble", len(rules.Trouble)).
		Msg("loaded schema")

	return db, catalog, nil
}

func runCascade(cmd *cobra.Command, args []string) error {
	uid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uid %q: must be an integer", args[0])
	}

	rules, err := config.LoadRules(rulesPath)
	if err != nil {
		return err
	}
	if !rules.IsUnloadable(mode) {
		return fmt.Errorf("invalid mode %q: choose from %s", mode, strings.Join(rules.Unloadables, ", "))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, catalog, err := connect(ctx, rules)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn().Err(err).Msg("interrupted by user while loading the schema")
			log.Warn().Msg("WARNING!!! Did not commit anything")
			return nil
		}
		return err
	}
	defer db.Close()

	result, err := cascade.Run(ctx, db.DB(), catalog, db.Dialect(), cascade.Options{
		Table:       mode,
		ID:          uid,
		Commit:      !dryRun,
		Verbose:     verbose,
		Out:         cmd.OutOrStdout(),
		Unloadables: rules.Unloadables,
	})
	if err != nil {
		return err
	}

	logSummary(result)

	if auditPath != "" {
		if err := audit.Write(result, auditPath); err != nil {
			return fmt.Errorf("failed to write audit file: %w", err)
		}
		log.Info().Str("path", auditPath).Msg("audit written")
	}

	if !result.Committed {
		log.Warn().Msg("WARNING!!! Did not commit anything")
	}

	return nil
}

func logSummary(result *cascade.Result) {
	ev := log.Info().
		Str("table", result.Table).
		Stringer("id", result.ID).
		Bool("committed", result.Committed).
		Dur("elapsed", result.Finished.Sub(result.Started))

	kinds := make([]string, 0, len(result.Summary.Statements))
	for k := range result.Summary.Statements {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		ev = ev.Int(k, result.Summary.Statements[cascade.Kind(k)])
	}
	ev.Msg("cascade finished")
}

func runOrder(cmd *cobra.Command, args []string) error {
	rules, err := config.LoadRules(rulesPath)
	if err != nil {
		return err
	}

	db, catalog, err := connect(cmd.Context(), rules)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	tables := catalog.Graph().Tables()
	sort.SliceStable(tables, func(i, j int) bool {
		return catalog.Rank(tables[i]) < catalog.Rank(tables[j])
	})
	for _, t := range tables {
		pk := strings.Join(catalog.Keys().Columns(t), ",")
		if pk == "" {
			pk = "?"
		}
		fmt.Fprintf(out, "%4d  %s (%s)\n", catalog.Rank(t), t, pk)
	}

	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	trail, err := audit.Load(args[0])
	if err != nil {
		return err
	}

	printTrail(cmd.OutOrStdout(), trail)
	return nil
}

// printTrail writes the metadata of an audit file followed by its statements
// with arguments inlined, one per line
func printTrail(w io.Writer, trail *audit.Trail) {
	keys := make([]string, 0, len(trail.Metadata))
	for k := range trail.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "-- %s: %s\n", k, trail.Metadata[k])
	}

	for _, e := range trail.Entries {
		stmt := cascade.Statement{Kind: e.Kind, Table: e.Table, SQL: e.SQL, Args: e.Args}
		status := "skipped"
		if e.Applied {
			status = fmt.Sprintf("%d rows", e.RowsAffected)
		}
		fmt.Fprintf(w, "%s -- %s, %s\n", stmt, e.Kind, status)
	}
}
