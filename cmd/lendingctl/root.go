package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/campuslib/lending-engine-go/config"
	"github.com/campuslib/lending-engine-go/lending"
	"github.com/campuslib/lending-engine-go/lending/postgresengine"
	"github.com/campuslib/lending-engine-go/lending/sqliteengine"
)

type cliContext struct {
	engine  *lending.Engine
	cleanup func()
}

var (
	flagPostgres bool
	flagVerbose  bool
	flagField    string
	flagISBN     string
	flagYear     int
	flagCategory string
	flagName     string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lendingctl",
		Short:         "Manage the campus lending catalog, loans and rewards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&flagPostgres, "postgres", false, "use the PostgreSQL store instead of SQLite")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newAddBookCmd(),
		newRemoveBookCmd(),
		newShowBookCmd(),
		newBorrowCmd(),
		newReturnCmd(),
		newRateCmd(),
		newSearchCmd(),
		newLeaderboardCmd(),
		newRegisterCmd(),
		newHistoryCmd(),
		newStatsCmd(),
	)

	return rootCmd
}

// openEngine wires the selected storage backend into a ready engine.
func openEngine(ctx context.Context) (cliContext, error) {
	logger := newLogger()

	if flagPostgres {
		config.LoadEnv()

		pool, poolErr := config.PostgresPGXPool(ctx)
		if poolErr != nil {
			return cliContext{}, fmt.Errorf("connecting to postgres: %w", poolErr)
		}

		store, storeErr := postgresengine.NewStoreFromPGXPool(pool, postgresengine.WithLogger(logger))
		if storeErr != nil {
			pool.Close()
			return cliContext{}, storeErr
		}

		if schemaErr := store.CreateSchema(ctx); schemaErr != nil {
			pool.Close()
			return cliContext{}, schemaErr
		}

		engine := lending.NewEngine(store, lending.WithLogger(logger))

		return cliContext{engine: engine, cleanup: pool.Close}, nil
	}

	config.LoadEnv()

	store, openErr := sqliteengine.Open(config.SQLitePath(), sqliteengine.WithLogger(logger))
	if openErr != nil {
		return cliContext{}, fmt.Errorf("opening sqlite database: %w", openErr)
	}

	engine := lending.NewEngine(store, lending.WithLogger(logger))

	return cliContext{engine: engine, cleanup: func() { _ = store.Close() }}, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// printJSON renders command output with indentation for terminals.
func printJSON(value any) error {
	out, marshalErr := jsoniter.ConfigFastest.MarshalIndent(value, "", "  ")
	if marshalErr != nil {
		return marshalErr
	}

	fmt.Println(string(out))

	return nil
}

func parseBookID(arg string) (lending.BookID, error) {
	id, parseErr := strconv.ParseInt(arg, 10, 64)
	if parseErr != nil {
		return 0, fmt.Errorf("invalid book id %q", arg)
	}

	return id, nil
}
