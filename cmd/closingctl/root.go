package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/config"
	"github.com/Jelela/mishorasmed/consolidation"
	"github.com/Jelela/mishorasmed/logging"
	"github.com/Jelela/mishorasmed/store"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "closingctl",
		Short: "Inspect hospital billing periods and closings",
		Long: `closingctl computes billing periods from a hospital's closing day and
loads closing breakdowns from the configured store.`,
		SilenceUsage: true,
	}
	root.AddCommand(newPeriodsCmd())
	root.AddCommand(newClosingsCmd())
	root.AddCommand(newBreakdownCmd())
	return root
}

// storeFlags select the backend for commands that read closings.
type storeFlags struct {
	demo bool
	user string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.demo, "demo", false, "Use the bundled demo dataset in memory")
	cmd.Flags().StringVar(&f.user, "user", "demo-user", "User id")
}

// session is an opened store with the configured service on top.
type session struct {
	cfg     *config.Config
	service *consolidation.Service
	close   func()
}

func (f *storeFlags) open(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.demo {
		cfg.StoreDriver = config.DriverMemory
	}

	// The console logger writes to stderr; stdout carries the JSON result.
	logger, err := logging.New(cfg.LogLevel, "console", "closingctl")
	if err != nil {
		return nil, err
	}

	backend, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	service := consolidation.NewService(backend,
		consolidation.WithPeriodCalculator(cfg.PeriodCalculator()),
		consolidation.WithAggregateOptions(cfg.AggregateOptions()),
		consolidation.WithLogger(logger),
	)
	return &session{cfg: cfg, service: service, close: backend.Close}, nil
}

// dateFlag parses an optional date flag, defaulting to fallback.
func dateFlag(name, raw string, fallback billing.Date) (billing.Date, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := billing.ParseDate(raw)
	if err != nil {
		return billing.Date{}, &billing.MalformedInputError{Field: "--" + name, Value: raw, Layout: "YYYY-MM-DD"}
	}
	return d, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
