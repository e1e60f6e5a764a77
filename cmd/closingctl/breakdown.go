package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Jelela/mishorasmed/billing"
)

func newClosingsCmd() *cobra.Command {
	var (
		flags storeFlags
		today string
	)
	cmd := &cobra.Command{
		Use:   "closings",
		Short: "List a user's upcoming and past closings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			day, err := dateFlag("today", today, s.cfg.Today(time.Now()))
			if err != nil {
				return err
			}
			closings, err := s.service.ListClosings(cmd.Context(), flags.user, day)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), closings)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&today, "today", "", "Date to list from, YYYY-MM-DD (default: today in TIMEZONE)")
	return cmd
}

func newBreakdownCmd() *cobra.Command {
	var (
		flags       storeFlags
		hospitalID  string
		closingDate string
	)
	cmd := &cobra.Command{
		Use:     "breakdown",
		Short:   "Load a closing and print its per-group totals",
		Example: `  closingctl breakdown --demo --hospital uh-central --closing-date 2024-03-15`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := billing.ParseDate(closingDate)
			if err != nil {
				return &billing.MalformedInputError{Field: "--closing-date", Value: closingDate, Layout: "YYYY-MM-DD"}
			}

			s, err := flags.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			loaded, err := s.service.LoadClosing(cmd.Context(), flags.user, hospitalID, date)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), loaded)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&hospitalID, "hospital", "", "User hospital id")
	cmd.Flags().StringVar(&closingDate, "closing-date", "", "Closing date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("hospital")
	_ = cmd.MarkFlagRequired("closing-date")
	return cmd
}
