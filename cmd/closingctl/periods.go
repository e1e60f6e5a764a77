package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/consolidation"
)

type periodsOptions struct {
	closingDay int
	reference  string
	from       string
	to         string
	policy     string
}

// closingPeriod is one enumerated closing.
type closingPeriod struct {
	ClosingDate billing.Date   `json:"closing_date"`
	Period      billing.Period `json:"period"`
}

type periodsResult struct {
	ClosingDay int             `json:"closing_day"`
	Policy     string          `json:"policy"`
	Closings   []closingPeriod `json:"closings"`
}

func newPeriodsCmd() *cobra.Command {
	var opts periodsOptions
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "Show the next closing and its period, or every closing in a range",
		Example: `  closingctl periods --closing-day 15 --reference 2024-03-10
  closingctl periods --closing-day 31 --from 2024-01-01 --to 2024-06-30 --policy rollover`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPeriods(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.closingDay, "closing-day", 0, "Closing day of month (1-31)")
	cmd.Flags().StringVar(&opts.reference, "reference", "", "Reference date, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&opts.from, "from", "", "Enumerate closings from this date")
	cmd.Flags().StringVar(&opts.to, "to", "", "Enumerate closings up to this date")
	cmd.Flags().StringVar(&opts.policy, "policy", "clamp", "Month-end policy: clamp or rollover")
	_ = cmd.MarkFlagRequired("closing-day")
	cmd.MarkFlagsRequiredTogether("from", "to")
	cmd.MarkFlagsMutuallyExclusive("reference", "from")
	return cmd
}

func runPeriods(cmd *cobra.Command, opts periodsOptions) error {
	policy, err := billing.ParseMonthEndPolicy(opts.policy)
	if err != nil {
		return err
	}
	calc := billing.NewPeriodCalculator()
	calc.MonthEnd = policy

	if opts.from == "" {
		reference, err := dateFlag("reference", opts.reference, billing.DateOf(time.Now()))
		if err != nil {
			return err
		}
		preview, err := consolidation.PreviewPeriod(calc, reference, opts.closingDay)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), preview)
	}

	from, err := dateFlag("from", opts.from, billing.Date{})
	if err != nil {
		return err
	}
	to, err := dateFlag("to", opts.to, billing.Date{})
	if err != nil {
		return err
	}
	if to.Before(from) {
		return errors.New("--to must not be before --from")
	}

	dates, err := calc.EnumerateClosings(from, to, opts.closingDay, billing.Ascending)
	if err != nil {
		return err
	}
	result := periodsResult{ClosingDay: opts.closingDay, Policy: policy.String(), Closings: []closingPeriod{}}
	for _, d := range dates {
		period, err := calc.PeriodFor(d, opts.closingDay)
		if err != nil {
			return err
		}
		result.Closings = append(result.Closings, closingPeriod{ClosingDate: d, Period: period})
	}
	return printJSON(cmd.OutOrStdout(), result)
}
