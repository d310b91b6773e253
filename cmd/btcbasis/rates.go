package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// rateCmd prints the cached or freshly fetched rate of one day.
type rateCmd struct {
	date string
	json bool
}

func (*rateCmd) Name() string     { return "rate" }
func (*rateCmd) Synopsis() string { return "BTC/USD rate of one UTC day" }
func (*rateCmd) Usage() string {
	return `btcbasis rate -date <YYYY-MM-DD> [-json]

  Prints the BTC/USD rate for the day. A day seen before is served from
  storage; otherwise the provider is asked once and the answer is kept.
`
}

func (c *rateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "UTC day, defaults to today")
	f.BoolVar(&c.json, "json", false, "print the observation as JSON")
}

func (c *rateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	day := domain.NormalizeDate(time.Now())
	if c.date != "" {
		var err error
		if day, err = domain.ParseDay(c.date); err != nil {
			return fail(err)
		}
	}

	a, _, err := openApp(os.Stderr)
	if err != nil {
		return fail(err)
	}
	defer a.Close()
	svcs, err := a.Services(ctx)
	if err != nil {
		return fail(err)
	}

	obs, err := svcs.Rates.GetObservation(ctx, day)
	if err != nil {
		return fail(err)
	}
	if c.json {
		if err := printJSON(obs); err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	}
	fmt.Printf("%s\t%s\t(%s, fetched %s)\n",
		domain.DayKey(obs.Date), usd(obs.Rate), obs.Provider, obs.FetchedAt.UTC().Format(time.RFC3339))
	return subcommands.ExitSuccess
}

// ratesCmd resolves several days, skipping the ones that cannot be fetched.
type ratesCmd struct{}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "BTC/USD rates of several UTC days" }
func (*ratesCmd) Usage() string {
	return `btcbasis rates <YYYY-MM-DD> [<YYYY-MM-DD> ...]

  Prints the rate of each distinct day in order. Days whose rate cannot be
  fetched are reported as missing; the exit status is then 1.
`
}

func (*ratesCmd) SetFlags(*flag.FlagSet) {}

func (*ratesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "at least one date is required")
		return subcommands.ExitUsageError
	}
	days := make([]time.Time, 0, f.NArg())
	for _, arg := range f.Args() {
		day, err := domain.ParseDay(arg)
		if err != nil {
			return fail(err)
		}
		days = append(days, day)
	}

	a, _, err := openApp(os.Stderr)
	if err != nil {
		return fail(err)
	}
	defer a.Close()
	svcs, err := a.Services(ctx)
	if err != nil {
		return fail(err)
	}

	rates, batchErr := svcs.Rates.BatchGetRates(ctx, days)

	status := subcommands.ExitSuccess
	seen := make(map[string]bool, len(days))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, day := range days {
		key := domain.DayKey(day)
		if seen[key] {
			continue
		}
		seen[key] = true
		if rate, ok := rates[key]; ok {
			fmt.Fprintf(w, "%s\t%s\n", key, usd(rate))
		} else {
			fmt.Fprintf(w, "%s\tmissing\n", key)
			status = subcommands.ExitFailure
		}
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	if batchErr != nil {
		return fail(batchErr)
	}
	return status
}
