package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

var errNoDisposal = errors.New("transaction not found or not a disposal")

// costBasisCmd previews or commits the FIFO allocation of one disposal.
type costBasisCmd struct {
	tenant   string
	disposal string
	commit   bool
	json     bool
}

func (*costBasisCmd) Name() string     { return "cost-basis" }
func (*costBasisCmd) Synopsis() string { return "FIFO cost basis of a disposal" }
func (*costBasisCmd) Usage() string {
	return `btcbasis cost-basis -tenant <tenant> -disposal <id> [-commit] [-json]

  Matches the disposal against the tenant's open lots, oldest first. Without
  -commit nothing is written; with it the allocation trail is recorded and the
  consumed lots are drawn down. Committing twice returns the first trail.
`
}

func (c *costBasisCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "tenant id")
	f.StringVar(&c.disposal, "disposal", "", "disposal transaction id")
	f.BoolVar(&c.commit, "commit", false, "record the allocation trail")
	f.BoolVar(&c.json, "json", false, "print the result as JSON")
}

func (c *costBasisCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := parseDisposal(c.tenant, c.disposal)
	if err != nil {
		return fail(err)
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

	var res *domain.CostBasisResult
	if c.commit {
		res, err = svcs.Engine.ProcessDisposal(ctx, c.tenant, id)
	} else {
		res, err = svcs.Engine.ComputeCostBasis(ctx, c.tenant, id)
	}
	if err != nil {
		return fail(err)
	}
	if res == nil {
		return fail(errNoDisposal)
	}

	if c.json {
		if err := printJSON(res); err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOT\tQUANTITY\tCOST BASIS")
	for _, r := range res.Allocations {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.LotID, r.QuantityConsumed.StringFixed(8), usd(r.CostBasisUSD))
	}
	fmt.Fprintf(w, "total\t%s\t%s\n", res.AmountMatched.StringFixed(8), usd(res.TotalCostBasisUSD))
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	if res.InsufficientQuantity {
		fmt.Printf("warning: requested %s BTC but only %s BTC of open lots were available\n",
			res.AmountRequested.StringFixed(8), res.AmountMatched.StringFixed(8))
	}
	return subcommands.ExitSuccess
}

// gainCmd prints the realized gain of one disposal.
type gainCmd struct {
	tenant   string
	disposal string
	json     bool
}

func (*gainCmd) Name() string     { return "gain" }
func (*gainCmd) Synopsis() string { return "realized gain of a disposal" }
func (*gainCmd) Usage() string {
	return `btcbasis gain -tenant <tenant> -disposal <id> [-json]

  Values the disposal at the BTC/USD rate of its UTC day and subtracts its
  FIFO cost basis. The committed trail is used when there is one.
`
}

func (c *gainCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "tenant id")
	f.StringVar(&c.disposal, "disposal", "", "disposal transaction id")
	f.BoolVar(&c.json, "json", false, "print the result as JSON")
}

func (c *gainCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := parseDisposal(c.tenant, c.disposal)
	if err != nil {
		return fail(err)
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

	g, err := svcs.Gains.RealizedGain(ctx, c.tenant, id)
	if err != nil {
		return fail(err)
	}
	if g == nil {
		return fail(errNoDisposal)
	}
	if c.json {
		if err := printJSON(g); err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	}

	state := "preview"
	if g.Committed {
		state = "committed"
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "disposed\t%s (%s)\n", g.DisposedAt.UTC().Format("2006-01-02 15:04:05"), state)
	fmt.Fprintf(w, "quantity\t%s BTC\n", g.Quantity.StringFixed(8))
	fmt.Fprintf(w, "rate\t%s\n", usd(g.RateUSD))
	fmt.Fprintf(w, "proceeds\t%s\n", usd(g.ProceedsUSD))
	fmt.Fprintf(w, "cost basis\t%s\n", usd(g.CostBasisUSD))
	fmt.Fprintf(w, "gain\t%s\n", usd(g.GainUSD))
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// exportCmd writes a tenant's allocation trail to object storage.
type exportCmd struct {
	tenant string
	from   string
	to     string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export committed allocations to object storage" }
func (*exportCmd) Usage() string {
	return `btcbasis export -tenant <tenant> -from <YYYY-MM-DD> -to <YYYY-MM-DD>

  Writes the allocations committed in [from, to) as JSONL to the configured
  S3 bucket. Requires s3.enabled.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "tenant id")
	f.StringVar(&c.from, "from", "", "first day, inclusive")
	f.StringVar(&c.to, "to", "", "last day, exclusive")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.tenant == "" {
		return fail(fmt.Errorf("-tenant is required: %w", domain.ErrInvalidInput))
	}
	from, err := domain.ParseDay(c.from)
	if err != nil {
		return fail(fmt.Errorf("-from: %w", err))
	}
	to, err := domain.ParseDay(c.to)
	if err != nil {
		return fail(fmt.Errorf("-to: %w", err))
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
	if svcs.Archiver == nil {
		return fail(errors.New("export needs object storage; set s3.enabled"))
	}

	res, err := svcs.Archiver.ExportTenant(ctx, c.tenant, from, to)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("exported %d allocations to %s\n", res.Records, res.Path)
	return subcommands.ExitSuccess
}
