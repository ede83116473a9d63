// canasta-import runs the shopping-list import flow from the terminal:
// parse a CSV or XLSX file, preview it against the recorded prices, apply
// conflict resolutions and submit the transaction.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"canasta/internal/cli"
	"canasta/internal/core"
	"canasta/internal/ingest"
	"canasta/internal/log"
	"canasta/internal/pricing"
	"canasta/internal/services"
)

type options struct {
	file        string
	date        string
	account     string
	category    string
	description string
	discount    string
	dbPath      string
	resolutions []string
	dryRun      bool
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:           "canasta-import",
		Short:         "Import a shopping-list file as a transaction",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "shopping list file (.csv or .xlsx)")
	flags.StringVarP(&opts.date, "date", "d", "", "transaction date (YYYY-MM-DD)")
	flags.StringVarP(&opts.account, "account", "a", "", "account id")
	flags.StringVarP(&opts.category, "category", "c", "", "category id")
	flags.StringVar(&opts.description, "description", "", "transaction description")
	flags.StringVar(&opts.discount, "discount", "", "overall discount percent (0-100)")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite database path (defaults to configuration)")
	flags.StringArrayVarP(&opts.resolutions, "resolve", "r", nil,
		"conflict resolution as ITEM=use_existing|update_existing (repeatable)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "preview only, do not submit")

	for _, required := range []string{"file", "date", "account", "category"} {
		cobra.CheckErr(root.MarkFlagRequired(required))
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, opts options) error {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadConfig(logger)

	dbPath := cfg.SQLiteDBPath
	if opts.dbPath != "" {
		dbPath = opts.dbPath
	}
	repo := cli.OpenRepository(logger, dbPath)

	builder := pricing.NewBuilder(repo, pricing.NewResolver(repo, logger), logger)
	svc := services.NewTransactionService(repo, builder, nil, logger)
	defer svc.Close()

	meta, err := buildMeta(opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	catalog, err := svc.Catalog(ctx)
	if err != nil {
		return err
	}

	lines, err := parseFile(opts.file, catalog)
	if err != nil {
		return err
	}

	// The session makes the flow explicit: submit is structurally
	// unreachable until the preview exists and every conflict is settled.
	session := core.NewSession()
	session.SetLines(lines)

	generation, err := session.BeginPreview()
	if err != nil {
		return err
	}
	preview, err := svc.Preview(ctx, lines, meta.Date, meta.Discount)
	if err != nil {
		return err
	}
	session.CompletePreview(generation, preview.Lines)

	if err := applyResolutions(session, opts.resolutions); err != nil {
		return err
	}

	printPreview(cmd, preview, session.Preview(), meta.Discount)

	if opts.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "Dry run, nothing submitted.")
		return nil
	}

	if err := session.BeginSubmit(); err != nil {
		return err
	}
	id, err := svc.Submit(ctx, meta, session.Preview())
	if err != nil {
		session.FailSubmit(err)
		return err
	}
	if err := session.CompleteSubmit(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created transaction %s\n", id)
	return nil
}

func buildMeta(opts options) (core.SubmissionMeta, error) {
	date, err := core.ParseDate(opts.date)
	if err != nil {
		return core.SubmissionMeta{}, err
	}

	discount := decimal.Zero
	if opts.discount != "" {
		discount, err = decimal.NewFromString(opts.discount)
		if err != nil {
			return core.SubmissionMeta{}, fmt.Errorf("invalid discount %q", opts.discount)
		}
	}

	return core.SubmissionMeta{
		AccountID:   opts.account,
		CategoryID:  opts.category,
		Date:        date,
		Description: opts.description,
		Discount:    discount,
	}, nil
}

func parseFile(path string, catalog ingest.Catalog) ([]core.InputLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ingest.ParseXLSX(f, catalog)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ingest.ParseCSV(string(raw), catalog)
}

// applyResolutions settles conflicts named as ITEM=resolution flags.
func applyResolutions(session *core.Session, specs []string) error {
	preview := session.Preview()
	for _, spec := range specs {
		itemID, res, found := strings.Cut(spec, "=")
		if !found {
			return fmt.Errorf("invalid --resolve %q, want ITEM=resolution", spec)
		}

		index := -1
		for i, l := range preview {
			if l.ItemID == itemID {
				index = i
				break
			}
		}
		if index < 0 {
			return fmt.Errorf("--resolve %q names an item not in the preview", spec)
		}
		if err := session.Resolve(index, core.Resolution(res)); err != nil {
			return fmt.Errorf("resolve %s: %w", itemID, err)
		}
	}
	return nil
}

func printPreview(cmd *cobra.Command, preview pricing.Preview, lines []core.PreviewLine, discount decimal.Decimal) {
	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "ITEM\tNAME\tQTY\tUNIT NET\tTAX\tTOTAL\tSTATUS\tRESOLUTION")
	for _, l := range lines {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ItemID, l.ItemName, l.Quantity.String(),
			l.UnitPriceNet.StringFixed(2), l.TaxAmount.StringFixed(2),
			l.LineTotal.StringFixed(2), l.Status, l.Resolution)
	}
	w.Flush()

	for _, u := range preview.Unmatched {
		fmt.Fprintf(out, "Skipped row %d: %q is not in the catalog\n", u.RowNum, u.RawID)
	}

	totals := core.Aggregate(lines, discount)
	fmt.Fprintf(out, "Total: %s", totals.BeforeDiscount.StringFixed(2))
	if discount.IsPositive() {
		fmt.Fprintf(out, " (after %s%% discount: %s)",
			discount.String(), totals.AfterDiscount.StringFixed(2))
	}
	fmt.Fprintln(out)
}
