package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/finwork/invoicefinder/internal/search"
)

var (
	searchMonths    int
	searchMailboxes []string
	searchJSON      bool
	searchLegacy    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search all mailboxes for invoice emails",
	Long: `Search every configured mailbox for invoice and order emails.

The query is classified automatically: order identifiers and invoice
numbers search attachments directly, amounts are combined with invoice
keywords, and free-text queries match name variations.

Examples:
  invoicefinder search ES5112345678
  invoicefinder search "FV-2024-0812"
  invoicefinder search "149,90" --months 6
  invoicefinder search decathlon --mailbox purchasing@corp.example --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchMonths, "months", 3, "how many months back to search")
	searchCmd.Flags().StringSliceVar(&searchMailboxes, "mailbox", nil, "mailbox to search (repeatable; default: configured or domain list)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
	searchCmd.Flags().BoolVar(&searchLegacy, "legacy", false, "use the fixed keyword query without content validation")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("empty search query")
	}
	if searchMonths < 1 {
		return fmt.Errorf("--months must be at least 1")
	}

	svc, err := buildService()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	mailboxes := searchMailboxes
	if len(mailboxes) == 0 {
		resolver := buildMailboxResolver(svc)
		mailboxes, err = resolver.Resolve(ctx, "")
		if err != nil {
			return fmt.Errorf("resolve mailboxes: %w", err)
		}
	}
	if len(mailboxes) == 0 {
		return fmt.Errorf("no mailboxes to search; set [google] mailboxes or configure domain enumeration")
	}

	pipeline := buildPipeline(svc)
	if searchLegacy {
		agg := search.NewAggregator(svc,
			search.WithBatchSize(cfg.Search.BatchSize),
			search.WithDetailConcurrency(cfg.Search.DetailConcurrency),
			search.WithLogger(logger),
		)
		pipeline = search.NewPipeline(agg, search.LegacyKeywordStrategy{}, cfg.Search.MaxResults, logger)
	}

	fmt.Fprintf(os.Stderr, "Searching %d mailboxes...\n", len(mailboxes))
	records, err := pipeline.Run(ctx, query, searchMonths, mailboxes, func(processed, total int) {
		fmt.Fprintf(os.Stderr, "  %d/%d mailboxes\n", processed, total)
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No results.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tMAILBOX\tFROM\tSUBJECT\tATTACHMENTS")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rec.Date,
			rec.Mailbox,
			truncate(rec.From, 32),
			truncate(rec.Subject, 48),
			attachmentSummary(rec.Attachments),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d results\n", len(records))
	return nil
}

// attachmentSummary joins filenames for table output.
func attachmentSummary(attachments []search.AttachmentRef) string {
	if len(attachments) == 0 {
		return "-"
	}
	names := make([]string, len(attachments))
	for i, a := range attachments {
		names[i] = a.Filename
	}
	return truncate(strings.Join(names, ", "), 40)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
