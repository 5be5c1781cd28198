package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	DBPath   string
	Exchange string
	Party    string
	Verify   bool
}

// JournalRecords is the output of a journal read.
type JournalRecords struct {
	Records []journal.Record `json:"records"`
}

func (r JournalRecords) Text() string {
	if len(r.Records) == 0 {
		return "no records"
	}
	var b strings.Builder
	for i, rec := range r.Records {
		if i > 0 {
			b.WriteByte('\n')
		}
		subject := rec.ExchangeID
		if subject == "" {
			subject = rec.PartyID
		}
		fmt.Fprintf(&b, "#%d seq=%d %s %s", rec.ID, rec.Seq, rec.Type, subject)
		if rec.Status != "" {
			fmt.Fprintf(&b, " %s", rec.Status)
		}
	}
	return b.String()
}

// JournalVerifyResult is the output of a successful --verify.
type JournalVerifyResult struct {
	Records int    `json:"records"`
	Head    string `json:"head"`
}

func (r JournalVerifyResult) Text() string {
	return fmt.Sprintf("✓ chain intact: %d records, head %s", r.Records, shortDigest(r.Head))
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect or verify the audit journal",
		Long: `Read records from the SQLite audit journal written by "escrow run".

Records are listed in append order, optionally restricted to one exchange
or one party. With --verify the digest chain is recomputed and the command
exits 1 at the first broken link.

Example:
  escrow journal --db ./escrow.db
  escrow journal --db ./escrow.db --exchange 0190a8b2-...
  escrow journal --db ./escrow.db --verify`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "journal database path (default $ESCROW_JOURNAL)")
	cmd.Flags().StringVar(&opts.Exchange, "exchange", "", "only records of this exchange")
	cmd.Flags().StringVar(&opts.Party, "party", "", "only records involving this party")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "verify the digest chain")

	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	path := firstNonEmpty(opts.DBPath, opts.Config.JournalPath)
	if path == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}
	if opts.Exchange != "" && opts.Party != "" {
		return NewExitError(ExitCommandError, "--exchange and --party are mutually exclusive")
	}
	// Opening would create an empty database.
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Verify {
		return verifyJournal(ctx, j, formatter)
	}

	var records []journal.Record
	switch {
	case opts.Exchange != "":
		records, err = j.ReadExchange(ctx, opts.Exchange)
	case opts.Party != "":
		records, err = j.ReadParty(ctx, domain.PartyID(opts.Party))
	default:
		records, err = j.ReadAll(ctx)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	return formatter.Success(JournalRecords{Records: records})
}

func verifyJournal(ctx context.Context, j *journal.Journal, formatter *OutputFormatter) error {
	n, err := j.Verify(ctx)
	var chainErr *journal.ChainError
	switch {
	case errors.As(err, &chainErr):
		_ = formatter.Error(ErrCodeChain, chainErr.Error(), map[string]any{
			"record_id": chainErr.RecordID,
			"reason":    chainErr.Reason,
		})
		return WrapExitError(ExitFailure, "journal chain broken", err)
	case err != nil:
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to verify journal", err)
	}
	return formatter.Success(JournalVerifyResult{Records: n, Head: j.Head()})
}

func shortDigest(d string) string {
	if d == "" {
		return "<empty>"
	}
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
