package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/escrow/internal/genesis"
)

// ValidateResult is the output of a successful validate.
type ValidateResult struct {
	Path    string `json:"path"`
	Parties int    `json:"parties"`
	Assets  int    `json:"assets"`
}

func (r ValidateResult) Text() string {
	return fmt.Sprintf("✓ %s: %d parties, %d assets", r.Path, r.Parties, r.Assets)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <genesis>",
		Short: "Check a CUE genesis definition without starting the engine",
		Long: `Compile and validate a genesis file or CUE package directory.

Reports every problem found: duplicate ids, negative cash or valuations,
unsupported asset classes and assets owned by unknown parties.

Example:
  escrow validate ./genesis.cue
  escrow validate ./genesis/ --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, args[0])
		},
	}
}

func runValidate(opts *RootOptions, cmd *cobra.Command, path string) error {
	formatter := newFormatter(opts, cmd)

	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "genesis not found", err)
	}
	formatter.VerboseLog("compiling %s", path)

	spec, err := genesis.LoadCUE(path)
	if err == nil {
		err = genesis.Validate(spec)
	}
	if err != nil {
		if outErr := formatter.Error(ErrCodeGenesis, "genesis is invalid", problems(err)); outErr != nil {
			return WrapExitError(ExitCommandError, "failed to write output", outErr)
		}
		return WrapExitError(ExitFailure, "genesis is invalid", err)
	}

	return formatter.Success(ValidateResult{
		Path:    path,
		Parties: len(spec.Parties),
		Assets:  len(spec.Assets),
	})
}

// problems splits a joined error into one message per problem.
func problems(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, problems(e)...)
		}
		return out
	}
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

