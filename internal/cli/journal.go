package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/timebox/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Limit  int
	Source string
}

// JournalResult is the journal command's payload.
type JournalResult struct {
	Rounds []journal.Round `json:"rounds"`
	Stats  journal.Stats   `json:"stats"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal [db]",
		Short: "Show recorded round outcomes",
		Long: `Show round outcomes recorded by "timebox run --journal".

The database defaults to $TIMEBOX_JOURNAL. It must already exist.

Examples:
  timebox journal rounds.db
  timebox journal rounds.db --source first_choice --limit 10 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.Config.Journal
			if len(args) == 1 {
				path = args[0]
			}
			return runJournal(opts, path, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "show only the last n rounds, 0 = all")
	cmd.Flags().StringVar(&opts.Source, "source", "", "only rounds from this source")

	return cmd
}

func runJournal(opts *JournalOptions, path string, cmd *cobra.Command) error {
	if path == "" {
		return NewExitError(ExitCommandError, "no journal given (pass a path or set TIMEBOX_JOURNAL)")
	}
	if _, err := os.Stat(path); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", path))
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --limit %d: must not be negative", opts.Limit))
	}

	j, err := journal.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	ctx := cmd.Context()
	rounds, err := j.Rounds(ctx, journal.Filter{Source: opts.Source, Limit: opts.Limit})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read rounds", err)
	}
	stats, err := j.Stats(ctx, opts.Source)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read stats", err)
	}

	formatter := opts.formatter(cmd)
	if formatter.Format == "json" {
		return formatter.JSON(JournalResult{Rounds: rounds, Stats: stats}, nil)
	}

	for _, r := range rounds {
		line := fmt.Sprintf("%6d  %-9s", r.Seq, r.State)
		if r.Reaction != "" {
			line += fmt.Sprintf("  %s", r.Reaction)
			if r.Priority != nil {
				line += fmt.Sprintf(" (priority %d)", *r.Priority)
			}
		}
		if r.Signaled {
			line += "  signaled"
		}
		if r.Source != "" {
			line += "  [" + r.Source + "]"
		}
		if r.Error != "" {
			line += "  error: " + r.Error
		}
		formatter.Textf("%s", line)
	}

	formatter.Textf("")
	formatter.Textf("%d round(s), %d signaled", stats.Total, stats.Signaled)
	for _, state := range sortedKeys(stats.ByState) {
		formatter.Textf("  %-9s %d", state, stats.ByState[state])
	}
	for _, name := range sortedKeys(stats.Fired) {
		formatter.Textf("  fired %s: %d", name, stats.Fired[name])
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
