package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nahum29/tiendita/internal/credits"
)

// BackfillMode enumerates supported execution strategies.
type BackfillMode string

const (
	// BackfillModeDry counts legacy notes without changing them.
	BackfillModeDry BackfillMode = "dry"
	// BackfillModeApply updates legacy notes after confirmation.
	BackfillModeApply BackfillMode = "apply"
)

// ExitPending is returned by a dry run that found notes to normalize.
const ExitPending = 10

// Backfiller normalizes credit notes without an outstanding amount.
type Backfiller interface {
	BackfillLegacyOutstanding(ctx context.Context, apply bool) (credits.BackfillReport, error)
}

// BackfillOptions configures the backfill command execution.
type BackfillOptions struct {
	Mode       BackfillMode
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
	Stdin      io.Reader
	Confirm    func(io.Reader, io.Writer) (bool, error)
}

// BackfillSummary is the structured outcome of a run.
type BackfillSummary struct {
	Mode       BackfillMode `json:"mode"`
	Candidates int64        `json:"candidates"`
	Updated    int64        `json:"updated"`
}

// BackfillCommand runs the legacy outstanding backfill and returns the exit
// code: 0 done or nothing to do, 1 failure, ExitPending for a dry run with
// candidates.
func BackfillCommand(ctx context.Context, svc Backfiller, opts BackfillOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = BackfillModeDry
	}
	mode := BackfillMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case BackfillModeDry, BackfillModeApply:
	default:
		fmt.Fprintf(opts.Stderr, "credits backfill: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}

	preview, err := svc.BackfillLegacyOutstanding(ctx, false)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "credits backfill: %v\n", err)
		return 1
	}
	summary := BackfillSummary{Mode: mode, Candidates: preview.Candidates}
	if mode == BackfillModeDry || preview.Candidates == 0 {
		if err := writeBackfillOutput(opts, summary); err != nil {
			fmt.Fprintf(opts.Stderr, "credits backfill: %v\n", err)
			return 1
		}
		if mode == BackfillModeDry && preview.Candidates > 0 {
			return ExitPending
		}
		return 0
	}

	confirm := opts.Confirm
	if confirm == nil {
		confirm = defaultBackfillConfirm
	}
	ok, err := confirm(opts.Stdin, opts.Stdout)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "credits backfill: confirmation failed: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(opts.Stderr, "credits backfill: cancelled by user")
		return 1
	}
	report, err := svc.BackfillLegacyOutstanding(ctx, true)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "credits backfill: apply failed: %v\n", err)
		return 1
	}
	summary.Candidates = report.Candidates
	summary.Updated = report.Updated
	if err := writeBackfillOutput(opts, summary); err != nil {
		fmt.Fprintf(opts.Stderr, "credits backfill: %v\n", err)
		return 1
	}
	return 0
}

func writeBackfillOutput(opts BackfillOptions, summary BackfillSummary) error {
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(summary)
	}
	fmt.Fprintf(opts.Stdout, "Credit backfill (%s): %d note(s) without outstanding amount\n", summary.Mode, summary.Candidates)
	if summary.Mode == BackfillModeApply && summary.Candidates > 0 {
		fmt.Fprintf(opts.Stdout, "Updated %d note(s).\n", summary.Updated)
	}
	return nil
}

func defaultBackfillConfirm(r io.Reader, w io.Writer) (bool, error) {
	fmt.Fprint(w, "Apply credit backfill? Type YES to confirm: ")
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "YES"), nil
}
