package opcheck

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
)

// ReportOptions configure Report.
type ReportOptions struct {
	// Verbose lists every case. Otherwise only the cases that didn't pass are listed.
	Verbose bool

	// Diagnostics prints the diagnostic of each case that Failed or Errored below the table.
	Diagnostics bool
}

// reportStyles are created from a renderer for the report's writer, so colors are only used if the
// writer supports them.
type reportStyles struct {
	header, odd, even, red, title lipgloss.Style
	border                        lipgloss.Style
}

func newReportStyles(w io.Writer) *reportStyles {
	renderer := lipgloss.NewRenderer(w)
	renderer.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
	return &reportStyles{
		header: renderer.NewStyle().Reverse(true).Padding(0, 2, 0, 2).Align(lipgloss.Center),
		odd:    renderer.NewStyle().Faint(false).PaddingLeft(1).PaddingRight(1),
		even:   renderer.NewStyle().Faint(true).PaddingLeft(1).PaddingRight(1),
		red: renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).Bold(true).
			PaddingLeft(1).PaddingRight(1),
		title:  renderer.NewStyle().Bold(true),
		border: renderer.NewStyle().Foreground(lipgloss.Color("99")),
	}
}

// Report writes a table with the results of the summary: failing rows in red, followed by the counts.
func Report(w io.Writer, summary *Summary, opts ReportOptions) error {
	styles := newReportStyles(w)
	reds := make(map[int]bool)
	alignments := []lipgloss.Position{lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Center, lipgloss.Right,
		lipgloss.Right, lipgloss.Right}
	table := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.border).
		Headers("#", "Operator", "Parameters", "State", "Inputs", "Time", "Mismatches").
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return styles.header
			case reds[row]:
				s = styles.red
			case row%2 == 0:
				s = styles.odd
			default:
				s = styles.even
			}
			return s.Align(alignments[min(col, len(alignments)-1)])
		})
	numRows := 0
	for _, r := range summary.Results {
		if !opts.Verbose && (r.State == StatePassed || r.State == StateSkipped) {
			continue
		}
		if r.State == StateFailed || r.State == StateErrored {
			reds[numRows] = true
		}
		var inputBytes uintptr
		for _, input := range r.Record.Inputs {
			if input.Shape.Validate() == nil {
				inputBytes += input.Shape.Memory()
			}
		}
		table.Row(strconv.Itoa(r.Record.Index), r.Record.Operator, r.Record.Label(), r.State.String(),
			humanize.IBytes(uint64(inputBytes)), r.Duration.Round(time.Microsecond).String(), mismatches(r))
		numRows++
	}

	if _, err := fmt.Fprintln(w, styles.title.Render(fmt.Sprintf("Suite %q (run %s)", summary.Suite, summary.RunID))); err != nil {
		return errors.Wrap(err, "writing report")
	}
	if numRows > 0 {
		if _, err := fmt.Fprintln(w, table.Render()); err != nil {
			return errors.Wrap(err, "writing report")
		}
	}
	if opts.Diagnostics {
		for _, r := range summary.Results {
			if r.State != StateFailed && r.State != StateErrored {
				continue
			}
			if _, err := fmt.Fprintf(w, "%s %s\n%s\n", r.Record.Name, r.Record.Label(), r.Diagnostic()); err != nil {
				return errors.Wrap(err, "writing report")
			}
		}
	}
	line := fmt.Sprintf("%s cases: %s passed, %s failed, %s skipped, %s errored in %s",
		humanize.Comma(int64(summary.Total())), humanize.Comma(int64(summary.Passed)),
		humanize.Comma(int64(summary.Failed)), humanize.Comma(int64(summary.Skipped)),
		humanize.Comma(int64(summary.Errored)), summary.Duration.Round(time.Millisecond))
	if !summary.OK() {
		line = styles.red.Render(line)
	}
	_, err := fmt.Fprintln(w, line)
	return errors.Wrap(err, "writing report")
}

// mismatches column: number of mismatching elements of outputs (and gradients).
func mismatches(r *CaseResult) string {
	if r.Outputs == nil {
		return "-"
	}
	if r.Outputs.Structural != nil {
		return "structure"
	}
	s := humanize.Comma(int64(r.Outputs.NumMismatches))
	if r.Gradients != nil {
		if r.Gradients.Structural != nil {
			s += " / structure"
		} else {
			s += " / " + humanize.Comma(int64(r.Gradients.NumMismatches))
		}
	}
	return s
}
