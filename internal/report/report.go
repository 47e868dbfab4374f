// Package report renders the end-of-run summary.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/specialistvlad/buildgridgo/internal/dag"
	"github.com/specialistvlad/buildgridgo/internal/localexecutor"
	"github.com/specialistvlad/buildgridgo/internal/runner"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
)

func stateStyle(s dag.State) lipgloss.Style {
	switch s {
	case dag.Done:
		return okStyle
	case dag.Failed:
		return failStyle
	case dag.Skipped, dag.Pending:
		return dimStyle
	}
	return lipgloss.NewStyle()
}

// Summary writes a table of node states followed by the outcome of the run.
// A failed step adds its log path and the last lines of its output.
func Summary(w io.Writer, res *localexecutor.Result, runErr error) error {
	var b strings.Builder
	if res != nil {
		fmt.Fprintln(&b, titleStyle.Render(fmt.Sprintf("%s (%s): %s", res.Compose, res.Target, res.Phase)))

		ids := make([]string, 0, len(res.States))
		for id := range res.States {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(dimStyle).
			Headers("NODE", "STATE").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow || col == 0 || row < 0 || row >= len(ids) {
					return cellStyle
				}
				return cellStyle.Inherit(stateStyle(res.States[ids[row]]))
			})
		for _, id := range ids {
			t.Row(id, res.States[id].String())
		}
		fmt.Fprintln(&b, t.String())

		if len(res.Artifacts) > 0 {
			fmt.Fprintln(&b, dimStyle.Render(fmt.Sprintf("%d artifacts recorded", len(res.Artifacts))))
		}
		if res.ReleaseDir != "" {
			fmt.Fprintln(&b, okStyle.Render("Published "+res.ReleaseDir))
		}
	}

	if runErr != nil {
		fmt.Fprintln(&b, failStyle.Render("Build failed: "+runErr.Error()))
		var stepErr *runner.StepError
		if errors.As(runErr, &stepErr) {
			fmt.Fprintf(&b, "Log: %s\n", stepErr.LogPath)
			for _, line := range stepErr.Tail {
				fmt.Fprintln(&b, dimStyle.Render("  | "+line))
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
