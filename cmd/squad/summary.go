package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/squadworks/squad/internal/artifacts"
	"github.com/squadworks/squad/pkg/models"
)

var (
	approvedColor   = lipgloss.Color("#4CAF50")
	bestEffortColor = lipgloss.Color("#FFB020")
	labelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Width(12)
)

// renderSummary formats a finished run for the terminal.
func renderSummary(run *models.PipelineRun, paths *artifacts.Paths) string {
	color := bestEffortColor
	if run.Approved {
		color = approvedColor
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(color).
		Render(run.Status.Label())

	rows := []string{
		row("Run", run.ID),
		row("Cycles", fmt.Sprintf("%d / %d", run.CyclesExecuted, run.MaxReviewCycles)),
		row("Transcript", paths.Transcript),
		row("Infra", paths.Infra),
		row("Script", paths.Script),
	}
	if n := len(run.Validations); n > 0 && !run.Validations[n-1].Passed {
		for _, f := range run.Validations[n-1].Failures {
			rows = append(rows, row("Unresolved", f.Message))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1).
		Render(head + "\n" + strings.Join(rows, "\n"))
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}
