package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modforge/porter/internal/taskgraph"
)

// Status styles
var (
	styleStatusRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	styleStatusCompleted = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	styleStatusFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	styleStatusPending = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	styleDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "RUNNING":
		return styleStatusRunning
	case "COMPLETED":
		return styleStatusCompleted
	case "FAILED":
		return styleStatusFailed
	default:
		return styleStatusPending
	}
}

func glyphFor(status string) string {
	switch status {
	case "COMPLETED":
		return "[+]"
	case "RUNNING":
		return "[>]"
	case "FAILED":
		return "[!]"
	default:
		return "[ ]"
	}
}

// renderTasks formats one line per task snapshot, colored by status.
func renderTasks(title string, snaps []taskgraph.Snapshot) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render(title))
	b.WriteString("\n")
	for _, s := range snaps {
		line := fmt.Sprintf("%s %-30s %-20s %s",
			glyphFor(s.Status), s.TaskID, s.AgentName,
			statusStyle(s.Status).Render(s.Status))
		if s.Error != nil {
			line += styleDim.Render("  " + *s.Error)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// renderPlan formats the static pipeline shape before any execution.
func renderPlan(snaps []taskgraph.Snapshot, order []string) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("Conversion plan"))
	b.WriteString("\n")
	for _, s := range snaps {
		deps := "-"
		if len(s.Dependencies) > 0 {
			deps = strings.Join(s.Dependencies, ", ")
		}
		b.WriteString(fmt.Sprintf("%-16s %-20s priority %d  %s\n",
			s.TaskID, s.AgentName, s.Priority,
			styleDim.Render("after: "+deps)))
	}
	b.WriteString(styleDim.Render("execution order: " + strings.Join(order, " -> ")))
	b.WriteString("\n")
	return b.String()
}

// renderStats formats completion statistics as a one-line summary.
func renderStats(stats taskgraph.CompletionStats) string {
	summary := fmt.Sprintf("%d/%d tasks completed, %d failed, %d pending (%.0f%%)",
		stats.CompletedTasks, stats.TotalTasks, stats.FailedTasks,
		stats.PendingTasks, stats.CompletionRate*100)
	if stats.FailedTasks > 0 {
		return styleStatusFailed.Render(summary)
	}
	if stats.PendingTasks > 0 {
		return styleStatusPending.Render(summary)
	}
	return styleStatusCompleted.Render(summary)
}
