package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"hotfolder/internal/models"
)

const (
	maxJobNameWidth = 50
	maxListedFiles  = 5
	filesWhenFolded = 3
	fileIndent      = "             "
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	statusColors = map[models.JobStatus]lipgloss.Color{
		models.JobStatusPending:   lipgloss.Color("3"),
		models.JobStatusRunning:   lipgloss.Color("6"),
		models.JobStatusSucceeded: lipgloss.Color("2"),
		models.JobStatusFailed:    lipgloss.Color("1"),
	}
	summaryOrder = []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusRunning,
		models.JobStatusSucceeded,
		models.JobStatusFailed,
	}
)

// Snapshot is everything one frame of the monitor shows.
type Snapshot struct {
	Jobs      []models.JobRecord
	Err       error
	StatePath string
	Interval  time.Duration
	Now       time.Time
}

func statusStyle(s models.JobStatus) lipgloss.Style {
	style := lipgloss.NewStyle()
	if c, ok := statusColors[s]; ok {
		style = style.Foreground(c)
	}
	return style
}

// Render draws a snapshot as plain lines, colored when the terminal supports it.
func Render(s Snapshot) string {
	var b strings.Builder

	b.WriteString("\n  " + titleStyle.Render("Agents Monitor"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %s  (refreshing every %s)", s.Now.Format("15:04:05"), s.Interval)))
	b.WriteString("\n\n")

	if s.Err != nil {
		b.WriteString("  " + errStyle.Render("Cannot read state file: "+s.Err.Error()) + "\n\n")
	}

	if len(s.Jobs) == 0 {
		b.WriteString(dimStyle.Render("  No jobs in state file.") + "\n\n")
		b.WriteString(dimStyle.Render("  State file: "+s.StatePath) + "\n")
		return b.String()
	}

	header := fmt.Sprintf("  %-12s %-52s %-6s %s", "STATUS", "JOB", "FILES", "SUBMITTED")
	b.WriteString(dimStyle.Render(header) + "\n")
	b.WriteString(dimStyle.Render("  "+strings.Repeat("─", 90)) + "\n")

	for _, job := range s.Jobs {
		status := statusStyle(job.Status).Width(12).Render(string(job.Status))
		fmt.Fprintf(&b, "  %s %-52s %-6d %s\n", status, TruncateJobName(job.JobName), len(job.Files), TimeAgo(job.SubmittedTime(), s.Now))
		for _, line := range FileLines(job.Files) {
			b.WriteString(dimStyle.Render(fileIndent+line) + "\n")
		}
	}
	b.WriteString("\n")

	counts := models.StatusCounts(s.Jobs)
	var parts []string
	for _, st := range summaryOrder {
		if n := counts[st]; n > 0 {
			parts = append(parts, statusStyle(st).Render(fmt.Sprintf("%d %s", n, st)))
		}
	}
	b.WriteString("  " + strings.Join(parts, "  ") + "\n")
	b.WriteString("\n" + dimStyle.Render("  State file: "+s.StatePath) + "\n")
	return b.String()
}

// TruncateJobName keeps the tail of long job names, which is where they differ.
func TruncateJobName(name string) string {
	r := []rune(name)
	if len(r) <= maxJobNameWidth {
		return name
	}
	return "…" + string(r[len(r)-(maxJobNameWidth-1):])
}

// FileLines lists a job's files, folding long lists to the first few.
func FileLines(files []string) []string {
	if len(files) <= maxListedFiles {
		return files
	}
	lines := append([]string{}, files[:filesWhenFolded]...)
	return append(lines, fmt.Sprintf("... and %d more", len(files)-filesWhenFolded))
}

// TimeAgo renders the age of t relative to now in minutes, hours and days.
func TimeAgo(t, now time.Time) string {
	mins := int(now.Sub(t) / time.Minute)
	if mins < 1 {
		return "just now"
	}
	if mins < 60 {
		return fmt.Sprintf("%dm ago", mins)
	}
	hours := mins / 60
	if hours < 24 {
		return fmt.Sprintf("%dh %dm ago", hours, mins%60)
	}
	return fmt.Sprintf("%dd %dh ago", hours/24, hours%24)
}
