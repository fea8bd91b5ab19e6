package tui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/muesli/termenv"

	"github.com/aretw0/lockstep/pkg/domain"
)

// PrintSummary writes a one-line verdict for the run.
func PrintSummary(w io.Writer, p termenv.Profile, r domain.Report) {
	verdict := p.String(" PASS ").Foreground(p.Color("#0f172a")).Background(p.Color("#4ade80")).Bold()
	detail := "all milestones reached"
	if r.ExitCode != 0 {
		verdict = p.String(" FAIL ").Foreground(p.Color("#0f172a")).Background(p.Color("#f87171")).Bold()
		detail = string(r.Failure)
	}
	faint := p.String(fmt.Sprintf("run %s in %s", r.RunID, r.Duration.Round(time.Millisecond))).Faint()

	fmt.Fprintf(w, "%s %s (%s)\n", verdict, detail, faint)
}

// ReportMarkdown formats a run report as a markdown document.
func ReportMarkdown(r domain.Report) string {
	var sb strings.Builder

	result := "PASS"
	if r.ExitCode != 0 {
		result = "FAIL"
	}
	fmt.Fprintf(&sb, "# Lock contention run %s\n\n", r.RunID)
	fmt.Fprintf(&sb, "**Result:** %s (`%s`, exit code %d) in %s\n\n", result, r.Failure, r.ExitCode, r.Duration.Round(time.Millisecond))

	sb.WriteString("| Milestone | Reached |\n|---|---|\n")
	for _, m := range domain.Milestones {
		mark := "no"
		if r.State.Milestones[m] {
			mark = "yes"
		}
		fmt.Fprintf(&sb, "| `%s` | %s |\n", m, mark)
	}

	if len(r.Errors) > 0 {
		sb.WriteString("\n## Errors\n\n")
		roles := make([]string, 0, len(r.Errors))
		for role := range r.Errors {
			roles = append(roles, string(role))
		}
		sort.Strings(roles)
		for _, role := range roles {
			fmt.Fprintf(&sb, "- **%s**: %s\n", role, r.Errors[domain.Role(role)])
		}
	}

	if len(r.TimedOut) > 0 {
		names := make([]string, len(r.TimedOut))
		for i, role := range r.TimedOut {
			names[i] = string(role)
		}
		fmt.Fprintf(&sb, "\nWatchdog fired for: %s\n", strings.Join(names, ", "))
	}
	return sb.String()
}
