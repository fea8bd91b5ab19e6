package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/observability"
)

const boardID = "board"

// GenerateSequence produces a Mermaid sequence diagram from a run transcript.
// It applies semantic arrows:
// - Token: note over the role that printed it (repeats are collapsed)
// - Milestone: solid arrow to the board
// - Failure: crossed arrow to the board
// - Watchdog: note over the role
func GenerateSequence(entries []observability.Entry) string {
	var sb strings.Builder
	sb.WriteString("sequenceDiagram\n")
	for _, role := range []domain.Role{domain.RoleFirstHolder, domain.RoleSecondContender} {
		sb.WriteString(fmt.Sprintf("    participant %s as %s\n", sanitizeMermaidID(string(role)), role))
		if role == domain.RoleFirstHolder {
			sb.WriteString(fmt.Sprintf("    participant %s as shared state\n", boardID))
		}
	}

	for i := 0; i < len(entries); i++ {
		e := entries[i]
		id := sanitizeMermaidID(string(e.Role))

		switch e.Kind {
		case domain.EventToken:
			// Collapse runs of the same token from the same role ("blocked" may repeat).
			n := 1
			for i+1 < len(entries) && entries[i+1].Kind == e.Kind && entries[i+1].Role == e.Role && entries[i+1].Detail == e.Detail {
				i++
				n++
			}
			label := escapeLabel(e.Detail)
			if n > 1 {
				label = fmt.Sprintf("%s x%d", label, n)
			}
			sb.WriteString(fmt.Sprintf("    Note over %s: %s\n", id, label))
		case domain.EventMilestone:
			sb.WriteString(fmt.Sprintf("    %s->>%s: %s\n", id, boardID, escapeLabel(e.Detail)))
		case domain.EventFailure:
			sb.WriteString(fmt.Sprintf("    %s-x%s: %s\n", id, boardID, escapeLabel(e.Detail)))
		case domain.EventWatchdog:
			sb.WriteString(fmt.Sprintf("    Note over %s: %s\n", id, escapeLabel(e.Detail)))
		}
	}
	return sb.String()
}

// escapeLabel keeps process output from breaking the diagram syntax.
func escapeLabel(s string) string {
	if s == "" {
		return "(empty)"
	}
	s = strings.ReplaceAll(s, ";", ",")
	s = strings.ReplaceAll(s, "#", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
