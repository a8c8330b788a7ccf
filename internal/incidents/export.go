package incidents

import (
	"fmt"
	"strings"
	"time"

	"github.com/blamelessops/postmortem-tracker/internal/domain"
)

// RenderMarkdown renders an incident as a fixed-layout Markdown
// postmortem document. Timeline bullets appear in stored (sorted)
// order; action items render as GitHub-style checkboxes.
func RenderMarkdown(inc *domain.Incident, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Postmortem: %s\n\n", inc.Title)
	fmt.Fprintf(&b, "**Severity:** %s  \n", inc.Severity)
	fmt.Fprintf(&b, "**Status:** %s  \n", inc.Status)
	fmt.Fprintf(&b, "**Started:** %s  \n", inc.StartedAt.Format(time.RFC3339))
	if inc.ResolvedAt != nil {
		fmt.Fprintf(&b, "**Resolved:** %s  \n", inc.ResolvedAt.Format(time.RFC3339))
	}
	b.WriteString("\n")

	if len(inc.ServicesImpacted) > 0 {
		b.WriteString("## Services Impacted\n")
		for _, s := range inc.ServicesImpacted {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}

	if inc.Summary != "" {
		b.WriteString("## Summary\n")
		b.WriteString(inc.Summary)
		b.WriteString("\n\n")
	}

	if len(inc.Timeline) > 0 {
		b.WriteString("## Timeline\n")
		for _, e := range inc.Timeline {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", e.Timestamp.Format(time.RFC3339), e.Author, e.Description)
		}
		b.WriteString("\n")
	}

	if len(inc.ActionItems) > 0 {
		b.WriteString("## Action Items\n")
		for _, a := range inc.ActionItems {
			check := " "
			if a.Status == domain.ActionDone {
				check = "x"
			}
			due := ""
			if a.DueDate != nil {
				due = fmt.Sprintf(" (due %s)", a.DueDate.Format(time.RFC3339))
			}
			fmt.Fprintf(&b, "- [%s] %s — *%s*%s\n", check, a.Title, a.Owner, due)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	fmt.Fprintf(&b, "*Generated at %s*", now.Format(time.RFC3339))

	return b.String()
}
