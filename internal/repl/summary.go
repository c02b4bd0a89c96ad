package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/manash/clickgenius/internal/project"
)

// PrintSummaries writes a project table. The row matching currentID is
// marked; pass "" to mark none.
func PrintSummaries(w io.Writer, summaries []project.Summary, currentID string) {
	fmt.Fprintf(w, "  %-8s  %-24s  %-19s  %-10s  %s\n", "ID", "Name", "Updated", "Mode", "Versions")
	fmt.Fprintln(w, strings.Repeat("-", 78))

	for _, s := range summaries {
		marker := "  "
		if s.ID == currentID {
			marker = "> "
		}
		fmt.Fprintf(w, "%s%-8s  %-24s  %-19s  %-10s  %d\n",
			marker,
			s.ShortID(),
			truncate(s.Name, 24),
			project.FormatTimestamp(s.UpdatedAt),
			s.Mode,
			s.Versions)
	}
}
