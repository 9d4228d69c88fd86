package prompt

import (
	"strings"

	"github.com/poiesic/kbassist/core"
)

const (
	// NoDocumentsMarker is the context sent when nothing was retrieved or nothing fits.
	NoDocumentsMarker = "No relevant documents found in the knowledge base."

	// DefaultSystemPrompt is the system instruction used when none is configured.
	DefaultSystemPrompt = "You are a helpful enterprise knowledge assistant. Answer questions based on the provided context and company policies. If you cannot find relevant information in the context, say so clearly."

	// BlockSeparator joins formatted blocks.
	BlockSeparator = "\n\n"

	defaultDepartment = "General"
)

// FormatBlock renders one fragment as a labeled block.
func FormatBlock(f core.Fragment) string {
	heading, source := labels(f)
	department := strings.TrimSpace(f.Origin)
	if department == "" {
		department = defaultDepartment
	}

	var b strings.Builder
	b.WriteString("**")
	b.WriteString(heading)
	b.WriteString(" - ")
	b.WriteString(f.Title)
	b.WriteString("**\nSource: ")
	b.WriteString(source)
	b.WriteString("\nDepartment: ")
	b.WriteString(department)
	b.WriteString("\nContent: ")
	b.WriteString(f.Content)
	return b.String()
}

func labels(f core.Fragment) (heading, source string) {
	switch {
	case f.Kind == core.SourceLexical && f.Authoritative:
		return "Company Policy", "Admin Knowledge"
	case f.Kind == core.SourceLexical:
		return "Knowledge Document", "Confluence"
	default:
		return "Knowledge Document", "Vector Search"
	}
}
