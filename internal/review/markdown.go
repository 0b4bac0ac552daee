// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"fmt"
	"strings"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Markdown renders the assembled document: title, sections at their outline
// levels, and the consolidated reference list in AMA style.
func Markdown(doc *types.ReviewDocument) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n", doc.Title)
	for _, sec := range doc.Sections {
		fmt.Fprintf(&b, "\n%s %s\n\n%s\n", strings.Repeat("#", sec.Level+1), sec.Title, sec.Prose)
	}

	if len(doc.References) > 0 {
		b.WriteString("\n## References\n\n")
		for _, ref := range doc.References {
			fmt.Fprintf(&b, "%d. %s\n", ref.Number, FormatReference(ref.Item))
		}
	}
	return b.String()
}

// FormatReference renders one citation in AMA style: up to six authors then
// "et al", title, journal, year, DOI when present.
func FormatReference(item types.LiteratureItem) string {
	var parts []string

	authors := item.Authors
	if len(authors) > 6 {
		authors = append(append([]string{}, authors[:6]...), "et al")
	}
	if len(authors) > 0 {
		parts = append(parts, strings.Join(authors, ", ")+".")
	}

	title := strings.TrimSpace(item.Title)
	if !strings.HasSuffix(title, ".") {
		title += "."
	}
	parts = append(parts, title)

	if item.Journal != "" {
		journal := item.Journal
		if item.Year > 0 {
			journal = fmt.Sprintf("%s. %d", journal, item.Year)
		}
		parts = append(parts, journal+".")
	} else if item.Year > 0 {
		parts = append(parts, fmt.Sprintf("%d.", item.Year))
	}

	if item.DOI != "" {
		parts = append(parts, "doi:"+item.DOI)
	}
	return strings.Join(parts, " ")
}
