// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package outline

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/review-engine/pkg/types"
)

// outlinePromptTmpl asks for a Markdown heading plan over the numbered item
// list. The numbering is what "Sources:" lines refer back to.
var outlinePromptTmpl = template.Must(template.New("outline").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`You are a medical writing expert planning a narrative review article.

Topic: {{.Topic}}

Available literature ({{len .Items}} items, ranked by relevance):
{{range $i, $it := .Items}}[{{inc $i}}] {{$it.Title}}{{if $it.Journal}} ({{$it.Journal}}{{if $it.Year}}, {{$it.Year}}{{end}}){{end}}
{{end}}
Produce the outline of the review as Markdown:
- One "#" line with the review title.
- "##" lines for main sections, "###" lines for subsections. Nest one level at a time.
- Append a word-count suggestion to each heading, e.g. "## Mechanisms of Action (~800 words)".
- Under each heading, one sentence of guidance for the section author.
- Under each heading, a line "Sources: [n], [m]" listing the item numbers the section should draw on.
- Cover introduction, the main themes in the literature, limitations, and conclusions.
{{if .Strict}}
Output ONLY the Markdown outline in exactly the format above. No preamble,
no code fences, no commentary. Every heading line must start with "#".
{{end}}`))

type outlinePromptData struct {
	Topic  string
	Items  []types.ScoredItem
	Strict bool
}

// buildOutlinePrompt renders the outline prompt; strict adds the
// format-enforcing tail used on the retry after a parse failure.
func buildOutlinePrompt(topic string, items []types.ScoredItem, strict bool) (string, error) {
	var buf strings.Builder
	if err := outlinePromptTmpl.Execute(&buf, outlinePromptData{Topic: topic, Items: items, Strict: strict}); err != nil {
		return "", fmt.Errorf("building outline prompt: %w", err)
	}
	return buf.String(), nil
}
