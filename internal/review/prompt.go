// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/review-engine/pkg/types"
)

// sectionPromptTmpl writes one section. Citation numbers in the prose refer
// to the numbered material list; assembly renumbers them document-wide.
var sectionPromptTmpl = template.Must(template.New("section").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`You are a medical writing expert drafting one section of a narrative review.

Review title: {{.DocTitle}}
Review topic: {{.Topic}}
Section heading: {{.Node.Title}}
{{if .Node.Guidance}}Section guidance: {{.Node.Guidance}}
{{end}}{{if .Node.WordCountHint}}Target length: about {{.Node.WordCountHint}} words.
{{end}}
{{if .Items}}Citation material:
{{range $i, $it := .Items}}[{{inc $i}}] {{$it.Title}}.{{if $it.Journal}} {{$it.Journal}}{{if $it.Year}}, {{$it.Year}}{{end}}.{{end}}{{if $it.Abstract}} {{$it.Abstract}}{{end}}
{{end}}
Cite evidence with bracketed numbers from the list above, e.g. "aspirin
reduced event rates [1,3]". Cite only numbers from the list.
{{else}}No citation material is available; write from the topic alone and do
not fabricate citations.
{{end}}
Write the section prose only: no heading, no reference list, no preamble.
Formal academic register, suitable for a peer-reviewed narrative review.`))

type sectionPromptData struct {
	Topic    string
	DocTitle string
	Node     *types.OutlineNode
	Items    []types.ScoredItem
}

// buildSectionPrompt renders the prompt for one outline node.
func buildSectionPrompt(topic, docTitle string, node *types.OutlineNode, items []types.ScoredItem) (string, error) {
	var buf strings.Builder
	err := sectionPromptTmpl.Execute(&buf, sectionPromptData{
		Topic:    topic,
		DocTitle: docTitle,
		Node:     node,
		Items:    items,
	})
	if err != nil {
		return "", fmt.Errorf("building section prompt: %w", err)
	}
	return buf.String(), nil
}
