// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package intent

import (
	"bytes"
	"text/template"
)

// mappingPromptTmpl asks the language service to translate a colloquial topic
// into MeSH headings plus any filter constraints the user expressed. The
// response contract mirrors SearchIntent so parsing stays mechanical.
var mappingPromptTmpl = template.Must(template.New("mapping").Parse(`You are a medical literature search expert. Analyze the research topic below and produce PubMed search vocabulary and filter criteria.

Rules:
- Translate colloquial phrases into standard MeSH (Medical Subject Headings) terms.
- Order terms from most to least central to the topic.
- Give each term a confidence between 0.0 and 1.0.
- Also provide plain keywords suitable for a Title/Abstract fallback search.
- Only set filters the topic explicitly asks for (publication years, study types, language, impact factor bounds, CAS zones 1-4, JCR quartiles Q1-Q4). Leave unrequested filters at their zero value.
- Study types must be valid PubMed publication types, e.g. "Randomized Controlled Trial", "Meta-Analysis", "Systematic Review", "Clinical Trial".

Respond with a single JSON object and no other text:
{"terms": [{"term": "...", "confidence": 0.9}], "keywords": ["..."], "year_start": 0, "year_end": 0, "language": "", "study_types": [], "min_impact_factor": 0, "max_impact_factor": 0, "cas_zones": [], "jcr_quartiles": []}
{{if .LangHint}}
Preferred result language: {{.LangHint}}
{{end}}
Research topic:
{{.Topic}}
`))

// buildMappingPrompt renders the term-mapping prompt for one topic.
func buildMappingPrompt(topic, langHint string) string {
	var buf bytes.Buffer
	// Template execution over a flat struct cannot fail at runtime.
	_ = mappingPromptTmpl.Execute(&buf, struct{ Topic, LangHint string }{Topic: topic, LangHint: langHint})
	return buf.String()
}
