// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SectionState tracks whether a review section was generated, substituted
// with a placeholder after generation failed, or skipped.
type SectionState string

const (
	SectionGenerated   SectionState = "generated"
	SectionPlaceholder SectionState = "placeholder"
)

// ReviewSection is one written section of the final document, bound to the
// outline node it was generated from.
type ReviewSection struct {
	// Title is the section heading.
	Title string `json:"title" yaml:"title"`

	// Level is the heading level copied from the outline node.
	Level int `json:"level" yaml:"level"`

	// Prose is the generated section text with bracketed reference numbers.
	Prose string `json:"prose" yaml:"prose"`

	// State records whether generation succeeded for this section.
	State SectionState `json:"state" yaml:"state"`

	// CitedIDs lists the literature identifiers cited by this section, in
	// first-citation order.
	CitedIDs []string `json:"cited_ids,omitempty" yaml:"cited_ids,omitempty"`
}

// Reference is one entry in the document's consolidated reference list.
type Reference struct {
	// Number is the 1-based reference number assigned at first citation.
	Number int `json:"number" yaml:"number"`

	// Item is the cited literature item.
	Item LiteratureItem `json:"item" yaml:"item"`
}

// ReviewDocument is the assembled review: sections in outline order plus a
// deduplicated reference list ordered by first citation occurrence. It is
// built incrementally by the review synthesizer and immutable once exported.
type ReviewDocument struct {
	// Title is the review title.
	Title string `json:"title" yaml:"title"`

	// Topic is the original user topic the review answers.
	Topic string `json:"topic" yaml:"topic"`

	// Sections lists the written sections in outline order.
	Sections []ReviewSection `json:"sections" yaml:"sections"`

	// References is the consolidated reference list. Citing the same item
	// from two sections yields one entry with one number.
	References []Reference `json:"references" yaml:"references"`

	// FailedSections counts sections that ended as placeholders.
	FailedSections int `json:"failed_sections,omitempty" yaml:"failed_sections,omitempty"`
}
