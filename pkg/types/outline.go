// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// OutlineNode is one heading in the generated review's structural plan.
// The tree is acyclic and every child's level is exactly the parent's
// level + 1; the outline synthesizer validates this before handing the
// tree downstream.
type OutlineNode struct {
	// Title is the heading text.
	Title string `json:"title" yaml:"title"`

	// Level is the nesting depth; top-level sections are level 1.
	Level int `json:"level" yaml:"level"`

	// WordCountHint is the suggested word count for the section's prose,
	// when the outline carries one. Zero means no suggestion.
	WordCountHint int `json:"word_count_hint,omitempty" yaml:"word_count_hint,omitempty"`

	// Guidance is free-form direction for the section's content, taken
	// from the text under the heading in the generated outline.
	Guidance string `json:"guidance,omitempty" yaml:"guidance,omitempty"`

	// ItemIDs references the literature items this section should draw on.
	ItemIDs []string `json:"item_ids,omitempty" yaml:"item_ids,omitempty"`

	// Children lists subsections in document order.
	Children []*OutlineNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// Walk visits the node and its descendants depth-first, pre-order. It stops
// early when fn returns false.
func (n *OutlineNode) Walk(fn func(*OutlineNode) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// Outline is the root of an outline tree together with the review title.
type Outline struct {
	// Title is the review's overall title.
	Title string `json:"title" yaml:"title"`

	// Sections lists the top-level sections in document order.
	Sections []*OutlineNode `json:"sections" yaml:"sections"`
}

// Flatten returns every node in document order (depth-first, pre-order).
func (o *Outline) Flatten() []*OutlineNode {
	var nodes []*OutlineNode
	for _, s := range o.Sections {
		s.Walk(func(n *OutlineNode) bool {
			nodes = append(nodes, n)
			return true
		})
	}
	return nodes
}
