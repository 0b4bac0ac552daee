// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize parses raw PubMed records into the canonical
// LiteratureItem shape at the retrieval boundary, so no untyped payload
// travels past this stage. A malformed record is dropped and counted, never
// silently discarded, and never aborts its batch.
package normalize

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/review-engine/pkg/types"
)

// MalformedRecordError reports one record that could not be normalized.
type MalformedRecordError struct {
	// ID is the record's source identifier, when known.
	ID string

	// Reason describes what was wrong.
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("malformed record: %s", e.Reason)
	}
	return fmt.Sprintf("malformed record %s: %s", e.ID, e.Reason)
}

// studyTypePriority ranks PubMed publication types from most to least
// specific. The highest-ranked type present becomes the item's study-type
// tag; generic types like "Journal Article" are not study designs and leave
// the tag unset.
var studyTypePriority = []string{
	"Meta-Analysis",
	"Systematic Review",
	"Randomized Controlled Trial",
	"Clinical Trial",
	"Observational Study",
	"Case Reports",
	"Review",
}

// medlineDateYear extracts the leading year from a MedlineDate value like
// "2019 Nov-Dec" or "2018-2019".
var medlineDateYear = regexp.MustCompile(`\b(1[89]\d{2}|2\d{3})\b`)

// pubmedArticle mirrors the slice of the PubMed DTD the normalizer needs.
type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Journal struct {
				ISSN         string `xml:"ISSN"`
				Title        string `xml:"Title"`
				JournalIssue struct {
					PubDate struct {
						Year        string `xml:"Year"`
						MedlineDate string `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			ArticleTitle string `xml:"ArticleTitle"`
			Abstract     struct {
				Sections []struct {
					Label string `xml:"Label,attr"`
					Text  string `xml:",chardata"`
				} `xml:"AbstractText"`
			} `xml:"Abstract"`
			AuthorList struct {
				Authors []struct {
					LastName       string `xml:"LastName"`
					Initials       string `xml:"Initials"`
					CollectiveName string `xml:"CollectiveName"`
				} `xml:"Author"`
			} `xml:"AuthorList"`
			ELocationIDs []struct {
				EIdType string `xml:"EIdType,attr"`
				Value   string `xml:",chardata"`
			} `xml:"ELocationID"`
			PublicationTypeList struct {
				Types []string `xml:"PublicationType"`
			} `xml:"PublicationTypeList"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs []struct {
			IDType string `xml:"IdType,attr"`
			Value  string `xml:",chardata"`
		} `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

// Record normalizes one raw record. Optional fields (DOI, study type, ISSN,
// year) are left unset when the source omits them, never defaulted to a
// sentinel.
func Record(raw types.RawRecord, strategy types.QueryStrategy) (types.LiteratureItem, error) {
	var a pubmedArticle
	if err := xml.Unmarshal(raw.Payload, &a); err != nil {
		return types.LiteratureItem{}, &MalformedRecordError{ID: raw.ID, Reason: fmt.Sprintf("unparseable XML: %v", err)}
	}

	pmid := strings.TrimSpace(a.MedlineCitation.PMID)
	if pmid == "" {
		pmid = raw.ID
	}
	if pmid == "" {
		return types.LiteratureItem{}, &MalformedRecordError{Reason: "missing PMID"}
	}

	title := collapseSpace(a.MedlineCitation.Article.ArticleTitle)
	if title == "" {
		return types.LiteratureItem{}, &MalformedRecordError{ID: pmid, Reason: "missing article title"}
	}

	item := types.LiteratureItem{
		ID:       pmid,
		Title:    title,
		Journal:  collapseSpace(a.MedlineCitation.Article.Journal.Title),
		ISSN:     strings.TrimSpace(a.MedlineCitation.Article.Journal.ISSN),
		Abstract: joinAbstract(a),
		DOI:      extractDOI(a),
		Strategy: strategy,
	}

	for _, au := range a.MedlineCitation.Article.AuthorList.Authors {
		switch {
		case au.CollectiveName != "":
			item.Authors = append(item.Authors, collapseSpace(au.CollectiveName))
		case au.LastName != "":
			name := au.LastName
			if au.Initials != "" {
				name += " " + au.Initials
			}
			item.Authors = append(item.Authors, collapseSpace(name))
		}
	}

	pubDate := a.MedlineCitation.Article.Journal.JournalIssue.PubDate
	if y := strings.TrimSpace(pubDate.Year); y != "" {
		if year, err := strconv.Atoi(y); err == nil {
			item.Year = year
		}
	} else if m := medlineDateYear.FindString(pubDate.MedlineDate); m != "" {
		item.Year, _ = strconv.Atoi(m)
	}

	item.StudyType = pickStudyType(a.MedlineCitation.Article.PublicationTypeList.Types)

	return item, nil
}

// Batch normalizes a record sequence, dropping and counting malformed
// records. Warnings go to w.
func Batch(records []types.RawRecord, strategy types.QueryStrategy, w io.Writer) ([]types.LiteratureItem, int) {
	items := make([]types.LiteratureItem, 0, len(records))
	dropped := 0
	for _, raw := range records {
		item, err := Record(raw, strategy)
		if err != nil {
			fmt.Fprintf(w, "warning: dropping record: %v\n", err)
			dropped++
			continue
		}
		items = append(items, item)
	}
	return items, dropped
}

// joinAbstract concatenates labeled abstract sections in order.
func joinAbstract(a pubmedArticle) string {
	var parts []string
	for _, sec := range a.MedlineCitation.Article.Abstract.Sections {
		text := collapseSpace(sec.Text)
		if text == "" {
			continue
		}
		if label := strings.TrimSpace(sec.Label); label != "" {
			text = label + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// extractDOI prefers the Article's ELocationID, falling back to the
// PubmedData article-ID list.
func extractDOI(a pubmedArticle) string {
	for _, loc := range a.MedlineCitation.Article.ELocationIDs {
		if strings.EqualFold(loc.EIdType, "doi") {
			if doi := strings.TrimSpace(loc.Value); doi != "" {
				return doi
			}
		}
	}
	for _, id := range a.PubmedData.ArticleIDs {
		if strings.EqualFold(id.IDType, "doi") {
			if doi := strings.TrimSpace(id.Value); doi != "" {
				return doi
			}
		}
	}
	return ""
}

// pickStudyType returns the highest-priority study design present.
func pickStudyType(pubTypes []string) string {
	present := make(map[string]bool, len(pubTypes))
	for _, pt := range pubTypes {
		present[collapseSpace(pt)] = true
	}
	for _, candidate := range studyTypePriority {
		if present[candidate] {
			return candidate
		}
	}
	return ""
}

// collapseSpace trims and collapses internal whitespace.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
