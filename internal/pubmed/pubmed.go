// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pubmed implements the retrieval Source against NCBI E-utilities.
// A page is resolved in two calls: esearch returns the PMIDs and total match
// count for one (offset, limit) window, efetch returns the article records
// for those PMIDs. Records stay opaque XML fragments; only the normalizer
// looks inside.
package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/review-engine/internal/retrieval"
	"github.com/pdiddy/review-engine/pkg/types"
)

// E-utilities endpoints. Declared as vars so tests can substitute an
// httptest server.
var (
	esearchBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	efetchBase  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
)

const toolName = "review-engine"

// Client queries PubMed. It satisfies retrieval.Source.
type Client struct {
	HTTP *http.Client
	Cfg  types.RetrievalConfig
}

// New returns a PubMed client honoring the configured HTTP timeout.
func New(cfg types.RetrievalConfig) *Client {
	return &Client{
		HTTP: &http.Client{Timeout: cfg.Timeout},
		Cfg:  cfg,
	}
}

// Name returns the source identifier.
func (c *Client) Name() string { return "pubmed" }

// esearchResponse is the JSON envelope of esearch.fcgi.
type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// FetchPage returns the records for one page window plus the source-reported
// total. An HTTP 429 from either E-utilities call surfaces as
// retrieval.ErrThrottled so the engine can back off.
func (c *Client) FetchPage(ctx context.Context, expression string, offset, limit int) ([]types.RawRecord, int, error) {
	pmids, total, err := c.esearch(ctx, expression, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	if len(pmids) == 0 {
		return nil, total, nil
	}

	byID, err := c.efetch(ctx, pmids)
	if err != nil {
		return nil, 0, err
	}

	// Emit in esearch order: that is the source's relevance ranking, and
	// efetch does not guarantee it.
	var records []types.RawRecord
	for _, pmid := range pmids {
		if rec, ok := byID[pmid]; ok {
			records = append(records, rec)
		}
	}
	return records, total, nil
}

// esearch resolves one window of PMIDs and the total match count.
func (c *Client) esearch(ctx context.Context, expression string, offset, limit int) ([]string, int, error) {
	params := url.Values{
		"db":       {"pubmed"},
		"term":     {expression},
		"retstart": {strconv.Itoa(offset)},
		"retmax":   {strconv.Itoa(limit)},
		"retmode":  {"json"},
		"tool":     {toolName},
	}
	if c.Cfg.APIKey != "" {
		params.Set("api_key", c.Cfg.APIKey)
	}

	body, err := c.get(ctx, esearchBase, params)
	if err != nil {
		return nil, 0, fmt.Errorf("esearch: %w", err)
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("parsing esearch response: %w", err)
	}
	total, err := strconv.Atoi(resp.Result.Count)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing esearch count %q: %w", resp.Result.Count, err)
	}
	return resp.Result.IDList, total, nil
}

// articleSet captures each PubmedArticle element's inner XML so records stay
// opaque payloads downstream.
type articleSet struct {
	Articles []struct {
		Inner []byte `xml:",innerxml"`
	} `xml:"PubmedArticle"`
}

// pmidProbe pulls just the PMID out of one record payload.
type pmidProbe struct {
	PMID string `xml:"MedlineCitation>PMID"`
}

// efetch fetches full records for the PMIDs, keyed by PMID.
func (c *Client) efetch(ctx context.Context, pmids []string) (map[string]types.RawRecord, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
		"tool":    {toolName},
	}
	if c.Cfg.APIKey != "" {
		params.Set("api_key", c.Cfg.APIKey)
	}

	body, err := c.get(ctx, efetchBase, params)
	if err != nil {
		return nil, fmt.Errorf("efetch: %w", err)
	}

	var set articleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parsing efetch response: %w", err)
	}

	records := make(map[string]types.RawRecord, len(set.Articles))
	for _, a := range set.Articles {
		payload := append([]byte("<PubmedArticle>"), a.Inner...)
		payload = append(payload, []byte("</PubmedArticle>")...)

		var probe pmidProbe
		if err := xml.Unmarshal(payload, &probe); err != nil || probe.PMID == "" {
			// A record with no readable PMID cannot be addressed; skip it
			// here, the normalizer counts malformed payloads.
			continue
		}
		records[probe.PMID] = types.RawRecord{ID: probe.PMID, Payload: payload}
	}
	return records, nil
}

// get performs one E-utilities GET, translating HTTP 429 into the engine's
// throttling signal.
func (c *Client) get(ctx context.Context, base string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.Cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.Cfg.UserAgent)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("HTTP 429: %w", retrieval.ErrThrottled)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}
