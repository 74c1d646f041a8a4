package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"litchat/internal/core"
	"litchat/internal/models"
	"litchat/internal/util"
)

const arxivBaseURL = "http://export.arxiv.org/api/query"

// ArxivClient searches the arXiv Atom API.
type ArxivClient struct {
	baseURL string
	client  *http.Client
}

func NewArxivClient() *ArxivClient {
	return &ArxivClient{
		baseURL: arxivBaseURL,
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *ArxivClient) Name() string { return "arxiv" }

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
	Links     []atomLink   `xml:"link"`
	DOI       string       `xml:"doi"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

func (c *ArxivClient) Search(ctx context.Context, query string, limit int) ([]models.Paper, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("search_query", "all:"+query)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(limit))
	q.Set("sortBy", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build arxiv request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: arxiv: %v", core.ErrUpstreamAPI, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: arxiv status %d: %s", core.ErrUpstreamAPI, resp.StatusCode, string(body))
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("%w: decode arxiv feed: %v", core.ErrUpstreamAPI, err)
	}

	papers := make([]models.Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		papers = append(papers, entryToPaper(e))
	}
	return papers, nil
}

func entryToPaper(e atomEntry) models.Paper {
	// Entry id looks like http://arxiv.org/abs/2301.12345v2.
	rawID := e.ID
	if i := strings.LastIndex(rawID, "/abs/"); i >= 0 {
		rawID = rawID[i+len("/abs/"):]
	}
	if i := strings.LastIndex(rawID, "v"); i > 0 {
		if _, err := strconv.Atoi(rawID[i+1:]); err == nil {
			rawID = rawID[:i]
		}
	}

	p := models.Paper{
		PaperID:  "arxiv:" + rawID,
		Source:   "arxiv",
		Title:    util.SanitizeText(collapseSpace(e.Title)),
		Abstract: util.SanitizeText(collapseSpace(e.Summary)),
		DOI:      e.DOI,
		Status:   "discovered",
	}
	for _, a := range e.Authors {
		if a.Name != "" {
			p.Authors = append(p.Authors, a.Name)
		}
	}
	if len(e.Published) >= 4 {
		if y, err := strconv.Atoi(e.Published[:4]); err == nil {
			p.Year = &y
		}
	}
	for _, l := range e.Links {
		if l.Type == "application/pdf" || (l.Rel == "alternate" && p.URL == "") {
			p.URL = l.Href
		}
	}
	if p.URL == "" {
		p.URL = e.ID
	}
	return p
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
