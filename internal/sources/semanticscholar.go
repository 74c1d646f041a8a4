package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"litchat/internal/core"
	"litchat/internal/models"
	"litchat/internal/util"
)

const s2BaseURL = "https://api.semanticscholar.org/graph/v1/paper/search"

// SemanticScholarClient searches the Semantic Scholar Graph API. An API key
// is optional; without one the shared rate limit applies.
type SemanticScholarClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewSemanticScholarClient() *SemanticScholarClient {
	return &SemanticScholarClient{
		baseURL: s2BaseURL,
		apiKey:  os.Getenv("LITCHAT_S2_API_KEY"),
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *SemanticScholarClient) Name() string { return "semanticscholar" }

type s2SearchResponse struct {
	Data []s2Paper `json:"data"`
}

type s2Paper struct {
	PaperID    string `json:"paperId"`
	Title      string `json:"title"`
	Abstract   string `json:"abstract"`
	Year       *int   `json:"year"`
	URL        string `json:"url"`
	Venue      string `json:"venue"`
	ExternalID struct {
		DOI string `json:"DOI"`
	} `json:"externalIds"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

func (c *SemanticScholarClient) Search(ctx context.Context, query string, limit int) ([]models.Paper, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", "title,abstract,year,url,venue,externalIds,authors")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build semantic scholar request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: semanticscholar: %v", core.ErrUpstreamAPI, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: semanticscholar status %d: %s", core.ErrUpstreamAPI, resp.StatusCode, string(body))
	}

	var parsed s2SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode semanticscholar response: %v", core.ErrUpstreamAPI, err)
	}

	papers := make([]models.Paper, 0, len(parsed.Data))
	for _, sp := range parsed.Data {
		p := models.Paper{
			PaperID:  "s2:" + sp.PaperID,
			Source:   "semanticscholar",
			Title:    util.SanitizeText(sp.Title),
			Abstract: util.SanitizeText(sp.Abstract),
			Year:     sp.Year,
			URL:      sp.URL,
			Venue:    sp.Venue,
			DOI:      sp.ExternalID.DOI,
			Status:   "discovered",
		}
		for _, a := range sp.Authors {
			if a.Name != "" {
				p.Authors = append(p.Authors, a.Name)
			}
		}
		papers = append(papers, p)
	}
	return papers, nil
}
