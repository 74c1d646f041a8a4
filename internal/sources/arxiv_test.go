package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const arxivFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <title>Attention Is All
      You Need</title>
    <summary>The dominant sequence transduction models...</summary>
    <published>2017-06-12T17:57:34Z</published>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
  </entry>
</feed>`

func TestArxivSearchParsesFeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "all:attention", r.URL.Query().Get("search_query"))
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(arxivFixture))
	}))
	defer ts.Close()

	c := NewArxivClient()
	c.baseURL = ts.URL

	papers, err := c.Search(context.Background(), "attention", 5)
	require.NoError(t, err)
	require.Len(t, papers, 1)

	p := papers[0]
	require.Equal(t, "arxiv:1706.03762", p.PaperID)
	require.Equal(t, "arxiv", p.Source)
	require.Equal(t, "Attention Is All You Need", p.Title)
	require.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, p.Authors)
	require.NotNil(t, p.Year)
	require.Equal(t, 2017, *p.Year)
	require.Equal(t, "http://arxiv.org/pdf/1706.03762v7", p.URL)
}

func TestArxivSearchUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewArxivClient()
	c.baseURL = ts.URL

	_, err := c.Search(context.Background(), "attention", 5)
	require.Error(t, err)
}

const s2Fixture = `{
  "data": [
    {
      "paperId": "0123456789abcdef0123456789abcdef01234567",
      "title": "A Paper",
      "abstract": "We do things.",
      "year": 2020,
      "url": "https://example.org/paper",
      "venue": "ICML",
      "externalIds": {"DOI": "10.1/abc"},
      "authors": [{"name": "Ada Lovelace"}]
    }
  ]
}`

func TestSemanticScholarSearchParsesResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "attention", r.URL.Query().Get("query"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(s2Fixture))
	}))
	defer ts.Close()

	c := NewSemanticScholarClient()
	c.baseURL = ts.URL

	papers, err := c.Search(context.Background(), "attention", 5)
	require.NoError(t, err)
	require.Len(t, papers, 1)

	p := papers[0]
	require.Equal(t, "s2:0123456789abcdef0123456789abcdef01234567", p.PaperID)
	require.Equal(t, "semanticscholar", p.Source)
	require.Equal(t, "A Paper", p.Title)
	require.Equal(t, "ICML", p.Venue)
	require.Equal(t, "10.1/abc", p.DOI)
	require.Equal(t, []string{"Ada Lovelace"}, p.Authors)
}
