package chains

import (
	"testing"

	"github.com/stretchr/testify/require"

	"litchat/internal/core"
	"litchat/internal/models"
)

func intPtr(n int) *int { return &n }

func fullPaper() models.Paper {
	return models.Paper{
		PaperID: "arxiv:2301.12345",
		Title:   "Attention Is All You Need",
		Authors: []string{"Ashish Vaswani", "Noam Shazeer"},
		Year:    intPtr(2017),
		Venue:   "NeurIPS",
		DOI:     "10.5555/3295222",
		URL:     "https://arxiv.org/abs/1706.03762",
	}
}

func TestFormatCitationAPA(t *testing.T) {
	out, err := FormatCitation(fullPaper(), StyleAPA)
	require.NoError(t, err)
	require.Contains(t, out, "Vaswani, A., & Shazeer, N. (2017).")
	require.Contains(t, out, "Attention Is All You Need.")
	require.Contains(t, out, "NeurIPS.")
}

func TestFormatCitationMLA(t *testing.T) {
	out, err := FormatCitation(fullPaper(), StyleMLA)
	require.NoError(t, err)
	require.Contains(t, out, "Vaswani, Ashish, and Noam Shazeer.")
	require.Contains(t, out, `"Attention Is All You Need."`)
	require.Contains(t, out, "2017.")
}

func TestFormatCitationTruncatesLongAuthorLists(t *testing.T) {
	p := fullPaper()
	p.Authors = []string{
		"Ashish Vaswani", "Noam Shazeer", "Niki Parmar", "Jakob Uszkoreit",
		"Llion Jones", "Aidan Gomez", "Lukasz Kaiser", "Illia Polosukhin",
	}

	apa, err := FormatCitation(p, StyleAPA)
	require.NoError(t, err)
	require.Contains(t, apa, "et al.")
	require.Contains(t, apa, "Gomez, A.")
	require.NotContains(t, apa, "Kaiser")

	mla, err := FormatCitation(p, StyleMLA)
	require.NoError(t, err)
	require.Contains(t, mla, "Vaswani, Ashish, et al.")
	require.NotContains(t, mla, "Shazeer")
}

func TestFormatCitationPlaceholders(t *testing.T) {
	out, err := FormatCitation(models.Paper{PaperID: "s2:abc"}, StyleAPA)
	require.NoError(t, err)
	require.Contains(t, out, "[Unknown author]")
	require.Contains(t, out, "(n.d.)")
	require.Contains(t, out, "[Untitled]")

	out, err = FormatCitation(models.Paper{PaperID: "s2:abc"}, StyleMLA)
	require.NoError(t, err)
	require.Contains(t, out, "[Unknown author]")
	require.Contains(t, out, "n.d.")
}

func TestParseCitationStyle(t *testing.T) {
	style, err := ParseCitationStyle("")
	require.NoError(t, err)
	require.Equal(t, StyleAPA, style)

	style, err = ParseCitationStyle("BibTeX")
	require.NoError(t, err)
	require.Equal(t, StyleBibTeX, style)

	_, err = ParseCitationStyle("chicago")
	require.Error(t, err)
	require.True(t, core.IsValidation(err))
}

func TestBibTeXRoundTrip(t *testing.T) {
	in := fullPaper()
	entry := FormatBibTeX(in)
	require.Contains(t, entry, "@article{arxiv_2301.12345,")

	out, err := ParseBibTeX(entry)
	require.NoError(t, err)
	require.Equal(t, in.Title, out.Title)
	require.Equal(t, in.Authors, out.Authors)
	require.Equal(t, *in.Year, *out.Year)
	require.Equal(t, in.Venue, out.Venue)
	require.Equal(t, in.DOI, out.DOI)
	require.Equal(t, in.URL, out.URL)
}

func TestBibTeXMissingFields(t *testing.T) {
	entry := FormatBibTeX(models.Paper{PaperID: "s2:abc"})
	require.Contains(t, entry, "title = {[Untitled]}")
	require.NotContains(t, entry, "author =")
	require.NotContains(t, entry, "year =")

	out, err := ParseBibTeX(entry)
	require.NoError(t, err)
	require.Empty(t, out.Title)
	require.Nil(t, out.Year)
}

func TestParseBibTeXRejectsGarbage(t *testing.T) {
	_, err := ParseBibTeX("not a bibtex entry")
	require.Error(t, err)
	require.True(t, core.IsValidation(err))
}
