package chains

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"litchat/internal/core"
	"litchat/internal/models"
)

type CitationStyle string

const (
	StyleAPA    CitationStyle = "apa"
	StyleMLA    CitationStyle = "mla"
	StyleBibTeX CitationStyle = "bibtex"
)

const (
	placeholderTitle   = "[Untitled]"
	placeholderAuthors = "[Unknown author]"
	placeholderYear    = "n.d."
)

func ParseCitationStyle(s string) (CitationStyle, error) {
	switch CitationStyle(strings.ToLower(strings.TrimSpace(s))) {
	case StyleAPA, "":
		return StyleAPA, nil
	case StyleMLA:
		return StyleMLA, nil
	case StyleBibTeX:
		return StyleBibTeX, nil
	default:
		return "", core.NewValidationError("style", fmt.Sprintf("unknown style %q, expected apa, mla or bibtex", s))
	}
}

// FormatCitation renders a bibliography entry for one paper. Formatting is
// pure: missing fields become explicit placeholders, never fabricated
// values.
func FormatCitation(paper models.Paper, style CitationStyle) (string, error) {
	switch style {
	case StyleAPA:
		return formatAPA(paper), nil
	case StyleMLA:
		return formatMLA(paper), nil
	case StyleBibTeX:
		return FormatBibTeX(paper), nil
	default:
		return "", core.NewValidationError("style", fmt.Sprintf("unknown style %q", style))
	}
}

// Long author lists are truncated: APA keeps six names before "et al.",
// MLA keeps only the first once there are three or more.
const apaEtAlThreshold = 7

func formatAPA(p models.Paper) string {
	authors := placeholderAuthors
	if len(p.Authors) > 0 {
		names := p.Authors
		etAl := len(names) > apaEtAlThreshold
		if etAl {
			names = names[:apaEtAlThreshold-1]
		}
		parts := make([]string, 0, len(names))
		for _, a := range names {
			parts = append(parts, apaAuthor(a))
		}
		if etAl {
			authors = strings.Join(parts, ", ") + ", et al."
		} else {
			authors = joinAuthors(parts, "& ")
		}
	}
	title := p.Title
	if title == "" {
		title = placeholderTitle
	}
	out := fmt.Sprintf("%s (%s). %s.", authors, yearOrPlaceholder(p.Year), title)
	if p.Venue != "" {
		out += " " + p.Venue + "."
	}
	if p.URL != "" {
		out += " " + p.URL
	}
	return out
}

func formatMLA(p models.Paper) string {
	authors := placeholderAuthors
	switch {
	case len(p.Authors) >= 3:
		authors = mlaFirstAuthor(p.Authors[0]) + ", et al."
	case len(p.Authors) > 0:
		parts := make([]string, 0, len(p.Authors))
		for i, a := range p.Authors {
			if i == 0 {
				parts = append(parts, mlaFirstAuthor(a))
			} else {
				parts = append(parts, a)
			}
		}
		authors = joinAuthors(parts, "and ")
	}
	title := p.Title
	if title == "" {
		title = placeholderTitle
	}
	out := fmt.Sprintf("%s. %q", authors, title+".")
	if p.Venue != "" {
		out += " " + p.Venue + ","
	}
	out += " " + yearOrPlaceholder(p.Year) + "."
	return out
}

// FormatBibTeX emits an @article entry keyed by the paper id. Output parses
// back with ParseBibTeX so entries survive a round trip.
func FormatBibTeX(p models.Paper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@article{%s,\n", bibtexKey(p.PaperID))
	title := p.Title
	if title == "" {
		title = placeholderTitle
	}
	fmt.Fprintf(&b, "  title = {%s},\n", title)
	if len(p.Authors) > 0 {
		fmt.Fprintf(&b, "  author = {%s},\n", strings.Join(p.Authors, " and "))
	}
	if p.Year != nil {
		fmt.Fprintf(&b, "  year = {%d},\n", *p.Year)
	}
	if p.Venue != "" {
		fmt.Fprintf(&b, "  journal = {%s},\n", p.Venue)
	}
	if p.DOI != "" {
		fmt.Fprintf(&b, "  doi = {%s},\n", p.DOI)
	}
	if p.URL != "" {
		fmt.Fprintf(&b, "  url = {%s},\n", p.URL)
	}
	b.WriteString("}")
	return b.String()
}

var bibtexField = regexp.MustCompile(`(?m)^\s*(\w+)\s*=\s*\{(.*)\},?\s*$`)

// ParseBibTeX reads a single @article entry produced by FormatBibTeX.
func ParseBibTeX(entry string) (models.Paper, error) {
	var p models.Paper
	if !strings.HasPrefix(strings.TrimSpace(entry), "@article{") {
		return p, core.NewValidationError("entry", "not a bibtex @article entry")
	}
	for _, m := range bibtexField.FindAllStringSubmatch(entry, -1) {
		key, val := strings.ToLower(m[1]), m[2]
		switch key {
		case "title":
			if val != placeholderTitle {
				p.Title = val
			}
		case "author":
			p.Authors = strings.Split(val, " and ")
		case "year":
			if y, err := strconv.Atoi(val); err == nil {
				p.Year = &y
			}
		case "journal":
			p.Venue = val
		case "doi":
			p.DOI = val
		case "url":
			p.URL = val
		}
	}
	return p, nil
}

// apaAuthor turns "Ada Marie Lovelace" into "Lovelace, A. M.". Single-token
// names pass through unchanged.
func apaAuthor(name string) string {
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return name
	}
	last := parts[len(parts)-1]
	initials := make([]string, 0, len(parts)-1)
	for _, given := range parts[:len(parts)-1] {
		initials = append(initials, string([]rune(given)[:1])+".")
	}
	return last + ", " + strings.Join(initials, " ")
}

// mlaFirstAuthor turns "Ada Lovelace" into "Lovelace, Ada".
func mlaFirstAuthor(name string) string {
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return name
	}
	last := parts[len(parts)-1]
	return last + ", " + strings.Join(parts[:len(parts)-1], " ")
}

func joinAuthors(parts []string, lastSep string) string {
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + ", " + lastSep + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", " + lastSep + parts[len(parts)-1]
	}
}

func yearOrPlaceholder(year *int) string {
	if year == nil {
		return placeholderYear
	}
	return strconv.Itoa(*year)
}

func bibtexKey(paperID string) string {
	if paperID == "" {
		return "unknown"
	}
	r := strings.NewReplacer(":", "_", "/", "_", " ", "_")
	return r.Replace(paperID)
}
