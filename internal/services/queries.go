package services

import (
	"fmt"
	"iter"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/amaumene/rdstream/internal/constants"
)

var (
	parenthesesRegex = regexp.MustCompile(`\(.*?\)`)
	tvSeriesRegex    = regexp.MustCompile(`(?i)TV (Mini )?Series`)
	quoteColonRegex  = regexp.MustCompile(`['’:]`)
)

// QueryRequest describes the content a search is built for.
type QueryRequest struct {
	Title         string
	OriginalTitle string
	Type          string
	Season        int
	Episode       int
}

// Queries yields search strings from the most to the least specific, each
// once. Consumers stop at the first query that returns results, so variants
// are only built when needed.
func Queries(req QueryRequest) iter.Seq[string] {
	tag := ""
	if req.Type == "series" && req.Season > 0 && req.Episode > 0 {
		tag = fmt.Sprintf(" S%02dE%02d", req.Season, req.Episode)
	}

	return func(yield func(string) bool) {
		seen := make(map[string]bool)
		emit := func(q string) bool {
			q = strings.TrimSpace(q)
			if q == "" || seen[q] {
				return true
			}
			seen[q] = true
			return yield(q)
		}

		for _, base := range baseTitles(req.Title, req.OriginalTitle) {
			folded := foldDiacritics(base)
			for _, b := range []string{base, folded, shortenTitle(folded, constants.ShortQueryWords)} {
				q := b + tag
				stripped := quoteColonRegex.ReplaceAllString(q, "")
				dotted := whitespaceRegex.ReplaceAllString(stripped, ".")
				if !emit(q) || !emit(stripped) || !emit(dotted) {
					return
				}
			}
		}
	}
}

func baseTitles(titles ...string) []string {
	var out []string
	for _, t := range titles {
		t = parenthesesRegex.ReplaceAllString(t, "")
		t = tvSeriesRegex.ReplaceAllString(t, "")
		t = strings.TrimSpace(whitespaceRegex.ReplaceAllString(t, " "))
		if t == "" {
			continue
		}
		dup := false
		for _, o := range out {
			if o == t {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, t)
		}
	}
	return out
}

// foldDiacritics strips combining marks: "Pelíšky" becomes "Pelisky".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func shortenTitle(title string, words int) string {
	fields := strings.Fields(title)
	if len(fields) > words {
		fields = fields[:words]
	}
	return strings.Join(fields, " ")
}
