package fractalthorns

import (
	"context"
	"regexp"
	"strings"
)

// Client-side searches filter over fully cached corpora. Filters that need
// gathered data (description text, record contents) trigger a gather when
// none is cached; everything else runs on the regular listing caches.

// Iteration aliases accepted anywhere an iteration is matched, mapping
// community names onto their numeric designations.
var iterationAliases = map[string]string{
	"vollux":   "209151",
	"moth":     "209151",
	"llokin":   "265404",
	"chevrin":  "265404",
	"osmite":   "768220",
	"nyxite":   "768221",
	"director": "0",
}

func canonicalIteration(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if alias, ok := iterationAliases[term]; ok {
		return alias
	}
	return term
}

// compileTerm builds a case-insensitive regexp from a user term. The term
// itself is regexp syntax, matching the upstream search behavior.
func compileTerm(term string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + term)
}

// containsFold reports whether any of values matches term case-insensitively.
func containsFold(values []string, term string) bool {
	for _, v := range values {
		if strings.EqualFold(v, term) {
			return true
		}
	}
	return false
}

// ImageFilter selects images by field. Zero-value fields match everything.
// Name and Description are case-insensitive regular expressions; Canon and
// Character match whole values and accept iteration aliases for Canon.
type ImageFilter struct {
	Name           string
	Description    string
	Canon          string
	Character      string
	HasDescription *bool

	// CachedOnly restricts the search to already-gathered descriptions:
	// a cold cache fails with ItemsUngatheredError instead of triggering
	// a gather.
	CachedOnly bool
}

// SearchImages returns the cached images matching the filter, in upstream
// order. A Description filter requires gathered image descriptions.
func (c *Client) SearchImages(ctx context.Context, f ImageFilter) ([]Image, error) {
	var nameRe, descRe *regexp.Regexp
	var err error
	if f.Name != "" {
		if nameRe, err = compileTerm(f.Name); err != nil {
			return nil, err
		}
	}
	if f.Description != "" {
		if descRe, err = compileTerm(f.Description); err != nil {
			return nil, err
		}
	}

	var descs map[string]ImageDescription
	if descRe != nil {
		if f.CachedOnly {
			descs, err = c.CachedFullImageDescriptions()
		} else {
			descs, err = c.fullImageDescriptions(ctx)
		}
		if err != nil {
			return nil, err
		}
	}

	images, err := c.GetAllImages(ctx)
	if err != nil {
		return nil, err
	}

	canon := canonicalIteration(f.Canon)
	var matches []Image
	for _, img := range images {
		if nameRe != nil && !nameRe.MatchString(img.Name) && !nameRe.MatchString(img.Title) {
			continue
		}
		if f.Canon != "" && !strings.EqualFold(canonicalIteration(img.Canon), canon) {
			continue
		}
		if f.Character != "" && !containsFold(img.Characters, f.Character) {
			continue
		}
		if f.HasDescription != nil && img.HasDescription != *f.HasDescription {
			continue
		}
		if descRe != nil {
			desc, ok := descs[img.Name]
			if !ok || !descRe.MatchString(desc.Description) {
				continue
			}
		}
		matches = append(matches, img)
	}
	return matches, nil
}

// RecordFilter selects records by field. Zero-value fields match
// everything. Name is a case-insensitive regular expression; Chapter,
// Iteration, Language and Character match whole values. Language,
// Character and Requested need gathered record contents.
type RecordFilter struct {
	Name      string
	Chapter   string
	Iteration string
	Language  string
	Character string
	Requested *bool

	// CachedOnly restricts the search to already-gathered record contents.
	CachedOnly bool
}

func (f RecordFilter) needsTexts() bool {
	return f.Language != "" || f.Character != "" || f.Requested != nil
}

// SearchRecords returns the cached records matching the filter, in
// episodic order.
func (c *Client) SearchRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	var nameRe *regexp.Regexp
	var err error
	if f.Name != "" {
		if nameRe, err = compileTerm(f.Name); err != nil {
			return nil, err
		}
	}

	var texts map[string]RecordText
	if f.needsTexts() {
		if f.CachedOnly {
			texts, err = c.CachedFullRecordTexts()
		} else {
			texts, err = c.fullRecordTexts(ctx)
		}
		if err != nil {
			return nil, err
		}
	}

	chapters, err := c.GetFullEpisodic(ctx)
	if err != nil {
		return nil, err
	}

	iteration := canonicalIteration(f.Iteration)
	var matches []Record
	for _, ch := range chapters {
		if f.Chapter != "" && !strings.EqualFold(ch.Name, f.Chapter) {
			continue
		}
		for _, rec := range ch.Records {
			if nameRe != nil && !nameRe.MatchString(rec.Name) && !nameRe.MatchString(rec.Title) {
				continue
			}
			if f.Iteration != "" && !strings.EqualFold(canonicalIteration(rec.Iteration), iteration) {
				continue
			}
			if f.needsTexts() {
				rt, ok := texts[rec.Name]
				if !ok {
					continue
				}
				if f.Language != "" && !containsFold(rt.Languages, f.Language) {
					continue
				}
				if f.Character != "" && !containsFold(rt.Characters, f.Character) {
					continue
				}
				if f.Requested != nil && rt.Requested() != *f.Requested {
					continue
				}
			}
			matches = append(matches, rec)
		}
	}
	return matches, nil
}

// LineFilter selects individual record lines. Text is a case-insensitive
// regular expression over the formatted line text; the record-level fields
// narrow which records are scanned.
type LineFilter struct {
	Text      string
	Language  string
	Character string
	Emphasis  string
	Name      string
	Chapter   string
	Iteration string
	Requested *bool

	// CachedOnly restricts the search to already-gathered record contents.
	CachedOnly bool
}

// SearchRecordLines scans the gathered record texts and returns every line
// matching the filter, with the matched fragment. Always requires gathered
// record contents.
func (c *Client) SearchRecordLines(ctx context.Context, f LineFilter) ([]MatchResult, error) {
	var textRe *regexp.Regexp
	var err error
	if f.Text != "" {
		if textRe, err = compileTerm(f.Text); err != nil {
			return nil, err
		}
	}

	var texts map[string]RecordText
	if f.CachedOnly {
		texts, err = c.CachedFullRecordTexts()
	} else {
		texts, err = c.fullRecordTexts(ctx)
	}
	if err != nil {
		return nil, err
	}

	records, err := c.SearchRecords(ctx, RecordFilter{
		Name:       f.Name,
		Chapter:    f.Chapter,
		Iteration:  f.Iteration,
		Requested:  f.Requested,
		CachedOnly: f.CachedOnly,
	})
	if err != nil {
		return nil, err
	}

	var matches []MatchResult
	for _, rec := range records {
		rt, ok := texts[rec.Name]
		if !ok {
			continue
		}
		for i, line := range rt.Lines {
			if f.Language != "" && !strings.EqualFold(line.Language, f.Language) {
				continue
			}
			if f.Character != "" && !strings.EqualFold(line.Character, f.Character) {
				continue
			}
			if f.Emphasis != "" && !strings.EqualFold(line.Emphasis, f.Emphasis) {
				continue
			}
			formatted := line.FormatText()
			matched := formatted
			if textRe != nil {
				matched = textRe.FindString(formatted)
				if matched == "" {
					continue
				}
			}
			matches = append(matches, MatchResult{
				Record:    rec,
				Line:      line,
				LineIndex: i,
				Matched:   matched,
			})
		}
	}
	return matches, nil
}
