package fractalthorns

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Record types mirror the upstream API's JSON schemas. Values are built
// wholesale by the decode functions and never mutated afterwards; a refresh
// replaces the whole value. Decoding fails on missing required fields;
// fields documented as optional decode to their zero value when absent.

// NewsEntry is one item from the news feed. The feed has no stable per-item
// key; it is cached as a single ordered list.
type NewsEntry struct {
	Title   string   `json:"title"`
	Items   []string `json:"items,omitempty"`
	Date    string   `json:"date"`
	Version string   `json:"version,omitempty"`
}

// Image is the metadata for one image. Name is the identity, case-sensitive
// and unique among images.
type Image struct {
	Name               string   `json:"name"`
	Title              string   `json:"title"`
	Date               string   `json:"date"`
	Ordinal            int      `json:"ordinal"`
	ImageURL           string   `json:"image_url"`
	ThumbURL           string   `json:"thumb_url"`
	Canon              string   `json:"canon,omitempty"`
	HasDescription     bool     `json:"has_description"`
	Characters         []string `json:"characters"`
	SpeedpaintVideoURL string   `json:"speedpaint_video_url,omitempty"`
	PrimaryColor       string   `json:"primary_color,omitempty"`
	SecondaryColor     string   `json:"secondary_color,omitempty"`
}

// ImageDescription is the long-form description of an image. Description is
// empty while the image has none.
type ImageDescription struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ImageContents is the binary data of an image or sketch and its
// thumbnail, as served by the website.
type ImageContents struct {
	Image     []byte `json:"image"`
	Thumbnail []byte `json:"thumbnail"`
}

// Sketch is the metadata for one sketch.
type Sketch struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	ThumbURL string `json:"thumb_url"`
}

// Record is the metadata for one episodic record. Iteration and
// LinkedPuzzles are absent for unsolved records upstream has not revealed.
type Record struct {
	Chapter       string   `json:"chapter"`
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	Solved        bool     `json:"solved"`
	Iteration     string   `json:"iteration,omitempty"`
	LinkedPuzzles []string `json:"linked_puzzles,omitempty"`
}

// Chapter groups the records belonging to one chapter of the episodic, in
// upstream order.
type Chapter struct {
	Name    string   `json:"name"`
	Records []Record `json:"records"`
}

// RecordLine is one line of a record's text.
type RecordLine struct {
	Character string `json:"character,omitempty"`
	Language  string `json:"language,omitempty"`
	Emphasis  string `json:"emphasis,omitempty"`
	Text      string `json:"text"`
}

var lineWhitespace = regexp.MustCompile(`(  +|\n *)([^*-])`)

// FormatText returns the line's text with mid-line newlines and runs of
// whitespace collapsed. Narration lines (no character) pass through
// untouched.
func (l RecordLine) FormatText() string {
	if l.Character == "" {
		return l.Text
	}
	text := lineWhitespace.ReplaceAllString(l.Text, " $2")
	if strings.HasPrefix(text, "- ") || strings.HasPrefix(text, "* ") {
		text = "\n" + text
	}
	return text
}

// RecordText is the full text of a solved record.
type RecordText struct {
	Name        string       `json:"name"`
	Title       string       `json:"title"`
	Iteration   string       `json:"iteration"`
	HeaderLines []string     `json:"header_lines"`
	Languages   []string     `json:"languages"`
	Characters  []string     `json:"characters"`
	Lines       []RecordLine `json:"lines"`
}

// Requested reports whether the record was requested, per its header lines.
func (rt RecordText) Requested() bool {
	for _, h := range rt.HeaderLines {
		if strings.Contains(h, "unrequested") {
			return false
		}
	}
	return true
}

// SearchResult is one hit from an upstream domain search. Exactly one of
// Image and Record is set, per Type.
type SearchResult struct {
	Type              string      `json:"type"`
	Image             *Image      `json:"image,omitempty"`
	Record            *Record     `json:"record,omitempty"`
	RecordLine        *RecordLine `json:"record_line,omitempty"`
	RecordMatchedText string      `json:"record_matched_text,omitempty"`
	RecordLineIndex   *int        `json:"record_line_index,omitempty"`
}

// MatchResult is one hit from a client-side record line search, grouped
// under its parent record.
type MatchResult struct {
	Record    Record     `json:"record"`
	Line      RecordLine `json:"line"`
	LineIndex int        `json:"line_index"`
	Matched   string     `json:"matched"`
}

// Splash is one splash text entry.
type Splash struct {
	Text    string `json:"text,omitempty"`
	Ordinal int    `json:"ordinal,omitempty"`
}

// SplashPage is one page of historical splashes.
type SplashPage struct {
	Splashes []Splash `json:"splashes"`
	Page     int      `json:"page"`
}

// required extracts a mandatory field from a decoded payload, failing with
// a DecodeError naming the field when absent.
func required[T any](p *T, kind, field string) (T, error) {
	if p == nil {
		var zero T
		return zero, &DecodeError{Kind: kind, Field: field}
	}
	return *p, nil
}

func optional[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

type newsEntryJSON struct {
	Title   *string  `json:"title"`
	Items   []string `json:"items"`
	Date    *string  `json:"date"`
	Version *string  `json:"version"`
}

func decodeNewsEntry(raw newsEntryJSON) (NewsEntry, error) {
	var entry NewsEntry
	var err error
	if entry.Title, err = required(raw.Title, "news entry", "title"); err != nil {
		return NewsEntry{}, err
	}
	if entry.Date, err = required(raw.Date, "news entry", "date"); err != nil {
		return NewsEntry{}, err
	}
	entry.Items = raw.Items
	entry.Version = optional(raw.Version)
	return entry, nil
}

// DecodeAllNews parses the all_news payload into an ordered list.
func DecodeAllNews(data []byte) ([]NewsEntry, error) {
	var payload struct {
		Items []newsEntryJSON `json:"items"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &DecodeError{Kind: "news", Err: err}
	}
	entries := make([]NewsEntry, 0, len(payload.Items))
	for _, raw := range payload.Items {
		entry, err := decodeNewsEntry(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type imageJSON struct {
	Name               *string  `json:"name"`
	Title              *string  `json:"title"`
	Date               *string  `json:"date"`
	Ordinal            *int     `json:"ordinal"`
	ImageURL           *string  `json:"image_url"`
	ThumbURL           *string  `json:"thumb_url"`
	Canon              *string  `json:"canon"`
	HasDescription     *bool    `json:"has_description"`
	Characters         []string `json:"characters"`
	SpeedpaintVideoURL *string  `json:"speedpaint_video_url"`
	PrimaryColor       *string  `json:"primary_color"`
	SecondaryColor     *string  `json:"secondary_color"`
}

func decodeImage(raw imageJSON) (Image, error) {
	var img Image
	var err error
	if img.Name, err = required(raw.Name, "image", "name"); err != nil {
		return Image{}, err
	}
	if img.Title, err = required(raw.Title, "image", "title"); err != nil {
		return Image{}, err
	}
	if img.Date, err = required(raw.Date, "image", "date"); err != nil {
		return Image{}, err
	}
	if img.Ordinal, err = required(raw.Ordinal, "image", "ordinal"); err != nil {
		return Image{}, err
	}
	if img.ImageURL, err = required(raw.ImageURL, "image", "image_url"); err != nil {
		return Image{}, err
	}
	if img.ThumbURL, err = required(raw.ThumbURL, "image", "thumb_url"); err != nil {
		return Image{}, err
	}
	if img.HasDescription, err = required(raw.HasDescription, "image", "has_description"); err != nil {
		return Image{}, err
	}
	img.Characters = raw.Characters
	img.Canon = optional(raw.Canon)
	img.SpeedpaintVideoURL = optional(raw.SpeedpaintVideoURL)
	img.PrimaryColor = optional(raw.PrimaryColor)
	img.SecondaryColor = optional(raw.SecondaryColor)
	return img, nil
}

// DecodeImage parses a single_image payload.
func DecodeImage(data []byte) (Image, error) {
	var raw imageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Image{}, &DecodeError{Kind: "image", Err: err}
	}
	return decodeImage(raw)
}

// DecodeAllImages parses the all_images payload, preserving upstream order.
func DecodeAllImages(data []byte) ([]Image, error) {
	var payload struct {
		Images []imageJSON `json:"images"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &DecodeError{Kind: "images", Err: err}
	}
	images := make([]Image, 0, len(payload.Images))
	for _, raw := range payload.Images {
		img, err := decodeImage(raw)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// DecodeImageDescription parses an image_description payload. Name and
// title come from the already-fetched image metadata.
func DecodeImageDescription(name, title string, data []byte) (ImageDescription, error) {
	var raw struct {
		Description *string `json:"description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ImageDescription{}, &DecodeError{Kind: "image description", Err: err}
	}
	return ImageDescription{Name: name, Title: title, Description: optional(raw.Description)}, nil
}

type sketchJSON struct {
	Name     *string `json:"name"`
	Title    *string `json:"title"`
	ImageURL *string `json:"image_url"`
	ThumbURL *string `json:"thumb_url"`
}

func decodeSketch(raw sketchJSON) (Sketch, error) {
	var sk Sketch
	var err error
	if sk.Name, err = required(raw.Name, "sketch", "name"); err != nil {
		return Sketch{}, err
	}
	if sk.Title, err = required(raw.Title, "sketch", "title"); err != nil {
		return Sketch{}, err
	}
	if sk.ImageURL, err = required(raw.ImageURL, "sketch", "image_url"); err != nil {
		return Sketch{}, err
	}
	if sk.ThumbURL, err = required(raw.ThumbURL, "sketch", "thumb_url"); err != nil {
		return Sketch{}, err
	}
	return sk, nil
}

// DecodeSketch parses a single_sketch payload.
func DecodeSketch(data []byte) (Sketch, error) {
	var raw sketchJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Sketch{}, &DecodeError{Kind: "sketch", Err: err}
	}
	return decodeSketch(raw)
}

// DecodeAllSketches parses the all_sketches payload.
func DecodeAllSketches(data []byte) ([]Sketch, error) {
	var payload struct {
		Sketches []sketchJSON `json:"sketches"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &DecodeError{Kind: "sketches", Err: err}
	}
	sketches := make([]Sketch, 0, len(payload.Sketches))
	for _, raw := range payload.Sketches {
		sk, err := decodeSketch(raw)
		if err != nil {
			return nil, err
		}
		sketches = append(sketches, sk)
	}
	return sketches, nil
}

type recordJSON struct {
	Chapter       *string  `json:"chapter"`
	Name          *string  `json:"name"`
	Title         *string  `json:"title"`
	Solved        *bool    `json:"solved"`
	Iteration     *string  `json:"iteration"`
	LinkedPuzzles []string `json:"linked_puzzles"`
}

func decodeRecord(raw recordJSON) (Record, error) {
	var rec Record
	var err error
	if rec.Chapter, err = required(raw.Chapter, "record", "chapter"); err != nil {
		return Record{}, err
	}
	if rec.Name, err = required(raw.Name, "record", "name"); err != nil {
		return Record{}, err
	}
	if rec.Title, err = required(raw.Title, "record", "title"); err != nil {
		return Record{}, err
	}
	if rec.Solved, err = required(raw.Solved, "record", "solved"); err != nil {
		return Record{}, err
	}
	rec.Iteration = optional(raw.Iteration)
	rec.LinkedPuzzles = raw.LinkedPuzzles
	return rec, nil
}

// DecodeRecord parses a single_record payload.
func DecodeRecord(data []byte) (Record, error) {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, &DecodeError{Kind: "record", Err: err}
	}
	return decodeRecord(raw)
}

// DecodeFullEpisodic parses the full_episodic payload into ordered
// chapters.
func DecodeFullEpisodic(data []byte) ([]Chapter, error) {
	var payload struct {
		Chapters []struct {
			Name    *string      `json:"name"`
			Records []recordJSON `json:"records"`
		} `json:"chapters"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &DecodeError{Kind: "chapters", Err: err}
	}
	chapters := make([]Chapter, 0, len(payload.Chapters))
	for _, rawCh := range payload.Chapters {
		name, err := required(rawCh.Name, "chapter", "name")
		if err != nil {
			return nil, err
		}
		ch := Chapter{Name: name, Records: make([]Record, 0, len(rawCh.Records))}
		for _, rawRec := range rawCh.Records {
			rec, err := decodeRecord(rawRec)
			if err != nil {
				return nil, err
			}
			ch.Records = append(ch.Records, rec)
		}
		chapters = append(chapters, ch)
	}
	return chapters, nil
}

type recordLineJSON struct {
	Character *string `json:"character"`
	Language  *string `json:"language"`
	Emphasis  *string `json:"emphasis"`
	Text      *string `json:"text"`
}

func decodeRecordLine(raw recordLineJSON) (RecordLine, error) {
	text, err := required(raw.Text, "record line", "text")
	if err != nil {
		return RecordLine{}, err
	}
	return RecordLine{
		Character: optional(raw.Character),
		Language:  optional(raw.Language),
		Emphasis:  optional(raw.Emphasis),
		Text:      text,
	}, nil
}

// DecodeRecordText parses a record_text payload. Name and title come from
// the already-fetched record metadata.
func DecodeRecordText(name, title string, data []byte) (RecordText, error) {
	var raw struct {
		Iteration   *string          `json:"iteration"`
		HeaderLines []string         `json:"header_lines"`
		Languages   []string         `json:"languages"`
		Characters  []string         `json:"characters"`
		Lines       []recordLineJSON `json:"lines"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return RecordText{}, &DecodeError{Kind: "record text", Err: err}
	}
	iteration, err := required(raw.Iteration, "record text", "iteration")
	if err != nil {
		return RecordText{}, err
	}
	rt := RecordText{
		Name:        name,
		Title:       title,
		Iteration:   iteration,
		HeaderLines: raw.HeaderLines,
		Languages:   raw.Languages,
		Characters:  raw.Characters,
		Lines:       make([]RecordLine, 0, len(raw.Lines)),
	}
	for _, rawLine := range raw.Lines {
		line, err := decodeRecordLine(rawLine)
		if err != nil {
			return RecordText{}, err
		}
		rt.Lines = append(rt.Lines, line)
	}
	return rt, nil
}

// DecodeSearchResults parses a domain_search payload.
func DecodeSearchResults(data []byte) ([]SearchResult, error) {
	var payload struct {
		Results []struct {
			Type              *string         `json:"type"`
			Image             *imageJSON      `json:"image"`
			Record            *recordJSON     `json:"record"`
			RecordLine        *recordLineJSON `json:"record_line"`
			RecordMatchedText *string         `json:"record_matched_text"`
			RecordLineIndex   *int            `json:"record_line_index"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &DecodeError{Kind: "search results", Err: err}
	}
	results := make([]SearchResult, 0, len(payload.Results))
	for _, raw := range payload.Results {
		kind, err := required(raw.Type, "search result", "type")
		if err != nil {
			return nil, err
		}
		res := SearchResult{
			Type:              kind,
			RecordMatchedText: optional(raw.RecordMatchedText),
			RecordLineIndex:   raw.RecordLineIndex,
		}
		if raw.Image != nil {
			img, err := decodeImage(*raw.Image)
			if err != nil {
				return nil, err
			}
			res.Image = &img
		}
		if raw.Record != nil {
			rec, err := decodeRecord(*raw.Record)
			if err != nil {
				return nil, err
			}
			res.Record = &rec
		}
		if raw.RecordLine != nil {
			line, err := decodeRecordLine(*raw.RecordLine)
			if err != nil {
				return nil, err
			}
			res.RecordLine = &line
		}
		results = append(results, res)
	}
	return results, nil
}

// DecodeSplash parses a current_splash payload. A missing splash decodes to
// the zero value: there is no current splash.
func DecodeSplash(data []byte) (Splash, error) {
	var raw struct {
		Splash *Splash `json:"splash"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Splash{}, &DecodeError{Kind: "splash", Err: err}
	}
	if raw.Splash == nil {
		return Splash{}, nil
	}
	return *raw.Splash, nil
}

// DecodeSplashPage parses a paged_splashes payload.
func DecodeSplashPage(data []byte) (SplashPage, error) {
	var raw struct {
		Splashes []Splash `json:"splashes"`
		Page     *int     `json:"page"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return SplashPage{}, &DecodeError{Kind: "splash page", Err: err}
	}
	page, err := required(raw.Page, "splash page", "page")
	if err != nil {
		return SplashPage{}, err
	}
	return SplashPage{Splashes: raw.Splashes, Page: page}, nil
}
