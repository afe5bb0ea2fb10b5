// Package format renders API entities as Discord-flavored markdown, the
// shape chat frontends post verbatim. Every renderer emits a quote block.
package format

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mcawesome123/fractalrhomb/fractalthorns"
)

// NewsEntry renders one news item: title, date, the change list, and the
// version if it changed.
func NewsEntry(e fractalthorns.NewsEntry) string {
	lines := []string{
		"> ## " + e.Title,
		"> __on " + e.Date + "__",
	}
	if len(e.Items) > 0 {
		for _, item := range e.Items {
			lines = append(lines, "> - "+item)
		}
	} else {
		lines = append(lines, "> no changes listed")
	}
	if e.Version != "" {
		lines = append(lines, "> _"+e.Version+"_")
	} else {
		lines = append(lines, "> _no version change_")
	}
	return strings.Join(lines, "\n")
}

// Image renders image metadata: linked title, canon, characters, and the
// speedpaint link. baseURL is the website root the entity links point at.
func Image(img fractalthorns.Image, baseURL string) string {
	lines := []string{
		fmt.Sprintf("> ## [%s](<%s/image/%s>)", img.Title, baseURL, img.Name),
	}

	canon := img.Canon
	if canon == "" {
		canon = "none"
	}
	lines = append(lines, fmt.Sprintf("> _canon: %s_", canon))

	characters := strings.Join(img.Characters, ", ")
	if characters == "" {
		characters = "_none_"
	}
	lines = append(lines, "> characters: "+characters)

	if img.SpeedpaintVideoURL != "" {
		lines = append(lines, fmt.Sprintf("> [speedpaint video](<%s>)", img.SpeedpaintVideoURL))
	} else {
		lines = append(lines, "> no speedpaint video")
	}

	return strings.Join(lines, "\n")
}

// ImageDescription renders an image's long-form description under its
// title.
func ImageDescription(desc fractalthorns.ImageDescription) string {
	body := desc.Description
	if body == "" {
		body = "no description"
	}
	return fmt.Sprintf("> ## %s\n%s", desc.Title, body)
}

// Sketch renders a sketch as a linked title with its identifying name.
func Sketch(sk fractalthorns.Sketch, baseURL string) string {
	return fmt.Sprintf("> **[%s](<%s/sketch/%s>)** (_%s_)", sk.Title, baseURL, sk.Name, sk.Name)
}

// Record renders record metadata: linked title, name with iteration, and
// the chapter. Unsolved records show an arrowed placeholder title and
// their linked puzzles.
func Record(rec fractalthorns.Record, baseURL string) string {
	title := rec.Title
	if !rec.Solved {
		title = fmt.Sprintf("_%s →_", title)
	}
	lines := []string{
		fmt.Sprintf("> ## [%s](%s/episodic/%s)", title, baseURL, rec.Name),
	}

	name := "> (_" + rec.Name
	if rec.Iteration != "" {
		name += ", in " + rec.Iteration
	}
	lines = append(lines, name+"_)")

	if rec.Chapter != "" {
		lines = append(lines, fmt.Sprintf("> _chapter %s_", rec.Chapter))
	}

	if !rec.Solved {
		label := "linked puzzle"
		if len(rec.LinkedPuzzles) > 1 {
			label = "linked puzzles"
		}
		puzzles := "none"
		if len(rec.LinkedPuzzles) > 0 {
			puzzles = strings.Join(rec.LinkedPuzzles, ", ")
		}
		lines = append(lines, fmt.Sprintf("> _%s: %s_", label, puzzles))
	}

	return strings.Join(lines, "\n")
}

// RecordInline renders a record as a single line, for search result lists.
func RecordInline(rec fractalthorns.Record, baseURL string) string {
	if !rec.Solved {
		return "> **??? →** (_???_)"
	}
	s := fmt.Sprintf("> **[%s](<%s/episodic/%s>)** (_%s", rec.Title, baseURL, rec.Name, rec.Name)
	if rec.Iteration != "" {
		s += ", in " + rec.Iteration
	}
	return s + "_)"
}

// RecordText renders a record's full text: the linked title, an iteration
// and cast pre-header, the header block, then the dialogue with speaker
// changes marked.
func RecordText(rt fractalthorns.RecordText, baseURL string) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("> ## [%s](<%s/episodic/%s>)", rt.Title, baseURL, rt.Name))
	lines = append(lines, fmt.Sprintf("> (_iteration: %s; language(s): %s; character(s): %s_)",
		rt.Iteration, strings.Join(rt.Languages, ", "), strings.Join(rt.Characters, ", ")))

	lines = append(lines, "> _ _\n> ```")
	for _, h := range rt.HeaderLines {
		lines = append(lines, "> "+h)
	}
	lines = append(lines, "> ```")

	var lastCharacter, lastLanguage string
	haveSpeaker := false
	for _, line := range rt.Lines {
		rendered, char, lang := recordLine(line, lastCharacter, lastLanguage, haveSpeaker)
		lines = append(lines, rendered)
		if line.Character != "" {
			lastCharacter, lastLanguage = char, lang
			haveSpeaker = true
		}
	}

	return strings.Join(lines, "\n")
}

// recordLine renders one line of dialogue. Narration lines are set in a
// bracketed code span; spoken lines name the speaker only when the
// character or language changed since the previous spoken line.
func recordLine(line fractalthorns.RecordLine, lastCharacter, lastLanguage string, haveSpeaker bool) (string, string, string) {
	text := line.FormatText()

	var rendered string
	if line.Character == "" {
		if strings.Count(text, "**") == 2 {
			text = strings.ReplaceAll(text, "**", "")
			rendered = "**" + narration(text) + "**"
		} else {
			rendered = narration(text)
		}
	} else {
		var speaker []string
		if !haveSpeaker || line.Language != lastLanguage {
			if line.Language == "" {
				speaker = append(speaker, "(in unknown language)")
			} else {
				speaker = append(speaker, fmt.Sprintf("(in %s)", line.Language))
			}
		}
		if !haveSpeaker || line.Character != lastCharacter {
			if line.Character == "Narrator" {
				speaker = append(speaker, line.Character)
			} else {
				speaker = append(speaker, fmt.Sprintf("`%s`", line.Character))
			}
		}
		if line.Emphasis != "" {
			speaker = append(speaker, fmt.Sprintf("(%s)", line.Emphasis))
		}

		prefix := strings.Join(speaker, " ")
		if strings.HasPrefix(text, "\n") {
			rendered = prefix + " **:**" + text
		} else {
			rendered = prefix + " **:** " + text
		}
	}

	rendered = "> " + strings.ReplaceAll(rendered, "\n", "\n> ")
	rendered = strings.TrimSuffix(rendered, "\n> ")
	return rendered, line.Character, line.Language
}

func narration(text string) string {
	if strings.HasSuffix(text, " ") {
		return fmt.Sprintf("`< %s>`", text)
	}
	return fmt.Sprintf("`< %s >`", text)
}

var splashEscaper = regexp.MustCompile("([`~#*()\\-_=\\[\\]<>\\\\])")

// Splash renders a splash with markdown control characters escaped, since
// splash text is arbitrary user content.
func Splash(sp fractalthorns.Splash) string {
	if sp.Text == "" {
		return "...then there was silence"
	}
	text := splashEscaper.ReplaceAllString(sp.Text, `\$1`)
	text = strings.ReplaceAll(text, "\n", "\n> ")
	if sp.Ordinal != 0 {
		return fmt.Sprintf("> %d\\. %s", sp.Ordinal, text)
	}
	return "> " + text
}

// SplashPage renders a page heading followed by each splash.
func SplashPage(page fractalthorns.SplashPage) string {
	if len(page.Splashes) == 0 {
		return "the page is empty"
	}
	lines := []string{fmt.Sprintf("> ## page %d", page.Page)}
	for _, sp := range page.Splashes {
		lines = append(lines, Splash(sp))
	}
	return strings.Join(lines, "\n")
}
