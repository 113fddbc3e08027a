// Package linktext turns scraped link metadata into the plain text the
// listing analyzer expects. Fetching the page is the caller's job; this
// package only converts markup it is handed.
package linktext

import (
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// MaxHTMLBytes bounds the markup converted per call.
const MaxHTMLBytes = 512 * 1024

var (
	imagePattern    = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkPattern     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	emphasisPattern = regexp.MustCompile(`(\*\*|__|~~|\*|_)([^*_~\n]+)(\*\*|__|~~|\*|_)`)
	headingPattern  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	quotePattern    = regexp.MustCompile(`(?m)^\s*>\s?`)
	orderedPattern  = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	escapePattern   = regexp.MustCompile(`\\([\\\x60*_{}\[\]()#+\-.!|>~])`)
	rulePattern     = regexp.MustCompile(`(?m)^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`)
	blankRuns       = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText converts an HTML fragment to plain text. List items keep a
// leading "- " so bullet-style selling points stay recognizable.
func HTMLToText(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	if len(html) > MaxHTMLBytes {
		html = html[:MaxHTMLBytes]
	}

	markdown, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return stripMarkdown(markdown), nil
}

func stripMarkdown(md string) string {
	md = strings.ReplaceAll(md, "\r\n", "\n")
	md = rulePattern.ReplaceAllString(md, "")
	md = imagePattern.ReplaceAllString(md, "$1")
	md = linkPattern.ReplaceAllString(md, "$1")
	md = headingPattern.ReplaceAllString(md, "")
	md = quotePattern.ReplaceAllString(md, "")
	md = orderedPattern.ReplaceAllString(md, "- ")
	md = strings.ReplaceAll(md, "`", "")
	md = emphasisPattern.ReplaceAllString(md, "$2")
	md = escapePattern.ReplaceAllString(md, "$1")

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "+ ") {
			line = "- " + strings.TrimSpace(line[2:])
		}
		lines[i] = line
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// Compose joins a link title and its HTML description into one listing
// text: the title on the first line, the description below.
func Compose(title, descriptionHTML string) (string, error) {
	body, err := HTMLToText(descriptionHTML)
	if err != nil {
		return "", err
	}
	title = strings.TrimSpace(title)
	switch {
	case title == "":
		return body, nil
	case body == "":
		return title, nil
	case strings.HasPrefix(body, title):
		return body, nil
	}
	return title + "\n" + body, nil
}
