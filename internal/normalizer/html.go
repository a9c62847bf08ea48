package normalizer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"corpusnorm/pkg/utils"
)

const blockSelector = "p, li, h1, h2, h3, h4, h5, h6, blockquote, pre, td, th"

// looksLikeHTML avoids reflowing plain text that merely mentions a bracket.
func looksLikeHTML(s string) bool {
	open := strings.Index(s, "<")
	return open >= 0 && strings.Contains(s[open:], ">")
}

// htmlToText reduces markup to text with one line per innermost block element.
func htmlToText(s string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return "", err
	}

	strs := utils.NewStringHelper()
	blocks := doc.Find(blockSelector)

	if blocks.Length() == 0 {
		return strs.NormalizeWhitespace(doc.Text()), nil
	}

	var lines []string

	blocks.Each(func(_ int, sel *goquery.Selection) {
		if sel.Find(blockSelector).Length() > 0 {
			return
		}

		if text := strs.NormalizeWhitespace(sel.Text()); text != "" {
			lines = append(lines, text)
		}
	})

	return strings.Join(lines, "\n"), nil
}
