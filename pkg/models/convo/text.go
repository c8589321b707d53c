package convo

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HintMarker separates the reply from its embedded correction
const HintMarker = "💡"

var (
	reBold    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	replBreak = strings.NewReplacer("\r\n", "<br>", "\n", "<br>")
)

// SplitHint returns the text before the hint marker and the hint from the marker on
func SplitHint(text string) (reply, hint string) {
	if i := strings.Index(text, HintMarker); i >= 0 {
		return text[:i], text[i:]
	}
	return text, ""
}

// FormatHTML newline to line break, **bold** to strong
func FormatHTML(text string) string {
	return reBold.ReplaceAllString(replBreak.Replace(text), "<strong>$1</strong>")
}

// PlainText strips markup and collapses whitespace
func PlainText(html string) string {
	if !strings.ContainsRune(html, '<') {
		return html
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(strings.ReplaceAll(html, "<", " <")))
	if err != nil {
		return html
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// SpeechText is the portion of a reply worth reading aloud
func SpeechText(html string) string {
	reply, _ := SplitHint(PlainText(html))
	return strings.TrimSpace(reply)
}
