package content

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
)

// Extract pulls the title, daily and weekly text out of a subject page.
// Missing elements leave the field empty; only unparsable HTML is an error.
func Extract(subject Subject, html string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}, errors.Wrap(err, "parse document")
	}
	return extractDocument(subject, doc), nil
}

func extractDocument(subject Subject, doc *goquery.Document) Result {
	return Result{
		Subject: subject,
		Title:   firstText(doc, TitleSelector),
		Daily:   firstText(doc, DailySelector),
		Weekly:  firstText(doc, WeeklySelector),
		Source:  SourceLive,
	}
}

func firstText(doc *goquery.Document, selector string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(sel.Text())
}
