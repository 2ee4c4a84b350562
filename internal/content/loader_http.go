package content

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
)

const maxPageBytes = 4 << 20

// HTTPLoader fetches the page with a plain GET. It cannot run scripts, so it only
// works while the content is server-rendered.
type HTTPLoader struct {
	client    *http.Client
	userAgent string
}

// NewHTTPLoader wires an HTTP client; navTimeout bounds the whole request.
func NewHTTPLoader(client *http.Client, userAgent string, navTimeout time.Duration) *HTTPLoader {
	if client == nil {
		client = &http.Client{Timeout: navTimeout}
	}
	return &HTTPLoader{client: client, userAgent: userAgent}
}

func (l *HTTPLoader) Load(ctx context.Context, pageURL, waitSelector string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "request document")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("%s returned %s", pageURL, resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", errors.Wrap(err, "read document")
	}
	html := string(b)

	if waitSelector != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return "", errors.Wrap(err, "parse document")
		}
		if doc.Find(waitSelector).Length() == 0 {
			return "", errors.Wrapf(ErrElementMissing, "selector %q", waitSelector)
		}
	}
	return html, nil
}
