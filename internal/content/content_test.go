package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><body>
<div class="horoscopo-header"><h1 class="title">  Horóscopo Cáncer  </h1></div>
<div class="horoscopo-hoy"><div class="txt"><p>
   Hoy la luna te sonríe.
</p><p>second paragraph</p></div></div>
<div class="horoscopo-semanal"><div class="txt"><p>Semana de cambios.</p></div></div>
</body></html>`

func TestFallbackIsTotal(t *testing.T) {
	t.Parallel()

	for _, s := range []Subject{"cancer", "acuario", "leo", "", "not-a-sign"} {
		r := Fallback(s)
		assert.Equal(t, s, r.Subject)
		assert.NotEmpty(t, r.Daily, "daily for %q", s)
		assert.NotEmpty(t, r.Weekly, "weekly for %q", s)
		assert.Equal(t, SourceFallback, r.Source)
	}

	assert.True(t, strings.HasPrefix(Fallback("cancer").Daily, "🦀 Querida Cáncer"))
	assert.True(t, strings.HasPrefix(Fallback("acuario").Weekly, "🏺 Semana perfecta"))
	assert.Equal(t, genericDaily, Fallback("leo").Daily)
	assert.Equal(t, genericWeekly, Fallback("leo").Weekly)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	r, err := Extract("cancer", samplePage)
	require.NoError(t, err)
	assert.Equal(t, "Horóscopo Cáncer", r.Title)
	assert.Equal(t, "Hoy la luna te sonríe.", r.Daily)
	assert.Equal(t, "Semana de cambios.", r.Weekly)
	assert.Equal(t, SourceLive, r.Source)
}

func TestExtractMissingFieldsAreAbsent(t *testing.T) {
	t.Parallel()

	r, err := Extract("leo", `<div class="horoscopo-hoy"><div class="txt"><p>solo hoy</p></div></div>`)
	require.NoError(t, err)
	assert.Equal(t, "solo hoy", r.Daily)
	assert.Empty(t, r.Weekly)
	assert.Empty(t, r.Title)
}

func TestHTTPLoader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "test-agent" {
			http.Error(w, "bad agent", http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/horoscopo/cancer":
			_, _ = w.Write([]byte(samplePage))
		case "/horoscopo/empty":
			_, _ = w.Write([]byte(`<html><body>nothing here</body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewHTTPLoader(srv.Client(), "test-agent", time.Second)

	html, err := l.Load(context.Background(), srv.URL+"/horoscopo/cancer", DailySelector)
	require.NoError(t, err)
	assert.Contains(t, html, "horoscopo-hoy")

	_, err = l.Load(context.Background(), srv.URL+"/horoscopo/empty", DailySelector)
	assert.True(t, errors.Is(err, ErrElementMissing), "err=%v", err)

	_, err = l.Load(context.Background(), srv.URL+"/horoscopo/missing", DailySelector)
	assert.Error(t, err)
}

type fakeLoader struct {
	pages map[string]string
	err   error
}

func (f fakeLoader) Load(_ context.Context, url, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	html, ok := f.pages[url]
	if !ok {
		return "", errors.Newf("no page for %s", url)
	}
	return html, nil
}

type fetchRecord struct {
	subject, source string
}

type recorder struct {
	mu      sync.Mutex
	fetches []fetchRecord
}

func (r *recorder) RecordFetch(subject, source string, _ time.Duration) {
	r.mu.Lock()
	r.fetches = append(r.fetches, fetchRecord{subject, source})
	r.mu.Unlock()
}
func (r *recorder) RecordRun(string, string)  {}
func (r *recorder) RecordSend(string, string) {}

func TestFetcherLiveAndFallback(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	f := NewFetcher(fakeLoader{pages: map[string]string{
		"https://example.test/horoscopo/cancer": samplePage,
		"https://example.test/horoscopo/leo":    `<div class="horoscopo-semanal"><div class="txt"><p>only weekly</p></div></div>`,
	}}, "https://example.test/horoscopo/", WithMetrics(rec))

	assert.Equal(t, "https://example.test/horoscopo/cancer", f.URL("cancer"))

	live := f.Fetch(context.Background(), "cancer")
	assert.Equal(t, SourceLive, live.Source)
	assert.Equal(t, "Hoy la luna te sonríe.", live.Daily)

	// daily missing: the whole fallback is used, live weekly is discarded
	leo := f.Fetch(context.Background(), "leo")
	assert.Equal(t, Fallback("leo"), leo)

	// load error
	acuario := f.Fetch(context.Background(), "acuario")
	assert.Equal(t, Fallback("acuario"), acuario)

	assert.Equal(t, []fetchRecord{
		{"cancer", "live"},
		{"leo", "fallback"},
		{"acuario", "fallback"},
	}, rec.fetches)
}

func TestFetchLiveReportsMissingDaily(t *testing.T) {
	t.Parallel()

	f := NewFetcher(fakeLoader{pages: map[string]string{"https://x.test/leo": "<p>x</p>"}}, "https://x.test")
	_, err := f.FetchLive(context.Background(), "leo")
	assert.True(t, errors.Is(err, ErrElementMissing))
}

func TestFetchHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := NewFetcher(NewHTTPLoader(srv.Client(), "", time.Minute), srv.URL)
	r := f.Fetch(ctx, "cancer")
	assert.Equal(t, Fallback("cancer"), r)
}

func TestSubjectsKeepsOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []Subject{"acuario", "cancer"}, Subjects([]string{"acuario", "cancer"}))
}
