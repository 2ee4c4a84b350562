package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horoscopebot/internal/config"
	"horoscopebot/internal/content"
)

func TestSample(t *testing.T) {
	assert.Equal(t, "corto", sample("corto", 10))
	assert.Equal(t, "añoñ...", sample("añoñería", 4))
	assert.Equal(t, strings.Repeat("x", 150)+"...", sample(strings.Repeat("x", 200), sampleRunes))
}

func TestScrapePrintsResultsAndPreview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/leo") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body>
<div class="horoscopo-header"><h1 class="title">Horóscopo Leo</h1></div>
<div class="horoscopo-hoy"><div class="txt"><p>Brillas hoy.</p></div></div>
</body></html>`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		Content: config.ContentConfig{
			Driver:       "http",
			BaseURL:      srv.URL + "/horoscopo",
			SubjectDelay: "10ms",
		},
		Logging: config.LoggingConfig{Level: "error"},
	}
	config.ApplyDefaults(cfg)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	require.NoError(t, scrape(cmd, cfg, []string{"leo", "piscis"}))

	got := out.String()
	assert.Contains(t, got, "title:  Horóscopo Leo")
	assert.Contains(t, got, "Brillas hoy.")
	assert.Contains(t, got, "using fallback text")
	assert.Contains(t, got, "---- daily preview ----")
	assert.Contains(t, got, content.Fallback("piscis").Daily)
	assert.Less(t, strings.Index(got, "Leo - Hoy"), strings.Index(got, "Piscis - Hoy"))
}
