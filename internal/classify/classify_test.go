package classify

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules(t *testing.T) Rules {
	t.Helper()
	origin, err := url.Parse("https://prochepro.fr")
	require.NoError(t, err)
	return Rules{
		Origin:           origin,
		APIPrefix:        "/api/",
		StaticExtensions: []string{".png", ".jpg", ".svg", ".woff2", ".mp3"},
	}
}

func TestClassify_Precedence(t *testing.T) {
	rules := testRules(t)

	tests := []struct {
		name   string
		method string
		target string
		header map[string]string
		want   Category
	}{
		{
			name:   "non-GET is never intercepted",
			method: http.MethodPost,
			target: "https://prochepro.fr/tasks",
			want:   CategoryBypass,
		},
		{
			name:   "non-GET wins over API prefix",
			method: http.MethodDelete,
			target: "https://prochepro.fr/api/v1/offers/3",
			want:   CategoryBypass,
		},
		{
			name:   "API path is always live",
			method: http.MethodGet,
			target: "https://prochepro.fr/api/v1/tasks",
			want:   CategoryAPI,
		},
		{
			name:   "API prefix wins over static extension",
			method: http.MethodGet,
			target: "https://prochepro.fr/api/v1/avatar.png",
			want:   CategoryAPI,
		},
		{
			name:   "cross-origin is never cached",
			method: http.MethodGet,
			target: "https://cdn.example.com/lib.png",
			want:   CategoryBypass,
		},
		{
			name:   "navigation header marks a page",
			method: http.MethodGet,
			target: "https://prochepro.fr/taches/paris",
			header: map[string]string{"Sec-Fetch-Mode": "navigate"},
			want:   CategoryPage,
		},
		{
			name:   "html accept marks a page",
			method: http.MethodGet,
			target: "https://prochepro.fr/profil",
			header: map[string]string{"Accept": "text/html,application/xhtml+xml"},
			want:   CategoryPage,
		},
		{
			name:   "navigation wins over static extension",
			method: http.MethodGet,
			target: "https://prochepro.fr/brochure.png",
			header: map[string]string{"Sec-Fetch-Mode": "navigate"},
			want:   CategoryPage,
		},
		{
			name:   "known extension is a static asset",
			method: http.MethodGet,
			target: "https://prochepro.fr/images/logo.svg",
			want:   CategoryStatic,
		},
		{
			name:   "extension match is case-insensitive",
			method: http.MethodGet,
			target: "https://prochepro.fr/images/PHOTO.PNG",
			want:   CategoryStatic,
		},
		{
			name:   "unknown extension falls through to other",
			method: http.MethodGet,
			target: "https://prochepro.fr/data.json",
			want:   CategoryOther,
		},
		{
			name:   "no extension and no html accept is other",
			method: http.MethodGet,
			target: "https://prochepro.fr/ping",
			want:   CategoryOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, rules.Classify(req))
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	rules := testRules(t)
	req := httptest.NewRequest(http.MethodGet, "https://prochepro.fr/images/logo.png", nil)

	first := rules.Classify(req)
	for range 10 {
		assert.Equal(t, first, rules.Classify(req))
	}
}

func TestClassify_NonHTTPScheme(t *testing.T) {
	rules := testRules(t)
	req := httptest.NewRequest(http.MethodGet, "https://prochepro.fr/", nil)
	req.URL = &url.URL{Scheme: "chrome-extension", Host: "prochepro.fr", Path: "/x.png"}

	assert.Equal(t, CategoryBypass, rules.Classify(req))
}

func TestClassify_ServerFormRequestIsSameOrigin(t *testing.T) {
	rules := testRules(t)
	// Server-form request: URL carries only the path.
	req := httptest.NewRequest(http.MethodGet, "/images/logo.png", nil)
	req.URL.Host = ""
	req.URL.Scheme = ""

	assert.Equal(t, CategoryStatic, rules.Classify(req))
}

func TestClassify_PortMismatchIsCrossOrigin(t *testing.T) {
	origin, err := url.Parse("http://localhost:3000")
	require.NoError(t, err)
	rules := Rules{Origin: origin, StaticExtensions: []string{".png"}}

	req := httptest.NewRequest(http.MethodGet, "http://localhost:9000/a.png", nil)
	assert.Equal(t, CategoryBypass, rules.Classify(req))

	req = httptest.NewRequest(http.MethodGet, "http://localhost:3000/a.png", nil)
	assert.Equal(t, CategoryStatic, rules.Classify(req))
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "bypass", CategoryBypass.String())
	assert.Equal(t, "api", CategoryAPI.String())
	assert.Equal(t, "static", CategoryStatic.String())
	assert.Equal(t, "page", CategoryPage.String())
	assert.Equal(t, "other", CategoryOther.String())
}
