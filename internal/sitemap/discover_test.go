package sitemap_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlfabric/crawlfabric/internal/fetch"
	"github.com/crawlfabric/crawlfabric/internal/robots"
	"github.com/crawlfabric/crawlfabric/internal/sitemap"
)

type stubRobots struct{}

func (stubRobots) EnsurePopulated(context.Context, string, string) (*robots.RobotsEntry, error) {
	return nil, nil
}

const urlsetTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/a</loc><priority>0.5</priority><lastmod>2026-01-01T00:00:00Z</lastmod></url>
  <url><loc>%[1]s/b</loc><priority>0.9</priority></url>
  <url><loc>%[1]s/c.pdf</loc><priority>0.9</priority></url>
  <url><loc>ftp://bad.example/d</loc><priority>0.9</priority></url>
</urlset>`

func sitemapIndexDoc(childLoc string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s</loc></sitemap>
</sitemapindex>`, childLoc)
}

func host(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestDiscover_ParsesURLSetAndPrioritizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, urlsetTemplate, base)
	}))
	defer srv.Close()

	fetcher := fetch.New(fetch.Config{})
	d := sitemap.New(stubRobots{}, fetcher, sitemap.Config{
		CommonPaths:        []string{"/sitemap.xml"},
		ExcludedExtensions: []string{".pdf"},
	}, nil)

	urls, stats, err := d.Discover(context.Background(), "http", host(srv))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SitemapsFetched)

	// c.pdf excluded by extension, ftp:// excluded by scheme
	require.Len(t, urls, 2)
	// higher priority (0.9) sorts first
	assert.Equal(t, srv.URL+"/b", urls[0].URL)
	assert.Equal(t, srv.URL+"/a", urls[1].URL)
}

func TestDiscover_RecursesIntoSitemapIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		w.Header().Set("Content-Type", "application/xml")
		if r.URL.Path == "/sitemap_index.xml" {
			fmt.Fprint(w, sitemapIndexDoc(base+"/sitemap-a.xml"))
			return
		}
		fmt.Fprintf(w, urlsetTemplate, base)
	}))
	defer srv.Close()

	fetcher := fetch.New(fetch.Config{})
	d := sitemap.New(stubRobots{}, fetcher, sitemap.Config{CommonPaths: []string{"/sitemap_index.xml"}}, nil)

	urls, stats, err := d.Discover(context.Background(), "http", host(srv))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SitemapsFetched)
	assert.NotEmpty(t, urls)
}

func TestDiscover_StopsAtMaxDepth(t *testing.T) {
	// a chain of three distinct sitemap-index documents, each pointing to
	// the next level; with MaxDepth=1 the walk should not reach level 2.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Path {
		case "/level0.xml":
			fmt.Fprint(w, sitemapIndexDoc(base+"/level1.xml"))
		case "/level1.xml":
			fmt.Fprint(w, sitemapIndexDoc(base+"/level2.xml"))
		case "/level2.xml":
			fmt.Fprintf(w, urlsetTemplate, base)
		}
	}))
	defer srv.Close()

	fetcher := fetch.New(fetch.Config{})
	d := sitemap.New(stubRobots{}, fetcher, sitemap.Config{
		CommonPaths: []string{"/level0.xml"},
		MaxDepth:    1,
	}, nil)

	_, stats, err := d.Discover(context.Background(), "http", host(srv))
	require.NoError(t, err)
	assert.NotEmpty(t, stats.Errors)
	assert.Equal(t, 2, stats.SitemapsFetched, "level0 and level1 fetched, level2 never reached")
}
