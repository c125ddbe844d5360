package pixiv

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixivrank/pkg/config"
	errs "pixivrank/pkg/errors"
	"pixivrank/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.PixivConfig{
		Cookie:          "PHPSESSID=abc",
		BaseURL:         server.URL,
		APITimeout:      2 * time.Second,
		DownloadTimeout: 2 * time.Second,
	}, logger.NewTestLogger())
	return client, server
}

func TestRankingRequest(t *testing.T) {
	var got *http.Request
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"contents": [
				{"illust_id": 101, "tags": ["miku", "vocaloid"], "width": 1200, "height": 800, "illust_type": "0", "rank": 1},
				{"illust_id": 102, "tags": ["landscape"], "width": 800, "height": 1200, "illust_type": 2, "rank": 2}
			],
			"mode": "daily", "content": "illust", "date": "20240101", "page": 1,
			"prev": false, "next": 2, "rank_total": 500
		}`)
	}))

	resp, err := client.Ranking(context.Background(), "20240101", "daily", "illust", 1)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/ranking.php", got.URL.Path)
	assert.Equal(t, "daily", got.URL.Query().Get("mode"))
	assert.Equal(t, "illust", got.URL.Query().Get("content"))
	assert.Equal(t, "20240101", got.URL.Query().Get("date"))
	assert.Equal(t, "json", got.URL.Query().Get("format"))
	assert.False(t, got.URL.Query().Has("p"), "page 1 has no page parameter")
	assert.Equal(t, "PHPSESSID=abc", got.Header.Get("Cookie"))
	assert.Equal(t, Referer, got.Header.Get("Referer"))
	assert.Equal(t, config.DefaultUserAgent, got.Header.Get("User-Agent"))

	require.Len(t, resp.Contents, 2)
	assert.Equal(t, int64(101), resp.Contents[0].IllustID)
	assert.Equal(t, FlexInt(0), resp.Contents[0].IllustType)
	assert.Equal(t, FlexInt(2), resp.Contents[1].IllustType)
	assert.True(t, resp.HasNext())
	assert.Equal(t, 500, resp.RankTotal)
	assert.JSONEq(t, `{"mode":"daily","content":"illust","date":"20240101","page":1,"prev":false,"next":2,"rank_total":500}`,
		string(resp.RawMeta()))
}

func TestRankingLastPage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("p"))
		fmt.Fprint(w, `{"contents": [], "page": 3, "next": false}`)
	}))

	resp, err := client.Ranking(context.Background(), "20240101", "daily", "illust", 3)
	require.NoError(t, err)
	assert.False(t, resp.HasNext())
	assert.Empty(t, resp.Contents)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   errs.ErrorType
	}{
		{http.StatusTooManyRequests, errs.ErrorTypeRateLimit},
		{http.StatusForbidden, errs.ErrorTypeAuth},
		{http.StatusNotFound, errs.ErrorTypeNotFound},
		{http.StatusBadGateway, errs.ErrorTypeServerError},
		{http.StatusTeapot, errs.ErrorTypeHTTP},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			_, err := client.IllustDetail(context.Background(), 1)
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.TypeOf(err))

			_, err = client.Download(context.Background(), client.BaseURL()+"/img/1.jpg", &bytes.Buffer{})
			assert.Equal(t, tt.want, errs.TypeOf(err))
		})
	}
}

func TestHTMLInsteadOfJSON(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html><html><head><title>pixiv login</title></head><body></body></html>`)
	}))

	_, err := client.Ranking(context.Background(), "", "daily", "all", 1)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
	assert.Contains(t, err.Error(), "pixiv login")
}

func TestMalformedJSON(t *testing.T) {
	log := logger.NewTestLogger()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"contents": [`)
	}))
	defer server.Close()
	client := NewClient(config.PixivConfig{BaseURL: server.URL}, log)

	_, err := client.Ranking(context.Background(), "", "daily", "all", 1)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
	assert.True(t, log.HasMessage("failed to parse JSON response"))
}

func TestIllustEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/illust/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.pixiv.net/artworks/7", r.Header.Get("Referer"))
		fmt.Fprint(w, `{"error": false, "message": "", "body": {
			"illustId": "7", "illustTitle": "t", "pageCount": 3, "width": 10, "height": 20, "illustType": 0,
			"urls": {"original": "", "regular": "https://i.example/r/7_p0.png", "small": "https://i.example/s/7_p0.jpg"},
			"tags": {"tags": [{"tag": "a"}, {"tag": "b"}]}
		}}`)
	})
	mux.HandleFunc("/ajax/illust/7/pages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": false, "body": [
			{"urls": {"original": "https://i.example/o/7_p0.png"}, "width": 10, "height": 20},
			{"urls": {"original": "https://i.example/o/7_p1.jpg"}, "width": 10, "height": 20}
		]}`)
	})
	mux.HandleFunc("/ajax/illust/8/ugoira_meta", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": false, "body": {
			"src": "https://i.example/8_ugoira600x600.zip",
			"originalSrc": "https://i.example/8_ugoira1920x1080.zip",
			"mime_type": "image/jpeg",
			"frames": [{"file": "000000.jpg", "delay": 80}, {"file": "000001.jpg", "delay": 120}]
		}}`)
	})
	mux.HandleFunc("/ajax/illust/9", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": true, "message": "deleted", "body": []}`)
	})
	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	detail, err := client.IllustDetail(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, detail.PageCount)
	assert.Equal(t, "https://i.example/r/7_p0.png", detail.URLs.Best())
	assert.Equal(t, []string{"a", "b"}, detail.Tags.Names())

	pages, err := client.IllustPages(ctx, 7)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "jpg", ExtFromURL(pages[1].URLs.Best()))

	meta, err := client.UgoiraMeta(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, "https://i.example/8_ugoira1920x1080.zip", meta.ArchiveURL())
	assert.Len(t, meta.Frames, 2)
	assert.Equal(t, 120, meta.Frames[1].Delay)

	_, err = client.IllustDetail(ctx, 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deleted")
}

func TestDownload(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 4096)
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, Referer, r.Header.Get("Referer"))
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		_, _ = w.Write(payload)
	}))

	var buf bytes.Buffer
	n, err := client.Download(context.Background(), client.BaseURL()+"/img/1_p0.png", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, buf.Bytes())
}

func TestDownloadTruncated(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))

	_, err := client.Download(context.Background(), client.BaseURL()+"/img/1_p0.png", &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errs.IsRetryable(errs.TypeOf(err)))
}

func TestDownloadTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(config.PixivConfig{BaseURL: url}, logger.NewTestLogger())
	_, err := client.Download(context.Background(), url+"/img/1.jpg", &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.TypeOf(err))
}

func TestCancelledContext(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.IllustDetail(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRefusalKeepsMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/illust/11/pages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": true, "message": "restricted", "body": []}`)
	})
	mux.HandleFunc("/ajax/illust/11/ugoira_meta", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": true, "message": "restricted", "body": []}`)
	})
	mux.HandleFunc("/ajax/illust/12", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": false, "body": []}`)
	})
	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	_, err := client.IllustPages(ctx, 11)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeHTTP))
	assert.Contains(t, err.Error(), "restricted")

	_, err = client.UgoiraMeta(ctx, 11)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restricted")

	_, err = client.IllustDetail(ctx, 12)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeParsing))
}
