package pixiv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pixivrank/pkg/config"
	errs "pixivrank/pkg/errors"
	"pixivrank/pkg/logger"
)

// Client talks to pixiv's listing, ajax and image endpoints
type Client struct {
	apiClient      *http.Client
	downloadClient *http.Client
	headers        map[string]string
	baseURL        string
	logger         logger.Logger
}

// NewClient creates a client from the pixiv configuration
func NewClient(cfg config.PixivConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = BaseURL
	}
	apiTimeout := cfg.APITimeout
	if apiTimeout <= 0 {
		apiTimeout = 15 * time.Second
	}
	downloadTimeout := cfg.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = 60 * time.Second
	}

	c := &Client{
		apiClient:      &http.Client{Timeout: apiTimeout},
		downloadClient: &http.Client{Timeout: downloadTimeout},
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept-Language": "zh-TW,zh;q=0.9,ja;q=0.8,en;q=0.7",
		},
		baseURL: baseURL,
		logger:  log,
	}
	if cfg.Cookie != "" {
		c.headers["Cookie"] = cfg.Cookie
	}
	return c
}

// SetHeader sets a header sent with every request
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// BaseURL returns the origin the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ranking fetches one page of a ranking listing
func (c *Client) Ranking(ctx context.Context, date, mode, content string, page int) (*RankingResponse, error) {
	endpoint := RankingURL(c.baseURL, date, mode, content, page)

	var resp RankingResponse
	if err := c.getJSON(ctx, endpoint, Referer, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IllustDetail fetches the metadata of one artwork
func (c *Client) IllustDetail(ctx context.Context, id int64) (*IllustDetail, error) {
	var body IllustDetail
	if err := c.getAjax(ctx, IllustURL(c.baseURL, id), id, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// IllustPages fetches the per-page image URLs of a multi-page artwork
func (c *Client) IllustPages(ctx context.Context, id int64) ([]IllustPage, error) {
	var pages []IllustPage
	if err := c.getAjax(ctx, PagesURL(c.baseURL, id), id, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// UgoiraMeta fetches the frame archive location and frame delays of an animation
func (c *Client) UgoiraMeta(ctx context.Context, id int64) (*UgoiraMeta, error) {
	var body UgoiraMeta
	if err := c.getAjax(ctx, UgoiraMetaURL(c.baseURL, id), id, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Download streams url into w and returns the number of bytes written.
// A body shorter than the announced Content-Length is an integrity error.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, url, Referer)
	if err != nil {
		return 0, err
	}

	resp, err := c.do(ctx, c.downloadClient, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return 0, err
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return n, errs.Wrap(errs.ErrorTypeIntegrity, resp.StatusCode, err,
				fmt.Sprintf("truncated body: got %d of %d bytes", n, resp.ContentLength))
		}
		return n, errs.Wrap(errs.ErrorTypeNetwork, 0, err, "download interrupted")
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, errs.New(errs.ErrorTypeIntegrity, resp.StatusCode,
			"size mismatch: got %d of %d bytes", n, resp.ContentLength)
	}

	return n, nil
}

// getAjax decodes an ajax envelope, surfaces its error flag and then decodes
// the body into target
func (c *Client) getAjax(ctx context.Context, url string, id int64, target interface{}) error {
	var env envelope
	if err := c.getJSON(ctx, url, ArtworkURL(id), &env); err != nil {
		return err
	}
	if env.Error {
		return errs.New(errs.ErrorTypeHTTP, http.StatusOK, "pixiv refused illust %d: %s", id, env.Message)
	}
	if err := json.Unmarshal(env.Body, target); err != nil {
		return errs.Wrap(errs.ErrorTypeParsing, http.StatusOK, err, fmt.Sprintf("failed to parse body of illust %d", id))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, url, referer string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, 0, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Referer", referer)
	return req, nil
}

// do performs the request and converts transport failures into network errors
func (c *Client) do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":      req.Method,
			"url":         req.URL.String(),
			"error":       err.Error(),
			"duration_ms": duration.Milliseconds(),
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, 0, err, "request failed")
	}

	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, duration)
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, url, referer string, target interface{}) error {
	req, err := c.newRequest(ctx, url, referer)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, c.apiClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.Wrap(errs.ErrorTypeNetwork, 0, err, "failed to read response body")
	}

	if looksLikeHTML(resp, body) {
		return c.htmlError(url, body)
	}

	if err := json.Unmarshal(body, target); err != nil {
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"error":        err.Error(),
			"body_preview": preview(body),
		})
		return errs.Wrap(errs.ErrorTypeParsing, resp.StatusCode, err, "failed to parse JSON response")
	}

	return nil
}

// checkResponseStatus maps every non-200 status to a typed error
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return errs.FromStatus(resp.StatusCode, resp.Request.URL.String())
}

// htmlError reports an HTML page where JSON was expected, typically a login
// wall or a maintenance notice
func (c *Client) htmlError(url string, body []byte) error {
	title := ""
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	c.logger.WarnWithFields("received HTML instead of JSON", map[string]interface{}{
		"url":   url,
		"title": title,
	})
	return errs.New(errs.ErrorTypeParsing, http.StatusOK, "expected JSON but received HTML page %q", title)
}

func looksLikeHTML(resp *http.Response, body []byte) bool {
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("<"))
}

func preview(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
