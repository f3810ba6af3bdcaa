// Package client talks to the datamart HTTP API: profiling, upload, status.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/datamart/webapp/internal/models"
	"go.uber.org/zap"
)

const (
	// XSRFCookie is the cookie holding the anti-forgery token.
	XSRFCookie = "_xsrf"
	// XSRFParam is the query parameter the token is sent back in.
	XSRFParam = "_xsrf"

	defaultUserAgent = "Datamart"
)

// API paths.
const (
	PathStatus     = "/status"
	PathStatistics = "/api/statistics"
	PathProfile    = "/api/v1/profile"
	PathUpload     = "/api/v1/upload"
	PathDownload   = "/download/"
)

// HTTPError is returned for any answer that is not a success.
type HTTPError struct {
	StatusCode int
	StatusText string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("Error %d: %s", e.StatusCode, e.StatusText)
}

// Client is a datamart API client. It keeps cookies between calls so the XSRF
// token issued by the server is sent back on every request.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	log       *zap.Logger
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. A cookie jar is added if it has none.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(cl *Client) {
		cl.log = log
	}
}

// WithUserAgent overrides the User-Agent header. An empty value keeps the default.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:   u,
		http:      &http.Client{},
		log:       zap.NewNop(),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	c.log = c.log.Named("client")
	return c, nil
}

// xsrfToken returns the current token, or "" before the server issued one.
func (c *Client) xsrfToken() string {
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		if ck.Name == XSRFCookie {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	q := url.Values{}
	q.Set(XSRFParam, c.xsrfToken())
	u.RawQuery = q.Encode()
	return u.String()
}

// DownloadURL is the direct link to a stored dataset.
func (c *Client) DownloadURL(id string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + PathDownload + url.PathEscape(id)
	return u.String()
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		text := http.StatusText(resp.StatusCode)
		if text == "" {
			text = resp.Status
		}
		c.log.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode))
		return nil, &HTTPError{StatusCode: resp.StatusCode, StatusText: text, Body: string(body)}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Status fetches the coordinator status.
func (c *Client) Status(ctx context.Context) (*models.StatusReport, error) {
	var report models.StatusReport
	if err := c.getJSON(ctx, PathStatus, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Statistics fetches recent discoveries and per-source dataset counts.
func (c *Client) Statistics(ctx context.Context) (*models.Statistics, error) {
	var stats models.Statistics
	if err := c.getJSON(ctx, PathStatistics, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// formBody builds a multipart body from fields and an optional file part.
func formBody(fields [][2]string, file *models.Blob) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if file != nil {
		part, err := mw.CreateFormFile("file", file.Name)
		if err != nil {
			return nil, "", fmt.Errorf("creating form file: %w", err)
		}
		r, err := file.Open()
		if err != nil {
			return nil, "", fmt.Errorf("opening %s: %w", file.Name, err)
		}
		_, err = io.Copy(part, r)
		r.Close()
		if err != nil {
			return nil, "", fmt.Errorf("copying file into multipart: %w", err)
		}
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// primeXSRF fetches the status once when no token was issued yet, so that
// unsafe requests carry one.
func (c *Client) primeXSRF(ctx context.Context) error {
	if c.xsrfToken() != "" {
		return nil
	}
	_, err := c.Status(ctx)
	return err
}

func (c *Client) postForm(ctx context.Context, path string, fields [][2]string, file *models.Blob) (*http.Response, error) {
	if err := c.primeXSRF(ctx); err != nil {
		return nil, err
	}
	body, contentType, err := formBody(fields, file)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}

// Profile asks the server to infer the columns of a file or URL.
func (c *Client) Profile(ctx context.Context, in models.ProfileRequest) (*models.ProfileData, error) {
	fields := [][2]string{{"name", in.Name}}
	if in.Address != "" {
		fields = append(fields, [2]string{"address", in.Address})
	}
	resp, err := c.postForm(ctx, PathProfile, fields, in.File)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var data models.ProfileData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	c.log.Debug("profile received", zap.String("name", in.Name), zap.Int("columns", len(data.Columns)))
	return &data, nil
}

// Upload submits a dataset.
func (c *Client) Upload(ctx context.Context, data models.UploadData) error {
	fields := [][2]string{
		{"name", data.Name},
		{"description", data.Description},
		{"updatedColumns", data.UpdatedColumns},
	}
	if data.Address != "" {
		fields = append(fields, [2]string{"address", data.Address})
	}
	resp, err := c.postForm(ctx, PathUpload, fields, data.File)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	c.log.Info("dataset uploaded", zap.String("name", data.Name))
	return nil
}
