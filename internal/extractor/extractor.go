// Package extractor fetches readable page text from the extraction service.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"page-assist/internal/apperr"
)

const (
	DefaultTimeout = 30 * time.Second
	// maxBodyBytes bounds what is read from the service.
	maxBodyBytes = 8 << 20
)

// Extractor turns a page URL into plain text.
type Extractor interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Client calls GET {baseURL}/{escaped page URL}. It never retries.
type Client struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	http      *http.Client
	log       *slog.Logger
}

// NewClient builds a Client. product names the User-Agent ("<product>/1.0").
func NewClient(log *slog.Logger, baseURL, product string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("extractor base url %q is not an absolute http(s) url", baseURL)
	}
	if product == "" {
		product = "page-assist"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(u.String(), "/"),
		userAgent: product + "/1.0",
		timeout:   timeout,
		http:      &http.Client{},
		log:       log.With("component", "extractor"),
	}, nil
}

// Fetch returns the page text. Errors carry the kinds ExtractionTimeout,
// ExtractionUpstream, ExtractionInvalid or InvalidInput.
func (c *Client) Fetch(ctx context.Context, pageURL string) (string, error) {
	const op = "extractor.Fetch"

	pageURL = strings.TrimSpace(pageURL)
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", apperr.New(apperr.InvalidInput, op, "page url must be an absolute http(s) url")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/"+url.PathEscape(pageURL), nil)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, op, err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", classify(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", classify(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := apperr.New(apperr.ExtractionUpstream, op, fmt.Sprintf("extraction service returned %d", resp.StatusCode))
		e.Status = resp.StatusCode
		return "", e
	}

	text, err := decode(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return "", apperr.Wrap(apperr.ExtractionInvalid, op, err)
	}
	c.log.Debug("page extracted", "url", pageURL, "bytes", len(body), "elapsed", time.Since(start))
	return text, nil
}

func classify(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(apperr.ExtractionTimeout, op, err)
	}
	return apperr.Wrap(apperr.ExtractionUpstream, op, err)
}

var errNoText = errors.New("extraction returned no readable text")

// decode turns a response body into text, reading PDFs page by page and
// rejecting binary payloads.
func decode(contentType string, body []byte) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", errNoText
	}
	mt := mimetype.Detect(body)
	if strings.HasPrefix(strings.ToLower(contentType), "application/pdf") || mt.Is("application/pdf") {
		text, err := extractPDF(body)
		if err != nil {
			return "", fmt.Errorf("read pdf: %w", err)
		}
		if strings.TrimSpace(text) == "" {
			return "", errNoText
		}
		return text, nil
	}
	if !isText(mt) {
		return "", fmt.Errorf("extraction returned %s, not text", mt.String())
	}
	return string(body), nil
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func extractPDF(content []byte) (string, error) {
	pdfReader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var textBuilder strings.Builder
	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}
	return textBuilder.String(), nil
}
