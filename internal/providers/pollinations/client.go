// Package pollinations implements the image provider contract against the
// Pollinations image API.
package pollinations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	billingdomain "github.com/coverview/creditd/internal/billing/domain"
	"github.com/coverview/creditd/internal/config"
	"go.uber.org/zap"
)

type Client struct {
	log     *zap.Logger
	http    *http.Client
	baseURL string
	token   string
}

func NewClient(cfg config.Config, log *zap.Logger) billingdomain.ImageGenerator {
	return &Client{
		log:     log.Named("pollinations"),
		http:    &http.Client{Timeout: cfg.ImageTimeout},
		baseURL: strings.TrimSuffix(cfg.PollinationsBaseURL, "/"),
		token:   cfg.PollinationsToken,
	}
}

func (c *Client) Generate(ctx context.Context, params billingdomain.ImageParams) (*billingdomain.Image, error) {
	q := url.Values{}
	q.Set("model", params.Model)
	q.Set("width", strconv.Itoa(params.Width))
	q.Set("height", strconv.Itoa(params.Height))
	q.Set("seed", strconv.FormatInt(params.Seed, 10))
	q.Set("enhance", "true")
	q.Set("nologo", "true")
	q.Set("safe", "true")

	endpoint := c.baseURL + "/" + url.PathEscape(params.Prompt) + "?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pollinations request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pollinations status %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("pollinations response: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("pollinations returned empty body")
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}

	c.log.Debug("image generated",
		zap.String("model", params.Model),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &billingdomain.Image{MIME: mime, Data: data}, nil
}
