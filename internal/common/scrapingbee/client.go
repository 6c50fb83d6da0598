// internal/common/scrapingbee/client.go
package scrapingbee

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"signal-workflows/internal/common/config"
	"signal-workflows/internal/common/errors"
	httpclient "signal-workflows/internal/common/http"
	"signal-workflows/internal/common/logger"
)

// Params are ScrapingBee request parameters. Nested values (extract rules, JS scenarios) are
// sent JSON encoded.
type Params map[string]interface{}

// Client calls the ScrapingBee HTML API.
type Client struct {
	http    *httpclient.Client
	apiKey  string
	baseURL string
	logger  logger.Logger
}

func NewClient(cfg config.ScrapingBeeConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.With(map[string]interface{}{"component": "scrapingbee"})

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://app.scrapingbee.com/api/v1/"
	}
	return &Client{
		http: httpclient.NewClient(httpclient.Options{
			Timeout:    config.Seconds(cfg.Timeout),
			MaxRetries: 1,
			Logger:     log,
		}),
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		logger:  log,
	}
}

// Get scrapes target and returns the raw response body.
func (c *Client) Get(ctx context.Context, target string, params Params) ([]byte, error) {
	query, err := encodeParams(params)
	if err != nil {
		return nil, errors.NewScrapingFailedError(target, err).WithMetadata("stage", "encode")
	}
	query.Set("api_key", c.apiKey)
	query.Set("url", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.NewScrapingFailedError(target, err)
	}

	c.logger.Debug("Scraping page", map[string]interface{}{"url": target})

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, errors.NewScrapingTimeoutError(target)
		}
		return nil, errors.NewScrapingFailedError(target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewScrapingFailedError(target, err)
	}
	return data, nil
}

// GetJSON scrapes target with json_response enabled and decodes the envelope into out.
func (c *Client) GetJSON(ctx context.Context, target string, params Params, out interface{}) error {
	if params == nil {
		params = Params{}
	}
	params["json_response"] = true

	data, err := c.Get(ctx, target, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewScrapingFailedError(target, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func encodeParams(params Params) (url.Values, error) {
	values := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := params[k].(type) {
		case string:
			values.Set(k, v)
		case bool:
			values.Set(k, strconv.FormatBool(v))
		case int:
			values.Set(k, strconv.Itoa(v))
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("param %s: %w", k, err)
			}
			values.Set(k, string(data))
		}
	}
	return values, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
