package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/pkg/shared/httpclient"
)

// Client is the transport to the symbol checker.
type Client interface {
	Health(ctx context.Context) error
	Callees(ctx context.Context, filePath string, line int) ([]string, error)
	ParentTypes(ctx context.Context, filePath string, line int) ([]string, error)
	References(ctx context.Context, filePath string, line int) (int, error)
}

type position struct {
	File      string `json:"file"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
}

type symbolsResponse struct {
	Items []string `json:"items"`
}

type referencesResponse struct {
	Count int `json:"count"`
}

// ErrRateLimited is returned when the request budget cannot be met before the deadline.
var ErrRateLimited = errors.New("audit rate limit wait exceeds deadline")

// HTTPClient talks JSON to a language-server bridge.
type HTTPClient struct {
	client     *resty.Client
	limiter    *rate.Limiter
	healthPath string
}

// NewHTTPClient builds the bridge client from the audit and http_client configuration.
func NewHTTPClient(logger hclog.Logger, cfg *config.Config) *HTTPClient {
	c := &HTTPClient{
		client:     httpclient.InitializeRestyClient(logger, cfg.Audit.Endpoint, &cfg.HTTPClient),
		healthPath: config.SetThen(cfg.Audit.HealthPath, config.DefaultAuditHealthPath),
	}
	if cfg.Audit.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.Audit.RateLimit), config.SetThen(cfg.Audit.Burst, 1))
	}
	return c
}

func (c *HTTPClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

func (c *HTTPClient) Health(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	resp, err := c.client.R().SetContext(ctx).Get(c.healthPath)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("health check returned %s", resp.Status())
	}
	return nil
}

func (c *HTTPClient) symbols(ctx context.Context, endpoint, filePath string, line int) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out symbolsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(position{File: filePath, Line: line}).
		SetResult(&out).
		Post(endpoint)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s returned %s", endpoint, resp.Status())
	}
	return out.Items, nil
}

func (c *HTTPClient) Callees(ctx context.Context, filePath string, line int) ([]string, error) {
	return c.symbols(ctx, "/call-hierarchy/callees", filePath, line)
}

func (c *HTTPClient) ParentTypes(ctx context.Context, filePath string, line int) ([]string, error) {
	return c.symbols(ctx, "/type-hierarchy/supertypes", filePath, line)
}

func (c *HTTPClient) References(ctx context.Context, filePath string, line int) (int, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	var out referencesResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(position{File: filePath, Line: line}).
		SetResult(&out).
		Post("/references")
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("/references returned %s", resp.Status())
	}
	return out.Count, nil
}
