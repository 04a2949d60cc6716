package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/ports"
)

// SearchPageSize is the result size requested from the search endpoint.
const SearchPageSize = 100

// Endpoint labels reported to ports.Metrics.
const (
	EndpointSearch  = "search"
	EndpointPackage = "package"
	EndpointTarball = "tarball"
)

// ClientConfig configures the registry HTTP client.
type ClientConfig struct {
	// Timeout bounds each request, including reading the body.
	Timeout time.Duration
	// UserAgent is the User-Agent header value.
	UserAgent string
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:   60 * time.Second,
		UserAgent: "usefultools",
	}
}

// PackageDocument is the subset of an npm package document the resolver reads.
type PackageDocument struct {
	Name     string                   `json:"name"`
	DistTags map[string]string        `json:"dist-tags"`
	Versions map[string]VersionRecord `json:"versions"`
}

// VersionRecord is one entry of PackageDocument.Versions.
type VersionRecord struct {
	Version string `json:"version"`
	Dist    *Dist  `json:"dist"`
}

// Dist holds distribution info for a version.
type Dist struct {
	Tarball string `json:"tarball"`
}

type searchResponse struct {
	Objects []struct {
		Package struct {
			Name string `json:"name"`
		} `json:"package"`
	} `json:"objects"`
}

// Client talks to an npm-compatible registry. It never retries.
type Client struct {
	http    *resty.Client
	metrics ports.Metrics
	logger  ports.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientMetrics records every request.
func WithClientMetrics(m ports.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClientLogger logs every request at debug level.
func WithClientLogger(l ports.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a registry client.
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	hc := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRetryCount(0)

	c := &Client{http: hc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns the package names matching text, in registry order.
func (c *Client) Search(ctx context.Context, registryURL, text string) ([]string, error) {
	body, err := c.get(ctx, EndpointSearch, registryURL+"/-/v1/search", map[string]string{
		"text": text,
		"size": strconv.Itoa(SearchPageSize),
	})
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fault.Wrap(fault.KindDecode, err, "malformed search response").WithStep("search")
	}

	names := make([]string, 0, len(resp.Objects))
	for _, o := range resp.Objects {
		if o.Package.Name != "" {
			names = append(names, o.Package.Name)
		}
	}
	return names, nil
}

// Document fetches the package document for name.
func (c *Client) Document(ctx context.Context, registryURL, name string) (*PackageDocument, error) {
	body, err := c.get(ctx, EndpointPackage, registryURL+"/"+escapePackageName(name), nil)
	if err != nil {
		return nil, withPackageStep(err, name, StepPackageDocument)
	}

	var doc PackageDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fault.Wrap(fault.KindDecode, err, "malformed package document").
			WithPackage(name).WithStep(StepPackageDocument)
	}
	return &doc, nil
}

// Download fetches a tarball.
func (c *Client) Download(ctx context.Context, tarballURL string) ([]byte, error) {
	return c.get(ctx, EndpointTarball, tarballURL, nil)
}

func (c *Client) get(ctx context.Context, endpoint, url string, query map[string]string) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if endpoint != EndpointTarball {
		req.SetHeader("Accept", "application/json")
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	start := time.Now()
	resp, err := req.Get(url)
	elapsed := time.Since(start)

	status := 0
	if resp != nil && err == nil {
		status = resp.StatusCode()
	}
	if c.metrics != nil {
		c.metrics.RegistryRequest(endpoint, status, elapsed)
	}
	if c.logger != nil {
		c.logger.Debug(ctx, "registry request",
			ports.F("endpoint", endpoint), ports.F("url", url),
			ports.F("status", status), ports.F("elapsed", elapsed.String()))
	}

	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, endpoint+" request failed")
	}
	if !resp.IsSuccess() {
		return nil, fault.New(fault.KindTransport, fmt.Sprintf("%s request failed: status %d", endpoint, resp.StatusCode()))
	}
	return resp.Body(), nil
}

// escapePackageName encodes the scope separator of "@scope/name" the way
// npm clients do.
func escapePackageName(name string) string {
	return strings.Replace(name, "/", "%2F", 1)
}

func withPackageStep(err error, name, step string) error {
	if fe, ok := err.(*fault.Error); ok {
		return fe.WithPackage(name).WithStep(step)
	}
	return err
}
