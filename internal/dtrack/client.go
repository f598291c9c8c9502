package dtrack

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/daimoniac/dtrack-upload/internal/errors"
	"github.com/daimoniac/dtrack-upload/internal/observability"
)

const (
	apiKeyHeader     = "X-API-Key"
	totalCountHeader = "X-Total-Count"
	userAgent        = "dtrack-upload"
)

// Config configures the Dependency-Track client
type Config struct {
	BaseURL string
	APIKey  string
	// CACert is a PEM bundle. When set it replaces the system trust store.
	CACert  []byte
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client talks to the Dependency-Track REST API. Every call is independent:
// no caching, no retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Dependency-Track client
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.NewConfigurationf("invalid Dependency-Track URL %q", cfg.BaseURL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if len(cfg.CACert) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cfg.CACert) {
			return nil, errors.NewConfigurationf("CA file does not contain any PEM certificate")
		}
		transport.TLSClientConfig = &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger:  logger,
		metrics: observability.GetMetrics(),
	}, nil
}

// BaseURL returns the normalized server URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends one request. Transport failures come back as transient errors and
// non-2xx answers as *errors.StatusError; the response is returned in both
// success and status-error cases.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) (*response, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("sending request", "operation", op, "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	c.metrics.APIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.APIRequests.WithLabelValues(op, "error").Inc()
		return nil, errors.NewTransient(err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	c.metrics.APIRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransient(fmt.Errorf("failed to read response body: %w", err))
	}

	c.logger.Debug("received response",
		"operation", op,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	out := &response{status: resp.StatusCode, header: resp.Header, body: data}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
		return out, errors.NewStatusError(resp.StatusCode, reason, string(data))
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, payload any) (*response, error) {
	if payload == nil {
		return c.do(ctx, op, method, path, nil, "")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, op, method, path, bytes.NewReader(data), "application/json")
}

// LookupProjectID resolves a project UUID. With a version it uses the exact
// lookup endpoint; without one it searches by name and fails with
// ErrAmbiguousProject when more than one project matches. An unknown project
// yields an empty string and no error.
func (c *Client) LookupProjectID(ctx context.Context, name, version string) (string, error) {
	if version == "" {
		return c.lookupProjectIDByName(ctx, name)
	}

	query := url.Values{}
	query.Set("name", name)
	query.Set("version", version)

	target := name + "@" + version
	resp, err := c.doJSON(ctx, "lookup_project", http.MethodGet, "/api/v1/project/lookup?"+query.Encode(), nil)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "", nil
		}
		return "", errors.Wrap(errors.ErrProjectNotFound, "lookup project", target, err)
	}
	if len(bytes.TrimSpace(resp.body)) == 0 {
		return "", nil
	}

	var project Project
	if err := json.Unmarshal(resp.body, &project); err != nil {
		return "", errors.Wrap(errors.ErrProjectNotFound, "lookup project", target, fmt.Errorf("failed to parse response: %w", err))
	}
	return project.UUID, nil
}

func (c *Client) lookupProjectIDByName(ctx context.Context, name string) (string, error) {
	query := url.Values{}
	query.Set("name", name)

	resp, err := c.doJSON(ctx, "lookup_project_by_name", http.MethodGet, "/api/v1/project?"+query.Encode(), nil)
	if err != nil {
		return "", errors.Wrap(errors.ErrProjectNotFound, "lookup project", name, err)
	}

	if total := resp.header.Get(totalCountHeader); total != "" {
		count, err := strconv.Atoi(strings.TrimSpace(total))
		if err == nil && count > 1 {
			return "", &errors.OperationError{Kind: errors.ErrAmbiguousProject, Op: "lookup project", Target: name}
		}
	}

	if len(bytes.TrimSpace(resp.body)) == 0 {
		return "", nil
	}

	var projects []Project
	if err := json.Unmarshal(resp.body, &projects); err != nil {
		return "", errors.Wrap(errors.ErrProjectNotFound, "lookup project", name, fmt.Errorf("failed to parse response: %w", err))
	}
	switch len(projects) {
	case 0:
		return "", nil
	case 1:
		return projects[0].UUID, nil
	default:
		// the total-count header is missing on some proxies
		return "", &errors.OperationError{Kind: errors.ErrAmbiguousProject, Op: "lookup project", Target: name}
	}
}

// GetProject fetches the full project model
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	resp, err := c.doJSON(ctx, "get_project", http.MethodGet, "/api/v1/project/"+url.PathEscape(projectID), nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrProjectNotFound, "get project", projectID, err)
	}

	var project Project
	if err := json.Unmarshal(resp.body, &project); err != nil {
		return nil, errors.Wrap(errors.ErrProjectNotFound, "get project", projectID, fmt.Errorf("failed to parse response: %w", err))
	}
	return &project, nil
}

// SubmitBom uploads a BOM as a multipart form and returns the processing token
func (c *Client) SubmitBom(ctx context.Context, target Target, bom []byte) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for _, field := range target.formFields() {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return "", errors.Wrap(errors.ErrBomSubmission, "submit bom", target.String(), err)
		}
	}
	if err := form.WriteField("bom", string(bom)); err != nil {
		return "", errors.Wrap(errors.ErrBomSubmission, "submit bom", target.String(), err)
	}
	if err := form.Close(); err != nil {
		return "", errors.Wrap(errors.ErrBomSubmission, "submit bom", target.String(), err)
	}

	resp, err := c.do(ctx, "submit_bom", http.MethodPost, "/api/v1/bom", &buf, form.FormDataContentType())
	if err != nil {
		return "", errors.Wrap(errors.ErrBomSubmission, "submit bom", target.String(), err)
	}

	var token tokenResponse
	if err := json.Unmarshal(resp.body, &token); err != nil {
		return "", errors.Wrap(errors.ErrBomSubmission, "submit bom", target.String(), fmt.Errorf("failed to parse response: %w", err))
	}
	if token.Token == "" {
		return "", errors.Wrap(errors.ErrBomSubmission, "submit bom", target.String(), fmt.Errorf("response did not contain a token"))
	}
	return token.Token, nil
}

// PollProcessing reports whether the server is still processing the BOM
// behind token. It never retries.
func (c *Client) PollProcessing(ctx context.Context, token string) (bool, error) {
	resp, err := c.doJSON(ctx, "poll_processing", http.MethodGet, "/api/v1/event/token/"+url.PathEscape(token), nil)
	if err != nil {
		return false, errors.Wrap(errors.ErrPoll, "poll processing", token, err)
	}

	var status processingResponse
	if err := json.Unmarshal(resp.body, &status); err != nil {
		return false, errors.Wrap(errors.ErrPoll, "poll processing", token, fmt.Errorf("failed to parse response: %w", err))
	}
	return status.Processing, nil
}

// GetCurrentMetrics returns the project's current metrics. An empty body means
// metrics were never calculated and yields a zero snapshot.
func (c *Client) GetCurrentMetrics(ctx context.Context, projectID string) (*Metrics, error) {
	path := "/api/v1/metrics/project/" + url.PathEscape(projectID) + "/current"
	resp, err := c.doJSON(ctx, "get_metrics", http.MethodGet, path, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrMetricsFetch, "get metrics", projectID, err)
	}

	metrics := &Metrics{}
	if len(bytes.TrimSpace(resp.body)) == 0 {
		return metrics, nil
	}
	if err := json.Unmarshal(resp.body, metrics); err != nil {
		return nil, errors.Wrap(errors.ErrMetricsFetch, "get metrics", projectID, fmt.Errorf("failed to parse response: %w", err))
	}
	return metrics, nil
}

// UpdateProject sends a partial update; only non-nil fields are transmitted
func (c *Client) UpdateProject(ctx context.Context, projectID string, patch ProjectPatch) (*Project, error) {
	resp, err := c.doJSON(ctx, "update_project", http.MethodPatch, "/api/v1/project/"+url.PathEscape(projectID), patch)
	if err != nil {
		return nil, errors.Wrap(errors.ErrProjectUpdate, "update project", projectID, err)
	}

	var project Project
	if err := json.Unmarshal(resp.body, &project); err != nil {
		return nil, errors.Wrap(errors.ErrProjectUpdate, "update project", projectID, fmt.Errorf("failed to parse response: %w", err))
	}
	return &project, nil
}

// CreateProject creates a project explicitly and returns its UUID
func (c *Client) CreateProject(ctx context.Context, project NewProject) (string, error) {
	target := project.Name + "@" + project.Version
	resp, err := c.doJSON(ctx, "create_project", http.MethodPut, "/api/v1/project", project)
	if err != nil {
		return "", errors.Wrap(errors.ErrProjectCreation, "create project", target, err)
	}
	if resp.status != http.StatusCreated {
		return "", errors.Wrap(errors.ErrProjectCreation, "create project", target,
			fmt.Errorf("unexpected status code: %d", resp.status))
	}

	var created Project
	if err := json.Unmarshal(resp.body, &created); err != nil {
		return "", errors.Wrap(errors.ErrProjectCreation, "create project", target, fmt.Errorf("failed to parse response: %w", err))
	}
	return created.UUID, nil
}

// ServerVersion reads the server's application version
func (c *Client) ServerVersion(ctx context.Context) (*semver.Version, error) {
	resp, err := c.doJSON(ctx, "server_version", http.MethodGet, "/api/version", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read server version: %w", err)
	}

	var about versionResponse
	if err := json.Unmarshal(resp.body, &about); err != nil {
		return nil, fmt.Errorf("failed to parse server version: %w", err)
	}

	version, err := semver.NewVersion(about.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid server version %q: %w", about.Version, err)
	}
	return version, nil
}
