package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

// HTTPCatalog talks to the external specification service. It is normally
// wrapped in a CachedCatalog; the service is treated as briefly unavailable
// at process start (WaitReady) and immutable afterwards.
type HTTPCatalog struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func NewHTTPCatalog(baseURL string, baseLog *logger.Logger) *HTTPCatalog {
	return &HTTPCatalog{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     baseLog.With("client", "SchemaCatalog"),
	}
}

// WaitReady polls the specification service with exponential backoff until
// it answers or ctx expires. Called once at boot before any upload is
// accepted.
func (c *HTTPCatalog) WaitReady(ctx context.Context) error {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second
	for {
		_, err := c.ListFrameworks(ctx)
		if err == nil {
			return nil
		}
		c.log.Warn("specification service not ready, retrying", "error", err, "backoff", backoff.String())
		select {
		case <-ctx.Done():
			return fmt.Errorf("specification service never became ready: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *HTTPCatalog) FrameworkSpecification(ctx context.Context, frameworkID string) (*FrameworkSpecification, error) {
	var spec FrameworkSpecification
	status, err := c.getJSON(ctx, "/specifications/frameworks/"+frameworkID, &spec)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, frameworkID)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("specification service returned %d for framework %s", status, frameworkID)
	}
	return &spec, nil
}

func (c *HTTPCatalog) ListFrameworks(ctx context.Context) ([]string, error) {
	var ids []string
	status, err := c.getJSON(ctx, "/specifications/frameworks", &ids)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("specification service returned %d listing frameworks", status)
	}
	return ids, nil
}

func (c *HTTPCatalog) IsFramework(ctx context.Context, id string) bool {
	_, err := c.FrameworkSpecification(ctx, id)
	return err == nil
}

func (c *HTTPCatalog) IsDataPointType(ctx context.Context, id string) bool {
	status, err := c.head(ctx, "/specifications/data-point-types/"+id)
	return err == nil && status == http.StatusOK
}

func (c *HTTPCatalog) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("specification service request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode specification service response: %w", err)
	}
	return resp.StatusCode, nil
}

func (c *HTTPCatalog) head(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("specification service request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
