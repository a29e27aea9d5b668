package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/photosync/photosync/internal/models"
)

const probeTimeout = 2 * time.Second

// errNotRunning means no agent answered on the status address
var errNotRunning = errors.New("agent not running")

// statusClient talks to the status API of a running agent so that one-shot
// commands do not race it for the running state.
type statusClient struct {
	base string
	http *http.Client
}

func newStatusClient(addr string) *statusClient {
	if addr == "" {
		return nil
	}
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &statusClient{base: strings.TrimRight(base, "/"), http: &http.Client{}}
}

// alive reports whether an agent answers on the status address
func (c *statusClient) alive(ctx context.Context) bool {
	if c == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *statusClient) status(ctx context.Context) (models.SyncStatusResponse, error) {
	var out models.SyncStatusResponse
	err := c.call(ctx, http.MethodGet, "/api/sync/status", &out)
	return out, err
}

func (c *statusClient) sync(ctx context.Context) (models.SyncRunResponse, error) {
	var out models.SyncRunResponse
	err := c.call(ctx, http.MethodPost, "/api/sync", &out)
	return out, err
}

func (c *statusClient) call(ctx context.Context, method, path string, out interface{}) error {
	if c == nil {
		return errNotRunning
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errNotRunning, err)
	}
	defer resp.Body.Close()

	// 409 and 503 still carry a sync result
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict && resp.StatusCode != http.StatusServiceUnavailable {
		var e models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("agent returned %d: %s", resp.StatusCode, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
