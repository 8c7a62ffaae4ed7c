package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cmusatyalab/sinfonia/internal/apierr"
	"github.com/cmusatyalab/sinfonia/internal/model"
)

// HTTPAdapterConfig points at the cluster-management sidecar a production
// Tier-2 delegates Helm install/uninstall and resource queries to (the
// actual Kubernetes client lives there, out of process; this adapter is a
// thin HTTP surface over it).
type HTTPAdapterConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPAdapter is the production Adapter: it proxies Get/ExpireInactive/
// GetResources to a cluster-management sidecar over HTTP rather than
// shelling out to kubectl/helm itself, so Tier-2 stays free of a
// client-go dependency and can run against any sidecar speaking this
// small contract.
type HTTPAdapter struct {
	cfg    HTTPAdapterConfig
	client *http.Client
}

// NewHTTPAdapter constructs an HTTPAdapter. client defaults to one built
// from cfg.Timeout (or http.DefaultClient's 0-means-no-timeout behavior
// is avoided: a zero Timeout becomes 30s).
func NewHTTPAdapter(cfg HTTPAdapterConfig, client *http.Client) *HTTPAdapter {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPAdapter{cfg: cfg, client: client}
}

func (a *HTTPAdapter) Get(ctx context.Context, recipeUUID, applicationKey string, create bool) (*Deployment, error) {
	endpoint := fmt.Sprintf("%s/deployments/%s/%s", a.cfg.BaseURL, url.PathEscape(recipeUUID), url.PathEscape(applicationKey))
	method := http.MethodGet
	if create {
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apierr.Upstream("cluster sidecar request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.Upstream(fmt.Sprintf("cluster sidecar returned %d", resp.StatusCode), nil)
	}
	var d Deployment
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, apierr.Upstream("decode cluster sidecar response", err)
	}
	return &d, nil
}

func (a *HTTPAdapter) Expire(ctx context.Context, recipeUUID, applicationKey string) error {
	endpoint := fmt.Sprintf("%s/deployments/%s/%s", a.cfg.BaseURL, url.PathEscape(recipeUUID), url.PathEscape(applicationKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return apierr.Upstream("cluster sidecar request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.Upstream(fmt.Sprintf("cluster sidecar returned %d", resp.StatusCode), nil)
	}
	return nil
}

func (a *HTTPAdapter) ExpireInactive(ctx context.Context) (int, error) {
	endpoint := a.cfg.BaseURL + "/deployments/expire-inactive"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, apierr.Upstream("cluster sidecar request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, apierr.Upstream(fmt.Sprintf("cluster sidecar returned %d", resp.StatusCode), nil)
	}
	var body struct {
		Expired int `json:"expired"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, apierr.Upstream("decode cluster sidecar response", err)
	}
	return body.Expired, nil
}

func (a *HTTPAdapter) GetResources(ctx context.Context) (model.Resources, error) {
	endpoint := a.cfg.BaseURL + "/resources"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apierr.Upstream("cluster sidecar request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.Upstream(fmt.Sprintf("cluster sidecar returned %d", resp.StatusCode), nil)
	}
	var resources model.Resources
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		return nil, apierr.Upstream("decode cluster sidecar response", err)
	}
	return resources, nil
}
