// Package host is the client for the SOAR host runtime's own REST API:
// platform discovery, asset metadata, and persistence of ingested
// containers and artifacts. The connector consumes this API at its
// interface boundary and owns none of it.
package host

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Client struct {
	http    *http.Client
	baseURL string
	log     *logrus.Logger
}

// Options configures the host client. The host commonly runs with a
// self-signed certificate on localhost, so TLS verification is
// configurable.
type Options struct {
	BaseURL   string
	VerifyTLS bool
	Log       *logrus.Logger

	HTTPClient *http.Client
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
		if !opts.VerifyTLS {
			httpClient.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
	}

	log := opts.Log
	if log == nil {
		log = logrus.New()
	}

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		log:     log,
	}
}

func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error connecting to host: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading host response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("host returned status %d for %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unable to parse host response: %w", err)
		}
	}
	return nil
}

// BaseURL looks up the host's externally reachable base URL from its
// system settings.
func (c *Client) BaseURL(ctx context.Context) (string, error) {
	var info struct {
		BaseURL string `json:"base_url"`
	}
	if err := c.call(ctx, http.MethodGet, "/rest/system_info", nil, &info); err != nil {
		return "", err
	}
	if info.BaseURL == "" {
		return "", fmt.Errorf("host base URL not found in system settings, please specify it there")
	}
	return strings.TrimSuffix(info.BaseURL, "/"), nil
}

// AssetName resolves an asset id to its configured name.
func (c *Client) AssetName(ctx context.Context, assetID string) (string, error) {
	var asset struct {
		Name string `json:"name"`
	}
	if err := c.call(ctx, http.MethodGet, "/rest/asset/"+assetID, nil, &asset); err != nil {
		return "", err
	}
	if asset.Name == "" {
		return "", fmt.Errorf("asset name for id %s not found", assetID)
	}
	return asset.Name, nil
}

// AppRestURL builds the externally reachable root of this app's REST
// handler, where the bridge endpoints live.
func (c *Client) AppRestURL(ctx context.Context, appDirName, appID, assetID string) (string, error) {
	baseURL, err := c.BaseURL(ctx)
	if err != nil {
		return "", err
	}

	assetName, err := c.AssetName(ctx, assetID)
	if err != nil {
		return "", err
	}

	c.log.WithField("base_url", baseURL).Info("Using host base URL")
	return fmt.Sprintf("%s/rest/handler/%s_%s/%s", baseURL, appDirName, appID, assetName), nil
}

type saveResponse struct {
	ID int `json:"id"`
}

// SaveContainer persists a container and returns its host-assigned id.
func (c *Client) SaveContainer(ctx context.Context, container any) (int, error) {
	var resp saveResponse
	if err := c.call(ctx, http.MethodPost, "/rest/container", container, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// SaveArtifact persists an artifact and returns its host-assigned id.
func (c *Client) SaveArtifact(ctx context.Context, artifact any) (int, error) {
	var resp saveResponse
	if err := c.call(ctx, http.MethodPost, "/rest/artifact", artifact, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}
