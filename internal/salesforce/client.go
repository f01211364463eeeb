// Package salesforce implements the Salesforce REST client used by the
// connector: OAuth token acquisition, list-view resolution, paginated
// list-view fetches and composite batch detail retrieval.
package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/eliziario/sf-connector/internal/secrets"
	"github.com/eliziario/sf-connector/internal/state"
	"github.com/sirupsen/logrus"
)

// Flow is the token acquisition strategy, fixed at startup for the
// asset's lifetime.
type Flow int

const (
	// FlowAuthorizationCode exchanges a stored refresh token obtained
	// through the browser-based consent flow.
	FlowAuthorizationCode Flow = iota
	// FlowPassword uses static username/password credentials.
	FlowPassword
)

// Session is the ephemeral result of a token grant. It lives only in
// memory for the duration of one action invocation and is rebuilt from
// persisted state on each cold start.
type Session struct {
	Token       string
	InstanceURL string
}

// Options configures a Client.
type Options struct {
	AssetID      string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Sandbox      bool

	// LoginURL overrides the environment-selected login host, for orgs
	// with a My Domain login endpoint.
	LoginURL string

	Store *state.Store
	Codec secrets.Codec
	Log   *logrus.Logger

	// HTTPClient overrides the default client, used by tests.
	HTTPClient *http.Client
}

// Client is the connector's Salesforce API client. It lazily acquires
// a bearer token before the first authenticated call of an invocation
// and never re-authenticates mid-invocation: a 401 surfaces as-is.
type Client struct {
	http *http.Client
	log  *logrus.Logger

	assetID      string
	clientID     string
	clientSecret string
	username     string
	password     string
	flow         Flow

	authorizeURL string
	tokenURL     string

	store *state.Store
	codec secrets.Codec

	session *Session
}

func New(opts Options) *Client {
	flow := FlowAuthorizationCode
	if opts.Username != "" {
		flow = FlowPassword
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	log := opts.Log
	if log == nil {
		log = logrus.New()
	}

	authorize, token := Endpoints(opts.Sandbox)
	if opts.LoginURL != "" {
		base := strings.TrimSuffix(opts.LoginURL, "/")
		authorize = base + "/services/oauth2/authorize"
		token = base + "/services/oauth2/token"
	}

	return &Client{
		http:         httpClient,
		log:          log,
		assetID:      opts.AssetID,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		username:     opts.Username,
		password:     opts.Password,
		flow:         flow,
		authorizeURL: authorize,
		tokenURL:     token,
		store:        opts.Store,
		codec:        opts.Codec,
	}
}

// Flow returns the configured token acquisition strategy.
func (c *Client) Flow() Flow { return c.flow }

// TokenURL returns the environment-selected token endpoint.
func (c *Client) TokenURL() string { return c.tokenURL }

// EnsureSession returns the cached session, acquiring a fresh bearer
// token first if none is held yet.
func (c *Client) EnsureSession(ctx context.Context) (*Session, error) {
	if c.session != nil {
		return c.session, nil
	}

	c.log.Info("Retrieving API URL and OAuth token")

	var (
		session *Session
		err     error
	)
	if c.flow == FlowPassword {
		session, err = c.passwordGrant(ctx)
	} else {
		session, err = c.refreshTokenGrant(ctx)
	}
	if err != nil {
		return nil, err
	}

	c.session = session
	return session, nil
}

func (c *Client) refreshTokenGrant(ctx context.Context) (*Session, error) {
	st, err := c.store.Load(c.assetID)
	if err != nil {
		return nil, err
	}

	if st.RefreshToken == "" {
		return nil, &AuthError{
			Reason: "no refresh token is stored for this asset",
			Hint:   "has test connectivity been run?",
		}
	}

	refreshToken, err := c.codec.Decrypt(st.RefreshToken, c.assetID)
	if err != nil {
		return nil, &AuthError{
			Reason: "error decrypting refresh token",
			Hint:   "has test connectivity been run?",
			Err:    err,
		}
	}

	return c.tokenGrant(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
}

func (c *Client) passwordGrant(ctx context.Context) (*Session, error) {
	return c.tokenGrant(ctx, map[string]string{
		"grant_type":    "password",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"username":      c.username,
		"password":      c.password,
	})
}

func (c *Client) tokenGrant(ctx context.Context, params map[string]string) (*Session, error) {
	form := make(map[string][]string, len(params))
	for k, v := range params {
		form[k] = []string{v}
	}

	raw, err := c.do(ctx, request{Method: http.MethodPost, URL: c.tokenURL, Form: form}, "")
	if err != nil {
		return nil, &AuthError{Reason: "token endpoint rejected the request", Err: err}
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		InstanceURL string `json:"instance_url"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &AuthError{Reason: "unable to parse token response", Err: err}
	}
	if resp.AccessToken == "" || resp.InstanceURL == "" {
		return nil, &AuthError{Reason: "token response is missing access_token or instance_url"}
	}

	return &Session{Token: resp.AccessToken, InstanceURL: resp.InstanceURL}, nil
}

// rest performs an authenticated call. Instance-relative URLs are
// resolved against the session's instance base URL.
func (c *Client) rest(ctx context.Context, rq request) (json.RawMessage, error) {
	session, err := c.EnsureSession(ctx)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(rq.URL, "/") {
		rq.URL = session.InstanceURL + rq.URL
	}

	return c.do(ctx, rq, session.Token)
}

// Versions fetches the available API version descriptors, newest last.
func (c *Client) Versions(ctx context.Context) ([]VersionInfo, error) {
	raw, err := c.rest(ctx, request{Method: http.MethodGet, URL: endpointVersions})
	if err != nil {
		return nil, err
	}

	var versions []VersionInfo
	if err := json.Unmarshal(raw, &versions); err != nil {
		return nil, &ResponseFormatError{Body: "unable to parse version list: " + err.Error()}
	}
	return versions, nil
}

// VersionInfo describes one available API version.
type VersionInfo struct {
	Label   string `json:"label"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Get performs an authenticated GET of an instance-relative endpoint
// and decodes the JSON payload into out.
func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	raw, err := c.rest(ctx, request{Method: http.MethodGet, URL: endpoint})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ResponseFormatError{Body: "unable to parse response: " + err.Error()}
	}
	return nil
}
