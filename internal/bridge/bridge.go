// Package bridge serves the two externally reachable authorization
// endpoints. The consent flow spans three separately triggered
// invocations - authorization start, the identity provider's callback
// handled here, and the polling waiter - correlated only through the
// asset's durable state.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eliziario/sf-connector/internal/secrets"
	"github.com/eliziario/sf-connector/internal/state"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Bridge struct {
	store *state.Store
	codec secrets.Codec
	http  *http.Client
	log   *logrus.Logger
}

type Options struct {
	Store *state.Store
	Codec secrets.Codec
	Log   *logrus.Logger

	HTTPClient *http.Client
}

func New(opts Options) *Bridge {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	log := opts.Log
	if log == nil {
		log = logrus.New()
	}

	return &Bridge{
		store: opts.Store,
		codec: opts.Codec,
		http:  httpClient,
		log:   log,
	}
}

// Register mounts the bridge endpoints under the handler root.
func (b *Bridge) Register(router gin.IRouter, root string) {
	group := router.Group(root)
	group.GET("/redirect", b.handleRedirect)
	group.GET("/start_oauth", b.handleStartOAuth)
}

// handleRedirect answers the link the operator opened in a browser
// with a 302 to the identity provider's consent page, stored encrypted
// when the authorization was started.
func (b *Bridge) handleRedirect(c *gin.Context) {
	assetID := c.Query("asset_id")
	if assetID == "" {
		c.String(http.StatusBadRequest, "ERROR: Asset ID not found in URL")
		return
	}
	if err := state.ValidateAssetID(assetID); err != nil {
		c.String(http.StatusBadRequest, "ERROR: Invalid asset ID")
		return
	}

	st, err := b.store.Load(assetID)
	if err != nil || st.ConsentURL == "" {
		c.String(http.StatusBadRequest, "ERROR: No pending authorization for this asset")
		return
	}

	consentURL, err := b.codec.Decrypt(st.ConsentURL, assetID)
	if err != nil {
		b.log.WithError(err).Error("Failed to decrypt consent URL")
		c.String(http.StatusBadRequest, "ERROR: Unable to read pending authorization")
		return
	}

	c.Redirect(http.StatusFound, consentURL)
}

// handleStartOAuth is where the identity provider lands after the user
// consents. It exchanges the authorization code for a refresh token
// and deposits it, encrypted, into the asset's state. Any failure sets
// the error flag and persists it before responding, so the waiter
// observes termination instead of running out its timeout.
func (b *Bridge) handleStartOAuth(c *gin.Context) {
	requestLog := b.log.WithField("request_id", uuid.NewString())

	assetID := c.Query("state")
	if assetID == "" {
		c.String(http.StatusBadRequest, "ERROR: Asset ID not found in URL")
		return
	}
	if err := state.ValidateAssetID(assetID); err != nil {
		c.String(http.StatusBadRequest, "ERROR: Invalid asset ID")
		return
	}

	st, err := b.store.Load(assetID)
	if err != nil || !st.HasPending() {
		c.String(http.StatusBadRequest, "ERROR: No pending authorization for this asset")
		return
	}

	code := c.Query("code")
	if code == "" {
		b.failAuthorization(c, requestLog, assetID, st, "Something went wrong during authentication")
		return
	}

	credsJSON, err := b.codec.Decrypt(st.Creds, assetID)
	if err != nil {
		b.failAuthorization(c, requestLog, assetID, st, "Unable to read pending authorization parameters")
		return
	}

	var creds map[string]string
	if err := json.Unmarshal([]byte(credsJSON), &creds); err != nil {
		b.failAuthorization(c, requestLog, assetID, st, "Unable to read pending authorization parameters")
		return
	}

	// The stored parameters were built for the authorize endpoint;
	// swap the response type for the code-exchange grant.
	form := url.Values{}
	for k, v := range creds {
		if k == "response_type" {
			continue
		}
		form.Set(k, v)
	}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)

	refreshToken, err := b.exchangeCode(c.Request.Context(), st.TokenURL, form)
	if err != nil {
		requestLog.WithError(err).Error("Authorization code exchange failed")
		b.failAuthorization(c, requestLog, assetID, st, err.Error())
		return
	}

	encrypted, err := b.codec.Encrypt(refreshToken, assetID)
	if err != nil {
		b.failAuthorization(c, requestLog, assetID, st, "Unable to protect refresh token")
		return
	}

	st.RefreshToken = encrypted
	st.ClearPending()
	if err := b.store.Save(assetID, st); err != nil {
		requestLog.WithError(err).Error("Failed to persist refresh token")
		c.String(http.StatusInternalServerError, "ERROR: Unable to save authorization state")
		return
	}

	requestLog.Info("Stored refresh token for asset")
	c.String(http.StatusOK, "You can now close this page")
}

var errNoRefreshToken = errors.New("unable to retrieve refresh token, maybe the app scope is set incorrectly?")

func (b *Bridge) exchangeCode(ctx context.Context, tokenURL string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var tokenResp struct {
		RefreshToken string `json:"refresh_token"`
		Error        string `json:"error"`
		Description  string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}
	if tokenResp.RefreshToken == "" {
		return "", errNoRefreshToken
	}
	return tokenResp.RefreshToken, nil
}

// failAuthorization records the failure in durable state before the
// HTTP response goes out, then answers with a 401-class error body.
func (b *Bridge) failAuthorization(c *gin.Context, log *logrus.Entry, assetID string, st *state.CredentialState, msg string) {
	st.Error = true
	if err := b.store.Save(assetID, st); err != nil {
		log.WithError(err).Error("Failed to persist authorization error flag")
	}
	c.String(http.StatusUnauthorized, msg)
}
