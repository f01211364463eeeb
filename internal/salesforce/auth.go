package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/eliziario/sf-connector/internal/state"
)

// Authorization polling cadence: 60 attempts of 5 seconds gives the
// operator five minutes to complete the browser consent flow.
var (
	authPollInterval = 5 * time.Second
	authPollAttempts = 60
)

// StartAuthorization begins the authorization-code flow: it builds the
// pending authorization parameters, encrypts them together with the
// consent URL into the asset's state, and returns the link the
// operator must open in a browser.
func (c *Client) StartAuthorization(ctx context.Context, appRestURL string) (string, error) {
	params := map[string]string{
		"response_type": "code",
		"state":         c.assetID,
		"redirect_uri":  appRestURL + "/start_oauth",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	consentURL := c.authorizeURL + "?" + query.Encode()

	credsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal authorization parameters: %w", err)
	}

	encryptedCreds, err := c.codec.Encrypt(string(credsJSON), c.assetID)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt authorization parameters: %w", err)
	}
	encryptedURL, err := c.codec.Encrypt(consentURL, c.assetID)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt consent URL: %w", err)
	}

	st := &state.CredentialState{
		Creds:      encryptedCreds,
		ConsentURL: encryptedURL,
		TokenURL:   c.tokenURL,
	}
	if err := c.store.Save(c.assetID, st); err != nil {
		return "", err
	}

	return appRestURL + "/redirect?asset_id=" + c.assetID, nil
}

// WaitForAuthorization polls the asset's state until the bridge
// deposits a refresh token, the bridge flags an error, or the attempt
// ceiling is exhausted. The pending state file never outlives one
// authorization attempt: it is deleted on every exit path. The
// returned refresh token is still encrypted.
func (c *Client) WaitForAuthorization(ctx context.Context) (string, error) {
	defer func() {
		if err := c.store.Delete(c.assetID); err != nil {
			c.log.WithError(err).Warn("Failed to delete pending authorization state")
		}
	}()

	for attempt := 0; attempt < authPollAttempts; attempt++ {
		st, err := c.store.Load(c.assetID)
		if err != nil {
			return "", err
		}

		if st.RefreshToken != "" {
			c.log.Info("Successfully retrieved refresh token")
			return st.RefreshToken, nil
		}
		if st.Error {
			return "", &AuthError{Reason: "error retrieving refresh token during the authorization exchange"}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(authPollInterval):
		}
	}

	return "", &AuthError{Reason: "timed out waiting for the authorization flow to complete"}
}
