package bridge

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eliziario/sf-connector/internal/secrets"
	"github.com/eliziario/sf-connector/internal/state"
	"github.com/eliziario/sf-connector/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	store  *state.Store
	codec  *secrets.AESCodec
	router *gin.Engine
}

func newFixture(t *testing.T, tokenHandler http.HandlerFunc) *fixture {
	t.Helper()

	store, err := state.NewStore(testutil.TempDir(t))
	testutil.AssertNoError(t, err)

	codec, err := secrets.NewCodecWithKey(bytes.Repeat([]byte{0x42}, 32))
	testutil.AssertNoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{store: store, codec: codec}

	var httpClient *http.Client
	if tokenHandler != nil {
		// Stand up a fake provider and point the pending token exchange
		// at it.
		server := httptest.NewServer(tokenHandler)
		t.Cleanup(server.Close)
		httpClient = server.Client()
		f.seedPending(t, server.URL)
	}

	bridge := New(Options{Store: store, Codec: codec, Log: log, HTTPClient: httpClient})

	f.router = gin.New()
	bridge.Register(f.router, "/rest/handler/salesforce")
	return f
}

// seedPending stores the pending authorization the start step would
// have written.
func (f *fixture) seedPending(t *testing.T, tokenURL string) {
	t.Helper()

	params := map[string]string{
		"response_type": "code",
		"state":         "1",
		"redirect_uri":  "https://phantom.example.com/rest/handler/x/y/start_oauth",
		"client_id":     "consumer-key",
		"client_secret": "consumer-secret",
	}
	credsJSON, err := json.Marshal(params)
	testutil.AssertNoError(t, err)

	sealedCreds, err := f.codec.Encrypt(string(credsJSON), "1")
	testutil.AssertNoError(t, err)
	sealedURL, err := f.codec.Encrypt("https://login.salesforce.com/services/oauth2/authorize?client_id=consumer-key", "1")
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, f.store.Save("1", &state.CredentialState{
		Creds:      sealedCreds,
		ConsentURL: sealedURL,
		TokenURL:   tokenURL,
	}))
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.router.ServeHTTP(w, req)
	return w
}

func TestRedirect(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPending(t, "https://login.salesforce.com/services/oauth2/token")

	w := f.get("/rest/handler/salesforce/redirect?asset_id=1")
	testutil.AssertEqual(t, http.StatusFound, w.Code)
	testutil.AssertContains(t, w.Header().Get("Location"), "https://login.salesforce.com/services/oauth2/authorize")
}

func TestRedirectRejectsBadRequests(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPending(t, "https://login.salesforce.com/services/oauth2/token")

	// No asset id at all.
	testutil.AssertEqual(t, http.StatusBadRequest, f.get("/rest/handler/salesforce/redirect").Code)
	// Traversal attempt.
	testutil.AssertEqual(t, http.StatusBadRequest, f.get("/rest/handler/salesforce/redirect?asset_id=..%2F..%2Fetc").Code)
	// Unknown asset with no pending authorization.
	testutil.AssertEqual(t, http.StatusBadRequest, f.get("/rest/handler/salesforce/redirect?asset_id=999").Code)
}

func TestStartOAuthStoresRefreshToken(t *testing.T) {
	var form map[string]string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"code":          r.PostFormValue("code"),
			"response_type": r.PostFormValue("response_type"),
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token": "tok", "refresh_token": "the-refresh-token"}`)
	})

	w := f.get("/rest/handler/salesforce/start_oauth?state=1&code=authcode123")
	testutil.AssertEqual(t, http.StatusOK, w.Code)
	testutil.AssertContains(t, w.Body.String(), "You can now close this page")

	testutil.AssertEqual(t, "authorization_code", form["grant_type"])
	testutil.AssertEqual(t, "authcode123", form["code"])
	testutil.AssertEqual(t, "", form["response_type"])

	st, err := f.store.Load("1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, false, st.HasPending())
	testutil.AssertEqual(t, false, st.Error)

	token, err := f.codec.Decrypt(st.RefreshToken, "1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "the-refresh-token", token)
}

func TestStartOAuthWithoutCodeSetsErrorFlag(t *testing.T) {
	f := newFixture(t, nil)
	f.seedPending(t, "https://login.salesforce.com/services/oauth2/token")

	w := f.get("/rest/handler/salesforce/start_oauth?state=1")
	testutil.AssertEqual(t, http.StatusUnauthorized, w.Code)
	testutil.AssertContains(t, w.Body.String(), "Something went wrong during authentication")

	st, err := f.store.Load("1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, true, st.Error)
	testutil.AssertEqual(t, "", st.RefreshToken)
}

func TestStartOAuthExchangeWithoutRefreshToken(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token": "tok"}`)
	})

	w := f.get("/rest/handler/salesforce/start_oauth?state=1&code=authcode123")
	testutil.AssertEqual(t, http.StatusUnauthorized, w.Code)
	testutil.AssertContains(t, w.Body.String(), "app scope")

	st, err := f.store.Load("1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, true, st.Error)
}

func TestStartOAuthRejectsUnknownAsset(t *testing.T) {
	f := newFixture(t, nil)

	testutil.AssertEqual(t, http.StatusBadRequest, f.get("/rest/handler/salesforce/start_oauth?code=x").Code)
	testutil.AssertEqual(t, http.StatusBadRequest, f.get("/rest/handler/salesforce/start_oauth?state=42&code=x").Code)
}
