package salesforce

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/eliziario/sf-connector/internal/testutil"
)

func TestClassifyJSONErrorShapes(t *testing.T) {
	// REST endpoints answer with an array of error objects.
	err := parseAPIError(http.StatusBadRequest, []byte(`[{"message": "offset out of range", "errorCode": "NUMBER_OUTSIDE_VALID_RANGE"}]`))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected an APIError, got %v", err)
	}
	testutil.AssertEqual(t, "NUMBER_OUTSIDE_VALID_RANGE", apiErr.Code)
	testutil.AssertEqual(t, http.StatusBadRequest, apiErr.StatusCode)

	// The token endpoint answers with a single object.
	err = parseAPIError(http.StatusBadRequest, []byte(`{"error": "invalid_grant", "error_description": "expired access/refresh token"}`))
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected an APIError, got %v", err)
	}
	testutil.AssertEqual(t, "invalid_grant", apiErr.Code)
	testutil.AssertContains(t, apiErr.Message, "expired")

	// Anything else is kept verbatim, sanitized.
	err = parseAPIError(http.StatusInternalServerError, []byte(`{"unexpected": true}`))
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected an APIError, got %v", err)
	}
	testutil.AssertEqual(t, "", apiErr.Code)
}

func TestClassifyJSONSuccessRange(t *testing.T) {
	for _, status := range []int{200, 201, 204, 300, 398} {
		if _, err := classifyJSON(status, []byte(`{}`)); err != nil {
			t.Errorf("Expected status %d to be a success, got: %v", status, err)
		}
	}
	for _, status := range []int{399, 400, 401, 404, 500} {
		if _, err := classifyJSON(status, []byte(`[{"message": "m", "errorCode": "C"}]`)); err == nil {
			t.Errorf("Expected status %d to be an error", status)
		}
	}
}

func TestClassifyJSONRejectsInvalidJSON(t *testing.T) {
	_, err := classifyJSON(http.StatusOK, []byte(`{"broken":`))
	var formatErr *ResponseFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected a ResponseFormatError, got %v", err)
	}
}

func TestDoFlattensHTMLErrorPage(t *testing.T) {
	mux := http.NewServeMux()
	serveToken(mux)
	mux.HandleFunc("/services/data/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html><head><title>502 Bad Gateway</title></head><body><h1>Bad Gateway</h1><p>upstream error</p></body></html>"))
	})

	client := newTestClient(t, mux)

	_, err := client.Versions(context.Background())
	var formatErr *ResponseFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected a ResponseFormatError, got %v", err)
	}
	testutil.AssertEqual(t, http.StatusBadGateway, formatErr.StatusCode)
	testutil.AssertContains(t, formatErr.Body, "Bad Gateway")
	testutil.AssertContains(t, formatErr.Body, "upstream error")
	if strings.Contains(formatErr.Body, "<") {
		t.Errorf("Expected markup to be stripped, got: %s", formatErr.Body)
	}
}

func TestDoAllowsEmptyResponses(t *testing.T) {
	mux := http.NewServeMux()
	serveToken(mux)
	mux.HandleFunc("/services/data/v56.0/sobjects/Case/500x/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	client := newTestClient(t, mux)

	// The delete and update verbs legitimately return no body.
	err := client.DeleteObject(context.Background(), "/services/data/v56.0", "Case", "500x")
	testutil.AssertNoError(t, err)
}

func TestDoRejectsUnreachableServer(t *testing.T) {
	client := New(Options{
		Username: "u",
		Password: "p",
		LoginURL: "http://127.0.0.1:1",
		Log:      quietLogger(),
	})

	_, err := client.EnsureSession(context.Background())
	testutil.AssertError(t, err)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("Expected a TransportError in the chain, got %v", err)
	}
}

func TestFlattenHTML(t *testing.T) {
	flat := flattenHTML("<html><body>  <h1>Error</h1>\n<p>details here</p></body></html>")
	testutil.AssertEqual(t, "Error\ndetails here", flat)
}

func TestSanitizeBodyTruncates(t *testing.T) {
	long := strings.Repeat("x", maxErrorBodyLen+100)
	out := sanitizeBody(long)
	testutil.AssertEqual(t, maxErrorBodyLen+3, len(out))
	testutil.AssertContains(t, out, "...")
}
