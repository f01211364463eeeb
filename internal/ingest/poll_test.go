package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/eliziario/sf-connector/internal/salesforce"
	"github.com/eliziario/sf-connector/internal/state"
	"github.com/eliziario/sf-connector/internal/testutil"
	"github.com/sirupsen/logrus"
)

const apiVersion = "/services/data/v56.0"

// newOrchestrator stands up a fake Salesforce org holding total case
// rows behind a single "NewCases" list view and wires an orchestrator
// against it.
func newOrchestrator(t *testing.T, total int) (*Orchestrator, *testutil.MockSink) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token": "tok", "instance_url": "http://%s"}`, r.Host)
	})
	mux.HandleFunc(apiVersion+"/sobjects/Case/listviews/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"done": true,
			"listviews": [{"developerName": "NewCases", "resultsUrl": %q}]
		}`, apiVersion+"/sobjects/Case/listviews/00B1/results")
	})
	mux.HandleFunc(apiVersion+"/sobjects/Case/listviews/00B1/results", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		end := offset + limit
		if end > total {
			end = total
		}
		records := make([]map[string]any, 0)
		for i := offset; i < end; i++ {
			records = append(records, map[string]any{
				"columns": []any{
					map[string]any{"fieldNameOrPath": "Id", "value": fmt.Sprintf("500%09d", i)},
				},
			})
		}

		body, _ := json.Marshal(map[string]any{"done": true, "size": len(records), "records": records})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})
	mux.HandleFunc(apiVersion+"/composite/batch/", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			BatchRequests []struct {
				Method string `json:"method"`
				URL    string `json:"url"`
			} `json:"batchRequests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("Failed to decode batch payload: %v", err)
		}

		results := make([]map[string]any, 0, len(payload.BatchRequests))
		for _, sub := range payload.BatchRequests {
			parts := strings.Split(strings.Trim(sub.URL, "/"), "/")
			id := parts[len(parts)-1]
			results = append(results, map[string]any{
				"statusCode": 200,
				"result":     map[string]any{"Id": id, "Subject": "Case " + id},
			})
		}
		body, _ := json.Marshal(map[string]any{"hasErrors": false, "results": results})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	store, err := state.NewStore(testutil.TempDir(t))
	testutil.AssertNoError(t, err)

	client := salesforce.New(salesforce.Options{
		AssetID:    "1",
		Username:   "user@example.com",
		Password:   "pw",
		LoginURL:   server.URL,
		HTTPClient: server.Client(),
		Log:        log,
	})

	sink := testutil.NewMockSink()
	return &Orchestrator{
		SF:                client,
		Store:             store,
		Sink:              sink,
		Log:               log,
		AssetID:           "1",
		SObject:           "Case",
		ViewName:          "NewCases",
		FirstIngestionMax: 10,
	}, sink
}

func loadCursor(t *testing.T, store *state.Store) *int {
	t.Helper()
	st, err := store.Load("1")
	testutil.AssertNoError(t, err)
	return st.CursorOffset
}

func TestRunFirstScheduledIngestion(t *testing.T) {
	o, sink := newOrchestrator(t, 100)

	result, err := o.Run(context.Background(), apiVersion, false, 0)
	testutil.AssertNoError(t, err)

	// The one-time cap bounds the first run: ten rows in, cursor right
	// behind them.
	testutil.AssertEqual(t, 10, result.Records)
	testutil.AssertEqual(t, 10, result.Containers)
	testutil.AssertEqual(t, 10, result.Saved)
	testutil.AssertEqual(t, 10, len(sink.Containers))

	cursor := loadCursor(t, o.Store)
	if cursor == nil || *cursor != 10 {
		t.Fatalf("Expected cursor 10, got %v", cursor)
	}
}

func TestRunScheduledIngestionResumesFromCursor(t *testing.T) {
	o, sink := newOrchestrator(t, 130)

	offset := 120
	testutil.AssertNoError(t, o.Store.Save("1", &state.CredentialState{CursorOffset: &offset}))

	result, err := o.Run(context.Background(), apiVersion, false, 0)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 10, result.Records)
	testutil.AssertEqual(t, 10, len(sink.Containers))

	// Only rows past the cursor were ingested.
	first := sink.Containers[0].(*Container)
	testutil.AssertContains(t, first.Name, fmt.Sprintf("500%09d", 120))

	cursor := loadCursor(t, o.Store)
	if cursor == nil || *cursor != 130 {
		t.Fatalf("Expected cursor 130, got %v", cursor)
	}
}

func TestRunScheduledIngestionUpToDate(t *testing.T) {
	o, sink := newOrchestrator(t, 50)

	offset := 50
	testutil.AssertNoError(t, o.Store.Save("1", &state.CredentialState{CursorOffset: &offset}))

	result, err := o.Run(context.Background(), apiVersion, false, 0)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, result.Records)
	testutil.AssertEqual(t, 0, len(sink.Containers))

	cursor := loadCursor(t, o.Store)
	if cursor == nil || *cursor != 50 {
		t.Fatalf("Expected cursor to stay at 50, got %v", cursor)
	}
}

func TestRunOnDemandTakesMostRecent(t *testing.T) {
	o, sink := newOrchestrator(t, 12)

	result, err := o.Run(context.Background(), apiVersion, true, 5)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 12, result.Records)
	testutil.AssertEqual(t, 5, result.Containers)
	testutil.AssertEqual(t, 5, len(sink.Containers))

	// The window keeps the tail of the view, rows 7 through 11.
	first := sink.Containers[0].(*Container)
	testutil.AssertContains(t, first.Name, fmt.Sprintf("500%09d", 7))
	last := sink.Containers[4].(*Container)
	testutil.AssertContains(t, last.Name, fmt.Sprintf("500%09d", 11))

	// On-demand runs never move the cursor.
	if cursor := loadCursor(t, o.Store); cursor != nil {
		t.Fatalf("Expected cursor to stay unset, got %d", *cursor)
	}
}

func TestRunContinuesPastSaveFailures(t *testing.T) {
	o, sink := newOrchestrator(t, 5)
	sink.FailContainerCall = 2

	result, err := o.Run(context.Background(), apiVersion, false, 0)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 5, result.Containers)
	testutil.AssertEqual(t, 4, result.Saved)
	testutil.AssertEqual(t, 4, len(sink.Containers))

	// The failed save never blocks the cursor from advancing.
	cursor := loadCursor(t, o.Store)
	if cursor == nil || *cursor != 5 {
		t.Fatalf("Expected cursor 5, got %v", cursor)
	}
}

func TestRunRequiresViewName(t *testing.T) {
	o, _ := newOrchestrator(t, 5)
	o.ViewName = ""

	_, err := o.Run(context.Background(), apiVersion, false, 0)
	testutil.AssertError(t, err)
}
