package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/eliziario/sf-connector/internal/testutil"
)

const batchPath = "/services/data/v56.0/composite/batch/"

func rawRecords(n int) []map[string]any {
	records := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, map[string]any{
			"columns": []any{
				map[string]any{"fieldNameOrPath": "Id", "value": fmt.Sprintf("500%09d", i)},
			},
		})
	}
	return records
}

func TestFetchObjectDetailsChunksBatches(t *testing.T) {
	mux := http.NewServeMux()
	serveToken(mux)

	var batchSizes []int
	mux.HandleFunc(batchPath, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			BatchRequests []batchSubRequest `json:"batchRequests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("Failed to decode batch payload: %v", err)
		}
		batchSizes = append(batchSizes, len(payload.BatchRequests))

		results := make([]map[string]any, 0, len(payload.BatchRequests))
		for i, sub := range payload.BatchRequests {
			if sub.Method != http.MethodGet {
				t.Errorf("Expected GET sub-requests, got %s", sub.Method)
			}
			results = append(results, map[string]any{
				"statusCode": 200,
				"result":     map[string]any{"Id": fmt.Sprintf("body-%d", i), "Subject": "s"},
			})
		}
		body, _ := json.Marshal(map[string]any{"hasErrors": false, "results": results})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	client := newTestClient(t, mux)

	bodies, err := client.FetchObjectDetails(context.Background(), "/services/data/v56.0", "Case", rawRecords(53))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 53, len(bodies))

	testutil.AssertEqual(t, 3, len(batchSizes))
	testutil.AssertEqual(t, 25, batchSizes[0])
	testutil.AssertEqual(t, 25, batchSizes[1])
	testutil.AssertEqual(t, 3, batchSizes[2])
}

func TestFetchObjectDetailsSkipsFailedSubResults(t *testing.T) {
	mux := http.NewServeMux()
	serveToken(mux)
	mux.HandleFunc(batchPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{
			"hasErrors": true,
			"results": [
				{"statusCode": 200, "result": {"Id": "a"}},
				{"statusCode": 404, "result": [{"message": "gone", "errorCode": "NOT_FOUND"}]},
				{"statusCode": 200, "result": {"Id": "c"}}
			]
		}`)
	})

	client := newTestClient(t, mux)

	bodies, err := client.FetchObjectDetails(context.Background(), "/services/data/v56.0", "Case", rawRecords(3))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 2, len(bodies))
	testutil.AssertEqual(t, "a", bodies[0]["Id"])
	testutil.AssertEqual(t, "c", bodies[1]["Id"])
}

func TestFetchObjectDetailsSkipsRecordsWithoutIds(t *testing.T) {
	mux := http.NewServeMux()
	serveToken(mux)

	var subRequests int
	mux.HandleFunc(batchPath, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			BatchRequests []batchSubRequest `json:"batchRequests"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		subRequests += len(payload.BatchRequests)

		results := make([]map[string]any, 0, len(payload.BatchRequests))
		for range payload.BatchRequests {
			results = append(results, map[string]any{"statusCode": 200, "result": map[string]any{"Id": "x"}})
		}
		body, _ := json.Marshal(map[string]any{"hasErrors": false, "results": results})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	client := newTestClient(t, mux)

	records := rawRecords(2)
	records = append(records, map[string]any{
		"columns": []any{map[string]any{"fieldNameOrPath": "Subject", "value": "no id"}},
	})

	bodies, err := client.FetchObjectDetails(context.Background(), "/services/data/v56.0", "Case", records)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 2, len(bodies))
	testutil.AssertEqual(t, 2, subRequests)
}

func TestFetchObjectDetailsEmptyInput(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())

	bodies, err := client.FetchObjectDetails(context.Background(), "/services/data/v56.0", "Case", nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, len(bodies))
}
