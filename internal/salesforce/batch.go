package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// batchLimit is the composite batch API's per-request sub-request
// ceiling.
const batchLimit = 25

type batchSubRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type batchSubResponse struct {
	StatusCode int             `json:"statusCode"`
	Result     json.RawMessage `json:"result"`
}

type batchResponse struct {
	HasErrors bool               `json:"hasErrors"`
	Results   []batchSubResponse `json:"results"`
}

// FetchObjectDetails retrieves the full object body behind each raw
// list-view row. Rows are mogrified here, exactly once, to recover
// their ids; ids are then grouped into composite batch requests of 25
// GET sub-requests each, cutting the round trips by the same factor.
//
// A batch-level hasErrors flag and individual non-200 sub-results are
// logged and skipped so one bad record never aborts the rest.
func (c *Client) FetchObjectDetails(ctx context.Context, version, sobject string, records []map[string]any) ([]map[string]any, error) {
	endpoint := fmt.Sprintf(endpointBatchRequest, version)

	var bodies []map[string]any
	for start := 0; start < len(records); start += batchLimit {
		end := start + batchLimit
		if end > len(records) {
			end = len(records)
		}

		subRequests := make([]batchSubRequest, 0, end-start)
		for _, record := range records[start:end] {
			if err := Mogrify(record); err != nil {
				c.log.WithError(err).Debug("Skipping malformed record")
				continue
			}
			id, err := RecordID(record)
			if err != nil {
				c.log.WithError(err).Debug("Skipping record without an Id")
				continue
			}
			subRequests = append(subRequests, batchSubRequest{
				Method: http.MethodGet,
				URL:    fmt.Sprintf(endpointObjectID, version, sobject, id),
			})
		}
		if len(subRequests) == 0 {
			continue
		}

		raw, err := c.rest(ctx, request{
			Method: http.MethodPost,
			URL:    endpoint,
			JSON:   map[string]any{"batchRequests": subRequests},
		})
		if err != nil {
			return nil, fmt.Errorf("error retrieving objects: %w", err)
		}

		var resp batchResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, &ResponseFormatError{Body: "unable to parse batch response: " + err.Error()}
		}

		if resp.HasErrors {
			c.log.Warn("Batch request reported errors, continuing with successful results")
		}

		for _, sub := range resp.Results {
			if sub.StatusCode != http.StatusOK {
				c.log.WithField("status", sub.StatusCode).Debug("Skipping failed batch sub-request")
				continue
			}
			var body map[string]any
			if err := json.Unmarshal(sub.Result, &body); err != nil {
				c.log.WithError(err).Debug("Skipping unparseable batch sub-result")
				continue
			}
			bodies = append(bodies, body)
		}
	}

	return bodies, nil
}
