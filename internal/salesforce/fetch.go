package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// maxRecordsPerPage is the page size requested from a list view's
// results endpoint.
const maxRecordsPerPage = 2000

// offsetCeilingCode is the API error returned when pagination is
// pushed past the server-enforced maximum offset.
const offsetCeilingCode = "NUMBER_OUTSIDE_VALID_RANGE"

type listViewResultsPage struct {
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl"`
	Size           int              `json:"size"`
	Records        []map[string]any `json:"records"`
}

// FetchResult carries the rows retrieved from a list view plus the
// advanced offset. Truncated marks a partial result: the offset
// ceiling was reached and rows beyond it were not served. That is a
// success-with-truncation outcome, never an error.
type FetchResult struct {
	Records    []map[string]any
	NextOffset int
	Truncated  bool
}

// FetchListViewRecords pages through a list view's results starting at
// offset, requesting fixed-size pages and accumulating raw rows until
// the limit is satisfied, a short page signals the end of data, or the
// offset ceiling truncates the scan. A limit of zero means unbounded.
// NextOffset advances by exactly the rows kept, so a capped fetch
// leaves the cursor pointing at the first row it did not consume.
func (c *Client) FetchListViewRecords(ctx context.Context, resultsURL string, offset, limit int) (*FetchResult, error) {
	if limit < 0 {
		return nil, &ValidationError{Param: "limit", Reason: "must be a non-negative integer"}
	}
	if offset < 0 {
		return nil, &ValidationError{Param: "offset", Reason: "must be a non-negative integer"}
	}

	result := &FetchResult{NextOffset: offset}
	pageOffset := offset

	for {
		rawQuery := fmt.Sprintf("limit=%d&offset=%d", maxRecordsPerPage, pageOffset)
		raw, err := c.rest(ctx, request{Method: http.MethodGet, URL: resultsURL, RawQuery: rawQuery})
		if err != nil {
			if isOffsetCeiling(err) {
				c.log.Warn("Maximum list view offset reached, returning partial results")
				result.Truncated = true
				break
			}
			return nil, err
		}

		var page listViewResultsPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, &ResponseFormatError{Body: "unable to parse list view results: " + err.Error()}
		}

		returned := page.Size
		if returned == 0 {
			returned = len(page.Records)
		}

		result.Records = append(result.Records, page.Records...)
		pageOffset += returned

		if limit > 0 && len(result.Records) >= limit {
			result.Records = result.Records[:limit]
			break
		}
		if returned < maxRecordsPerPage {
			break
		}
	}

	result.NextOffset = offset + len(result.Records)
	return result, nil
}

// FetchListViewPage retrieves a single bounded window of list-view
// rows, following result-page locators until the window is complete.
func (c *Client) FetchListViewPage(ctx context.Context, resultsURL string, limit, offset int) ([]map[string]any, error) {
	if limit < 0 {
		return nil, &ValidationError{Param: "limit", Reason: "must be a non-negative integer"}
	}
	if offset < 0 {
		return nil, &ValidationError{Param: "offset", Reason: "must be a non-negative integer"}
	}

	endpoint := resultsURL
	rawQuery := fmt.Sprintf("limit=%d&offset=%d", limit, offset)

	var records []map[string]any
	for {
		raw, err := c.rest(ctx, request{Method: http.MethodGet, URL: endpoint, RawQuery: rawQuery})
		if err != nil {
			return nil, err
		}

		var page listViewResultsPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, &ResponseFormatError{Body: "unable to parse list view results: " + err.Error()}
		}

		records = append(records, page.Records...)
		if page.Done {
			return records, nil
		}
		endpoint = page.NextRecordsURL
		rawQuery = ""
	}
}

func isOffsetCeiling(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == offsetCeilingCode
}
