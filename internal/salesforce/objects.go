package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// queryPage is the envelope shared by the query and list-view results
// endpoints: a done flag plus a locator for the next page.
type queryPage struct {
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl"`
	Records        []map[string]any `json:"records"`
}

// RunQuery executes a SOQL (or SOSL) query against the given query
// endpoint type and accumulates records across all result pages.
func (c *Client) RunQuery(ctx context.Context, version, queryType, query string) ([]map[string]any, error) {
	endpoint := fmt.Sprintf(endpointQuery, version, queryType)
	// The query endpoint expects spaces as literal '+', which must not
	// be re-encoded.
	rawQuery := "q=" + strings.Join(strings.Fields(query), "+")

	var records []map[string]any
	for {
		raw, err := c.rest(ctx, request{Method: http.MethodGet, URL: endpoint, RawQuery: rawQuery})
		if err != nil {
			return nil, err
		}

		var page queryPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, &ResponseFormatError{Body: "unable to parse query response: " + err.Error()}
		}

		records = append(records, page.Records...)
		if page.Done {
			return records, nil
		}
		endpoint = page.NextRecordsURL
		rawQuery = ""
	}
}

// GetObject retrieves a full object body by id.
func (c *Client) GetObject(ctx context.Context, version, sobject, id string) (map[string]any, error) {
	endpoint := fmt.Sprintf(endpointObjectID, version, sobject, id)

	var body map[string]any
	if err := c.Get(ctx, endpoint, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// CreateObject creates a new object and returns the creation response,
// which carries the new object's id.
func (c *Client) CreateObject(ctx context.Context, version, sobject string, fields map[string]any) (map[string]any, error) {
	endpoint := fmt.Sprintf(endpointObject, version, sobject)

	raw, err := c.rest(ctx, request{Method: http.MethodPost, URL: endpoint, JSON: fields})
	if err != nil {
		return nil, err
	}

	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ResponseFormatError{Body: "unable to parse create response: " + err.Error()}
	}
	return resp, nil
}

// UpdateObject patches fields onto an existing object. A successful
// update returns no body.
func (c *Client) UpdateObject(ctx context.Context, version, sobject, id string, fields map[string]any) error {
	endpoint := fmt.Sprintf(endpointObjectID, version, sobject, id)

	_, err := c.rest(ctx, request{Method: http.MethodPatch, URL: endpoint, JSON: fields, AllowEmpty: true})
	return err
}

// DeleteObject removes an object. A successful delete returns no body.
func (c *Client) DeleteObject(ctx context.Context, version, sobject, id string) error {
	endpoint := fmt.Sprintf(endpointObjectID, version, sobject, id)

	_, err := c.rest(ctx, request{Method: http.MethodDelete, URL: endpoint, AllowEmpty: true})
	return err
}
