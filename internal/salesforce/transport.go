package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxErrorBodyLen = 2048

// request describes one REST call. URL is either absolute or an
// instance-relative path beginning with "/".
type request struct {
	Method   string
	URL      string
	RawQuery string // pre-encoded query string; SOQL relies on literal '+'
	Form     url.Values
	JSON     any

	// AllowEmpty accepts a 2xx response with no body as success; the
	// update and delete verbs return nothing on success.
	AllowEmpty bool
}

// do executes the request and classifies the response by content type,
// returning the raw JSON payload on success.
func (c *Client) do(ctx context.Context, rq request, bearer string) (json.RawMessage, error) {
	u := rq.URL
	if rq.RawQuery != "" {
		u += "?" + rq.RawQuery
	}

	var body io.Reader
	contentType := ""
	switch {
	case rq.Form != nil:
		body = strings.NewReader(rq.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case rq.JSON != nil:
		data, err := json.Marshal(rq.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, rq.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	return classifyResponse(resp, rq.AllowEmpty)
}

// classifyResponse turns an HTTP response into either a JSON payload
// or a typed error, keyed off the Content-Type header. HTML is treated
// as an error page no matter what the API normally speaks: proxies in
// front of the connector answer with HTML on failure.
func classifyResponse(resp *http.Response, allowEmpty bool) (json.RawMessage, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	contentType := resp.Header.Get("Content-Type")

	if strings.Contains(contentType, "json") || strings.Contains(contentType, "javascript") {
		return classifyJSON(resp.StatusCode, data)
	}

	if strings.Contains(contentType, "html") {
		return nil, &ResponseFormatError{
			StatusCode: resp.StatusCode,
			Body:       flattenHTML(string(data)),
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		if allowEmpty || resp.StatusCode == http.StatusOK {
			return json.RawMessage("{}"), nil
		}
		return nil, &ResponseFormatError{StatusCode: resp.StatusCode}
	}

	return nil, &ResponseFormatError{
		StatusCode: resp.StatusCode,
		Body:       sanitizeBody(string(data)),
	}
}

func classifyJSON(statusCode int, data []byte) (json.RawMessage, error) {
	if !json.Valid(data) {
		return nil, &ResponseFormatError{
			StatusCode: statusCode,
			Body:       "unable to parse JSON response: " + sanitizeBody(string(data)),
		}
	}

	if statusCode >= 200 && statusCode < 399 {
		return json.RawMessage(data), nil
	}

	return nil, parseAPIError(statusCode, data)
}

// parseAPIError decodes the two error shapes the API produces: an
// array of {message, errorCode} objects on REST endpoints and an
// {error, error_description} object on the token endpoint.
func parseAPIError(statusCode int, data []byte) error {
	var restErrs []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(data, &restErrs); err == nil && len(restErrs) > 0 {
		return &APIError{
			StatusCode: statusCode,
			Code:       restErrs[0].ErrorCode,
			Message:    restErrs[0].Message,
		}
	}

	var oauthErr struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(data, &oauthErr); err == nil && oauthErr.Error != "" {
		return &APIError{
			StatusCode: statusCode,
			Code:       oauthErr.Error,
			Message:    oauthErr.Description,
		}
	}

	return &APIError{StatusCode: statusCode, Message: sanitizeBody(string(data))}
}

func sanitizeBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > maxErrorBodyLen {
		body = body[:maxErrorBodyLen] + "..."
	}
	return body
}

// flattenHTML reduces an HTML error page to its visible text, one
// trimmed line per block of content.
func flattenHTML(page string) string {
	var b strings.Builder
	inTag := false
	for _, r := range page {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune('\n')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return sanitizeBody(strings.Join(lines, "\n"))
}
