package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ListView is one entry of the list-view catalog.
type ListView struct {
	DeveloperName string `json:"developerName"`
	ResultsURL    string `json:"resultsUrl"`
}

type listViewCatalogPage struct {
	Done           bool       `json:"done"`
	NextRecordsURL string     `json:"nextRecordsUrl"`
	ListViews      []ListView `json:"listviews"`
}

// ResolveListView maps a view's developer name to its paginated
// results URL by scanning the catalog. It returns on the first match
// without finishing the scan; an unmatched name yields a
// ResolutionError carrying every name seen. An empty viewName is the
// "list all view names" request: the full catalog is scanned and the
// accumulated names returned with no error.
func (c *Client) ResolveListView(ctx context.Context, version, sobject, viewName string) (string, []string, error) {
	endpoint := fmt.Sprintf(endpointListViews, version, sobject)

	var names []string
	for {
		raw, err := c.rest(ctx, request{Method: http.MethodGet, URL: endpoint})
		if err != nil {
			return "", nil, err
		}

		var page listViewCatalogPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return "", nil, &ResponseFormatError{Body: "unable to parse list view catalog: " + err.Error()}
		}

		for _, view := range page.ListViews {
			if viewName != "" && view.DeveloperName == viewName {
				return view.ResultsURL, nil, nil
			}
			names = append(names, view.DeveloperName)
		}

		if page.Done {
			break
		}
		endpoint = page.NextRecordsURL
	}

	if viewName != "" {
		return "", names, &ResolutionError{Kind: "list view", Name: viewName, Candidates: names}
	}
	return "", names, nil
}
