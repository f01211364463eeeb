package salesforce

const (
	authorizeURL = "https://login.salesforce.com/services/oauth2/authorize"
	tokenURL     = "https://login.salesforce.com/services/oauth2/token"

	authorizeURLSandbox = "https://test.salesforce.com/services/oauth2/authorize"
	tokenURLSandbox     = "https://test.salesforce.com/services/oauth2/token"

	endpointVersions = "/services/data/"

	endpointQuery        = "%s/%s/"                    // version, query type
	endpointObject       = "%s/sobjects/%s/"           // version, sobject
	endpointObjectID     = "%s/sobjects/%s/%s/"        // version, sobject, id
	endpointListViews    = "%s/sobjects/%s/listviews/" // version, sobject
	endpointBatchRequest = "%s/composite/batch/"       // version
)

// Endpoints returns the authorize and token URLs for the configured
// environment.
func Endpoints(sandbox bool) (string, string) {
	if sandbox {
		return authorizeURLSandbox, tokenURLSandbox
	}
	return authorizeURL, tokenURL
}
