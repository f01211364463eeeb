package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eliziario/sf-connector/internal/ingest"
	"github.com/eliziario/sf-connector/internal/salesforce"
	"github.com/eliziario/sf-connector/internal/state"
)

// caseFieldMap translates the ticket actions' flat parameters onto
// Case object fields, so the ticket handlers reuse the object
// handlers' payload path.
var caseFieldMap = map[string]string{
	"parent_case_id": "ParentId",
	"subject":        "Subject",
	"priority":       "Priority",
	"description":    "Description",
	"status":         "Status",
	"closed":         "IsClosed",
	"escalated":      "IsEscalated",
}

// TestConnectivity bootstraps the asset: under the authorization-code
// flow it starts the consent handshake and waits for the bridge to
// deposit a refresh token, then records the newest API version and
// probes it with the bearer token.
func (s *Service) TestConnectivity(ctx context.Context) (*Result, error) {
	result := &Result{}

	if s.SF.Flow() == salesforce.FlowAuthorizationCode {
		appRestURL, err := s.Host.AppRestURL(ctx, s.AppDirName, s.AppID, s.AssetID)
		if err != nil {
			return result, fmt.Errorf("error getting redirect URL: %w", err)
		}

		link, err := s.SF.StartAuthorization(ctx, appRestURL)
		if err != nil {
			return result, err
		}

		s.Log.Infof("To continue, open this link in a new tab in your browser: %s", link)
		result.summarize("authorization_url", link)

		encryptedToken, err := s.SF.WaitForAuthorization(ctx)
		if err != nil {
			return result, err
		}

		// The pending state file was deleted by the waiter; persist a
		// fresh state holding only the refresh token.
		if err := s.Store.Save(s.AssetID, &state.CredentialState{RefreshToken: encryptedToken}); err != nil {
			return result, err
		}
	}

	s.Log.Info("Obtaining API version")
	versions, err := s.SF.Versions(ctx)
	if err != nil {
		return result, err
	}
	if len(versions) == 0 {
		return result, fmt.Errorf("no API versions reported by the server")
	}
	latest := versions[len(versions)-1].URL

	if err := s.Store.Update(s.AssetID, func(st *state.CredentialState) error {
		st.LatestVersion = latest
		return nil
	}); err != nil {
		return result, err
	}

	s.Log.Info("Testing API version and authorization credentials")
	if err := s.SF.Get(ctx, latest, nil); err != nil {
		return result, err
	}

	result.Status = StatusSuccess
	result.Message = "Test connectivity passed"
	return result, nil
}

func (s *Service) RunQuery(ctx context.Context, params Params, version string) (*Result, error) {
	result := &Result{}

	query := params.String("query")
	if query == "" {
		return result, &salesforce.ValidationError{Param: "query", Reason: "is required"}
	}
	queryType := params.StringDefault("endpoint", "query")

	records, err := s.SF.RunQuery(ctx, version, queryType, query)
	if err != nil {
		return result, err
	}

	for _, record := range records {
		result.addData(record)
	}
	result.summarize("num_objects", len(records))
	result.Status = StatusSuccess
	result.Message = "Successfully retrieved query results"
	return result, nil
}

// fieldValues assembles the object payload: the optional JSON
// field_values parameter, overlaid with any ticket-shorthand
// parameters translated through the Case field map.
func fieldValues(params Params, applyCaseMap, required bool) (map[string]any, error) {
	values := make(map[string]any)

	raw := params.String("field_values")
	if raw == "" && required {
		return nil, &salesforce.ValidationError{Param: "field_values", Reason: "is required"}
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, &salesforce.ValidationError{Param: "field_values", Reason: "must be a JSON object"}
		}
	}

	if applyCaseMap {
		for param, field := range caseFieldMap {
			if v, ok := params[param]; ok {
				values[field] = v
			}
		}
	}
	return values, nil
}

func (s *Service) createObject(ctx context.Context, params Params, version string, values map[string]any) (*Result, error) {
	result := &Result{}
	sobject := params.StringDefault("sobject", "Case")

	resp, err := s.SF.CreateObject(ctx, version, sobject, values)
	if err != nil {
		return result, err
	}

	result.addData(resp)
	if id, ok := resp["id"].(string); ok {
		result.summarize("obj_id", id)
	}
	result.Status = StatusSuccess
	result.Message = fmt.Sprintf("Successfully created a new %s", sobject)
	return result, nil
}

func (s *Service) CreateObject(ctx context.Context, params Params, version string) (*Result, error) {
	values, err := fieldValues(params, false, true)
	if err != nil {
		return &Result{}, err
	}
	return s.createObject(ctx, params, version, values)
}

func (s *Service) CreateTicket(ctx context.Context, params Params, version string) (*Result, error) {
	values, err := fieldValues(params, true, false)
	if err != nil {
		return &Result{}, err
	}
	return s.createObject(ctx, params, version, values)
}

func (s *Service) updateObject(ctx context.Context, params Params, version string, values map[string]any) (*Result, error) {
	result := &Result{}
	sobject := params.StringDefault("sobject", "Case")

	id := params.String("id")
	if id == "" {
		return result, &salesforce.ValidationError{Param: "id", Reason: "is required"}
	}

	if err := s.SF.UpdateObject(ctx, version, sobject, id, values); err != nil {
		return result, err
	}

	result.summarize("obj_id", id)
	result.Status = StatusSuccess
	result.Message = fmt.Sprintf("Successfully updated %s", sobject)
	return result, nil
}

func (s *Service) UpdateObject(ctx context.Context, params Params, version string) (*Result, error) {
	values, err := fieldValues(params, false, true)
	if err != nil {
		return &Result{}, err
	}
	return s.updateObject(ctx, params, version, values)
}

func (s *Service) UpdateTicket(ctx context.Context, params Params, version string) (*Result, error) {
	values, err := fieldValues(params, true, false)
	if err != nil {
		return &Result{}, err
	}
	return s.updateObject(ctx, params, version, values)
}

func (s *Service) DeleteObject(ctx context.Context, params Params, version string) (*Result, error) {
	result := &Result{}
	sobject := params.StringDefault("sobject", "Case")

	id := params.String("id")
	if id == "" {
		return result, &salesforce.ValidationError{Param: "id", Reason: "is required"}
	}

	if err := s.SF.DeleteObject(ctx, version, sobject, id); err != nil {
		return result, err
	}

	result.Status = StatusSuccess
	result.Message = fmt.Sprintf("Successfully deleted %s", sobject)
	return result, nil
}

func (s *Service) GetObject(ctx context.Context, params Params, version string) (*Result, error) {
	result := &Result{}
	sobject := params.StringDefault("sobject", "Case")

	id := params.String("id")
	if id == "" {
		return result, &salesforce.ValidationError{Param: "id", Reason: "is required"}
	}

	body, err := s.SF.GetObject(ctx, version, sobject, id)
	if err != nil {
		return result, err
	}

	result.addData(body)
	result.Status = StatusSuccess
	result.Message = fmt.Sprintf("Successfully retrieved %s", sobject)
	return result, nil
}

func (s *Service) ListObjects(ctx context.Context, params Params, version string) (*Result, error) {
	result := &Result{}
	sobject := params.StringDefault("sobject", "Case")
	viewName := params.String("view_name")

	limit, err := params.Int("limit", 25)
	if err != nil {
		return result, err
	}
	offset, err := params.Int("offset", 0)
	if err != nil {
		return result, err
	}

	resultsURL, views, err := s.SF.ResolveListView(ctx, version, sobject, viewName)
	var notFound *salesforce.ResolutionError
	if errors.As(err, &notFound) {
		result.summarize("view_names", notFound.Candidates)
		return result, err
	}
	if err != nil {
		return result, err
	}

	if viewName == "" {
		// No view requested: report the valid view names instead.
		result.summarize("view_names", views)
		result.Status = StatusSuccess
		result.Message = "Created a list of valid view names"
		return result, nil
	}

	records, err := s.SF.FetchListViewPage(ctx, resultsURL, limit, offset)
	if err != nil {
		return result, err
	}

	for _, record := range records {
		if err := salesforce.Mogrify(record); err != nil {
			s.Log.WithError(err).Debug("Skipping malformed record")
			continue
		}
		result.addData(record)
	}
	result.summarize("num_objects", len(result.Data))
	result.Status = StatusSuccess
	result.Message = fmt.Sprintf("Successfully created a list of %s objects", sobject)
	return result, nil
}

func (s *Service) PostChatter(ctx context.Context, params Params, version string) (*Result, error) {
	result := &Result{}

	parentID := params.String("id")
	if parentID == "" {
		return result, &salesforce.ValidationError{Param: "id", Reason: "is required"}
	}
	body := params.String("body")
	if body == "" {
		return result, &salesforce.ValidationError{Param: "body", Reason: "is required"}
	}

	feedItem := map[string]any{
		"ParentId": parentID,
		"Title":    params.String("title"),
		"Body":     body,
		"Type":     "TextPost",
	}

	resp, err := s.SF.CreateObject(ctx, version, "FeedItem", feedItem)
	if err != nil {
		return result, err
	}

	result.addData(resp)
	if id, ok := resp["id"].(string); ok {
		result.summarize("obj_id", id)
	}
	result.Status = StatusSuccess
	result.Message = "Successfully posted to chatter"
	return result, nil
}

// OnPoll runs one ingestion cycle: scheduled unless the host marks the
// invocation as an on-demand poll.
func (s *Service) OnPoll(ctx context.Context, params Params, version string) (*Result, error) {
	result := &Result{}

	onDemand := params.Bool("on_demand")
	containerCount, err := params.Int("container_count", s.Config.Poll.ContainerCount)
	if err != nil {
		return result, err
	}

	nameMap, err := s.Config.ParseCEFNameMap()
	if err != nil {
		return result, err
	}

	orchestrator := &ingest.Orchestrator{
		SF:                 s.SF,
		Store:              s.Store,
		Sink:               s.Sink,
		Log:                s.Log,
		AssetID:            s.AssetID,
		SObject:            s.Config.Poll.SObject,
		ViewName:           s.Config.Poll.ViewName,
		NameMap:            nameMap,
		FirstIngestionMax:  s.Config.Poll.FirstIngestionMax,
		StripRecencyFields: s.Config.Poll.StripRecencyFields,
	}

	pollResult, err := orchestrator.Run(ctx, version, onDemand, containerCount)
	if err != nil {
		return result, err
	}

	result.summarize("records", pollResult.Records)
	result.summarize("containers", pollResult.Containers)
	result.summarize("saved", pollResult.Saved)

	if pollResult.Truncated {
		result.Status = StatusPartial
		result.Message = "Ingested containers, but the maximum list view offset was reached and older records were skipped"
		return result, nil
	}

	result.Status = StatusSuccess
	result.Message = "Successfully ingested containers"
	return result, nil
}
