// Package actions maps the host's named actions onto the connector's
// Salesforce client, and owns the per-invocation result shape.
package actions

import (
	"context"
	"fmt"
	"math"

	"github.com/eliziario/sf-connector/internal/config"
	"github.com/eliziario/sf-connector/internal/host"
	"github.com/eliziario/sf-connector/internal/ingest"
	"github.com/eliziario/sf-connector/internal/salesforce"
	"github.com/eliziario/sf-connector/internal/secrets"
	"github.com/eliziario/sf-connector/internal/state"
	"github.com/sirupsen/logrus"
)

type Status int

const (
	StatusSuccess Status = iota
	// StatusPartial is success with truncation: the run completed but
	// the offset ceiling cut the scan short.
	StatusPartial
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	default:
		return "failed"
	}
}

// Result is the terminal status of one action invocation.
type Result struct {
	Status  Status
	Message string
	Data    []any
	Summary map[string]any
}

func (r *Result) addData(item any) {
	r.Data = append(r.Data, item)
}

func (r *Result) summarize(key string, value any) {
	if r.Summary == nil {
		r.Summary = make(map[string]any)
	}
	r.Summary[key] = value
}

// Params is the action parameter bag handed over by the host.
type Params map[string]any

func (p Params) String(key string) string {
	v, _ := p[key].(string)
	return v
}

func (p Params) StringDefault(key, fallback string) string {
	if v := p.String(key); v != "" {
		return v
	}
	return fallback
}

func (p Params) Bool(key string) bool {
	v, _ := p[key].(bool)
	return v
}

// Int reads a numeric parameter, rejecting non-integer and negative
// values before any network call is made.
func (p Params) Int(key string, fallback int) (int, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return fallback, nil
	}

	var value int
	switch v := raw.(type) {
	case int:
		value = v
	case float64:
		if v != math.Trunc(v) {
			return 0, &salesforce.ValidationError{Param: key, Reason: "must be an integer"}
		}
		value = int(v)
	default:
		return 0, &salesforce.ValidationError{Param: key, Reason: fmt.Sprintf("unexpected type %T", raw)}
	}

	if value < 0 {
		return 0, &salesforce.ValidationError{Param: key, Reason: "must be a non-negative integer"}
	}
	return value, nil
}

// Service executes actions against one asset.
type Service struct {
	Config  *config.Config
	SF      *salesforce.Client
	Store   *state.Store
	Codec   secrets.Codec
	Host    *host.Client
	Sink    ingest.ContainerSink
	Log     *logrus.Logger
	AssetID string

	// AppDirName and AppID identify this app in the host's handler
	// URL scheme for the bridge endpoints.
	AppDirName string
	AppID      string
}

type handlerFunc func(ctx context.Context, params Params, version string) (*Result, error)

// Handle dispatches an action by its identifier and reduces any error
// to the action's terminal status.
func (s *Service) Handle(ctx context.Context, actionID string, params Params) *Result {
	if params == nil {
		params = Params{}
	}

	handlers := map[string]handlerFunc{
		"test_connectivity": func(ctx context.Context, p Params, _ string) (*Result, error) {
			return s.TestConnectivity(ctx)
		},
		"run_query":     s.RunQuery,
		"create_object": s.CreateObject,
		"create_ticket": s.CreateTicket,
		"update_object": s.UpdateObject,
		"update_ticket": s.UpdateTicket,
		"delete_object": s.DeleteObject,
		"delete_ticket": s.DeleteObject,
		"get_object":    s.GetObject,
		"get_ticket":    s.GetObject,
		"list_objects":  s.ListObjects,
		"list_tickets":  s.ListObjects,
		"post_chatter":  s.PostChatter,
		"on_poll":       s.OnPoll,
	}

	handler, ok := handlers[actionID]
	if !ok {
		return &Result{Status: StatusFailed, Message: fmt.Sprintf("unknown action %q", actionID)}
	}

	version := ""
	if actionID != "test_connectivity" {
		st, err := s.Store.Load(s.AssetID)
		if err != nil {
			return &Result{Status: StatusFailed, Message: err.Error()}
		}
		if st.LatestVersion == "" {
			return &Result{
				Status:  StatusFailed,
				Message: "unable to retrieve the API version, has test connectivity been run?",
			}
		}
		version = st.LatestVersion
	}

	s.Log.WithField("action", actionID).Debug("Handling action")

	result, err := handler(ctx, params, version)
	if err != nil {
		if result == nil {
			result = &Result{}
		}
		result.Status = StatusFailed
		result.Message = err.Error()
		return result
	}
	return result
}
