package ingest

import (
	"context"
	"fmt"

	"github.com/eliziario/sf-connector/internal/salesforce"
	"github.com/eliziario/sf-connector/internal/state"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContainerSink is the host boundary for persisting ingestion output.
type ContainerSink interface {
	SaveContainer(ctx context.Context, container any) (int, error)
	SaveArtifact(ctx context.Context, artifact any) (int, error)
}

// Result summarizes one ingestion cycle.
type Result struct {
	Records    int
	Containers int
	Saved      int

	// Truncated marks the success-with-truncation outcome: the list
	// view's offset ceiling cut the scan short.
	Truncated bool
}

// Orchestrator drives one ingestion cycle: resolve the configured
// view, page through it, batch-fetch record details, build containers
// and hand them to the sink, then advance the persisted cursor for
// scheduled runs.
type Orchestrator struct {
	SF      *salesforce.Client
	Store   *state.Store
	Sink    ContainerSink
	Log     *logrus.Logger
	AssetID string

	SObject            string
	ViewName           string
	NameMap            map[string]string
	FirstIngestionMax  int
	StripRecencyFields bool
}

// Run executes one cycle. An on-demand run always starts at offset 0
// with the caller-supplied record cap and never mutates the persisted
// cursor; a scheduled run resumes from the cursor, applying the
// one-time first-ingestion cap when no cursor exists yet.
func (o *Orchestrator) Run(ctx context.Context, version string, onDemand bool, containerCount int) (*Result, error) {
	if o.ViewName == "" {
		return nil, fmt.Errorf("a poll view name must be configured for ingestion")
	}

	log := o.Log.WithField("run_id", uuid.NewString())

	st, err := o.Store.Load(o.AssetID)
	if err != nil {
		return nil, err
	}

	offset := 0
	maxContainers := 0
	fetchLimit := 0
	switch {
	case onDemand:
		maxContainers = containerCount
	case st.CursorOffset == nil:
		// First scheduled ingestion ever for this asset. The cap bounds
		// the fetch itself so the cursor lands right after the rows
		// actually consumed.
		fetchLimit = o.FirstIngestionMax
	default:
		offset = *st.CursorOffset
	}

	log.WithFields(logrus.Fields{
		"sobject": o.SObject,
		"view":    o.ViewName,
		"offset":  offset,
	}).Info("Retrieving list view URI")

	resultsURL, _, err := o.SF.ResolveListView(ctx, version, o.SObject, o.ViewName)
	if err != nil {
		return nil, err
	}

	log.Infof("Getting new %s objects", o.SObject)
	fetch, err := o.SF.FetchListViewRecords(ctx, resultsURL, offset, fetchLimit)
	if err != nil {
		return nil, err
	}

	result := &Result{Records: len(fetch.Records), Truncated: fetch.Truncated}

	records := fetch.Records
	if maxContainers > 0 && len(records) > maxContainers {
		// Keep the most recent entries of the window.
		records = records[len(records)-maxContainers:]
	}

	bodies, err := o.SF.FetchObjectDetails(ctx, version, o.SObject, records)
	if err != nil {
		return nil, err
	}

	builder := &Builder{NameMap: o.NameMap, StripRecencyFields: o.StripRecencyFields}

	var containers []*Container
	for _, body := range bodies {
		container, err := builder.Build(body, o.SObject)
		if err != nil {
			log.WithError(err).Debug("Skipping object without an id")
			continue
		}
		containers = append(containers, container)
	}
	result.Containers = len(containers)

	log.WithField("containers", len(containers)).Info("Saving containers")
	for _, container := range containers {
		containerID, err := o.Sink.SaveContainer(ctx, container)
		if err != nil {
			log.WithError(err).Error("Error saving container")
			continue
		}
		saved := true
		for _, artifact := range container.Artifacts {
			artifact.ContainerID = containerID
			if _, err := o.Sink.SaveArtifact(ctx, artifact); err != nil {
				log.WithError(err).Error("Error saving artifact")
				saved = false
			}
		}
		if saved {
			result.Saved++
		}
	}

	if !onDemand {
		next := fetch.NextOffset
		if err := o.Store.Update(o.AssetID, func(st *state.CredentialState) error {
			st.CursorOffset = &next
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return result, nil
}
