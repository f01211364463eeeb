// Package ingest turns Salesforce object bodies into normalized
// containers and artifacts and drives the polling ingestion cycle.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Container is one normalized ingestion output, holding exactly one
// artifact in this design.
type Container struct {
	Name                 string      `json:"name"`
	SourceDataIdentifier string      `json:"source_data_identifier"`
	Severity             string      `json:"severity,omitempty"`
	Sensitivity          string      `json:"sensitivity,omitempty"`
	Artifacts            []*Artifact `json:"artifacts"`
}

// Artifact carries the object's field map. ContainerID is filled in
// after the host assigns the container an id.
type Artifact struct {
	Name        string              `json:"name"`
	ContainerID int                 `json:"container_id,omitempty"`
	CEF         map[string]any      `json:"cef"`
	CEFTypes    map[string][]string `json:"cef_types"`
}

const objectIDTag = "salesforce object id"

var severityMapping = map[string]string{
	"severity 1 (high impact)":    "high",
	"severity 2 (medium impact":   "medium",
	"severity 3 (low impact)":     "low",
	"severity 4 (false positive)": "low",
}

var sensitivityMapping = map[string]string{
	"sensitive":     "red",
	"not sensitive": "white",
}

// recencyFields are only meaningful once the org enables recently-
// viewed tracking; the stripping is configuration-gated, not
// universal.
var recencyFields = map[string]bool{
	"LastViewedDate":     true,
	"LastReferencedDate": true,
}

// Builder converts object bodies into containers. NameMap is the
// operator-supplied field rename table; an empty map leaves every
// field name unchanged.
type Builder struct {
	NameMap            map[string]string
	StripRecencyFields bool
}

// Build copies every object field except the attributes metadata into
// the artifact's field map, renaming through NameMap. Fields whose
// original name ends in "Id" with a non-null value are additionally
// tagged for downstream correlation. The container's dedup identifier
// is a deterministic hash over the object type and id; an object
// without an id is an error, never a fabricated identifier.
func (b *Builder) Build(body map[string]any, sobject string) (*Container, error) {
	objectID, _ := body["Id"].(string)
	if objectID == "" {
		return nil, fmt.Errorf("%s object body has no Id field", sobject)
	}

	cef := make(map[string]any)
	cefTypes := make(map[string][]string)
	containerName := ""

	for key, value := range body {
		if key == "attributes" {
			continue
		}
		if b.StripRecencyFields && recencyFields[key] {
			continue
		}

		name := key
		if mapped, ok := b.NameMap[key]; ok {
			name = mapped
		}
		cef[name] = value

		if strings.HasSuffix(key, "Id") && value != nil {
			cefTypes[name] = []string{objectIDTag}
		}

		if name == "Subject" {
			containerName, _ = value.(string)
		}
	}

	if containerName == "" {
		number, _ := body["CaseNumber"].(string)
		if number == "" {
			number = objectID
		}
		containerName = fmt.Sprintf("Salesforce %s Object # %s", sobject, number)
	}

	container := &Container{
		Name:                 containerName,
		SourceDataIdentifier: sourceIdentifier(sobject, objectID),
		Artifacts: []*Artifact{{
			Name:     sobject,
			CEF:      cef,
			CEFTypes: cefTypes,
		}},
	}

	if severity, _ := body["Incident_Severity__c"].(string); severity != "" {
		container.Severity = mapWithDefault(severityMapping, severity, "medium")
	}
	if sensitivity, _ := body["Incident_Sensitivity__c"].(string); sensitivity != "" {
		container.Sensitivity = mapWithDefault(sensitivityMapping, sensitivity, "amber")
	}

	return container, nil
}

func mapWithDefault(mapping map[string]string, value, fallback string) string {
	if mapped, ok := mapping[strings.ToLower(value)]; ok {
		return mapped
	}
	return fallback
}

// sourceIdentifier hashes (sobject, id) so repeated ingestion runs
// over the same record produce byte-identical identifiers for the
// host's deduplication.
func sourceIdentifier(sobject, objectID string) string {
	sum := sha256.Sum256([]byte(sobject + objectID))
	return hex.EncodeToString(sum[:])
}
