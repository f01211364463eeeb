// Package state persists per-asset credential state as a JSON file,
// one file per validated asset identifier. The file carries everything
// that must survive between action invocations: the encrypted refresh
// token, in-flight authorization parameters, the resolved API version
// path and the ingestion cursor.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofrs/flock"
)

// CredentialState mirrors the on-disk state file. The pending fields
// (Creds, ConsentURL, TokenURL, Error) exist only between authorization
// start and completion; omitempty guarantees they are erased from the
// rewritten file once cleared, not merely nulled.
type CredentialState struct {
	// RefreshToken is the encrypted long-lived credential. Absent until
	// an authorization flow completes.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Creds holds the encrypted pending authorization parameters and
	// ConsentURL the encrypted identity-provider consent URL, both
	// written by the authorization start and consumed by the bridge.
	Creds      string `json:"creds,omitempty"`
	ConsentURL string `json:"url,omitempty"`
	TokenURL   string `json:"url_get_token,omitempty"`

	// LatestVersion is the newest API version path recorded by the
	// connectivity test, e.g. "/services/data/v56.0".
	LatestVersion string `json:"latest_version,omitempty"`

	// CursorOffset is the ingestion cursor. nil means ingestion has
	// never run for this asset.
	CursorOffset *int `json:"cur_offset,omitempty"`

	// Error is set by the bridge when an authorization exchange fails,
	// so the waiter observes termination instead of timing out.
	Error bool `json:"error,omitempty"`
}

// HasPending reports whether an authorization attempt is in flight.
func (s *CredentialState) HasPending() bool {
	return s.Creds != "" || s.ConsentURL != ""
}

// ClearPending drops the in-flight authorization fields. Saving the
// state afterwards rewrites the file without them.
func (s *CredentialState) ClearPending() {
	s.Creds = ""
	s.ConsentURL = ""
	s.TokenURL = ""
	s.Error = false
}

var assetIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ValidateAssetID enforces the alphanumeric allow-list before an asset
// identifier is ever used to derive a file path.
func ValidateAssetID(assetID string) error {
	if !assetIDPattern.MatchString(assetID) {
		return fmt.Errorf("invalid asset id %q: must be alphanumeric", assetID)
	}
	return nil
}

// Store reads and writes per-asset state files inside a single
// designated directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}
	return &Store{dir: abs}, nil
}

// path derives the state file path for an asset, rejecting any
// identifier that would resolve outside the state directory.
func (s *Store) path(assetID string) (string, error) {
	if err := ValidateAssetID(assetID); err != nil {
		return "", err
	}
	p := filepath.Join(s.dir, assetID+"_state.json")
	if filepath.Dir(p) != s.dir || !strings.HasPrefix(p, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("state path for asset %q escapes state directory", assetID)
	}
	return p, nil
}

// Load returns the asset's persisted state, or an empty state when no
// file exists yet.
func (s *Store) Load(assetID string) (*CredentialState, error) {
	p, err := s.path(assetID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return &CredentialState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	st := &CredentialState{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return st, nil
}

func (s *Store) Save(assetID string, st *CredentialState) error {
	p, err := s.path(assetID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(p, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Delete removes the asset's state file. A missing file is not an
// error; the waiter deletes unconditionally on every exit path.
func (s *Store) Delete(assetID string) error {
	p, err := s.path(assetID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

// Update runs a read-modify-write under an advisory per-asset file
// lock, for hosts that interleave invocations against one asset.
func (s *Store) Update(assetID string, mutate func(*CredentialState) error) error {
	if err := ValidateAssetID(assetID); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(s.dir, assetID+".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock state for asset %s: %w", assetID, err)
	}
	defer lock.Unlock()

	st, err := s.Load(assetID)
	if err != nil {
		return err
	}
	if err := mutate(st); err != nil {
		return err
	}
	return s.Save(assetID, st)
}
