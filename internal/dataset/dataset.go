// Package dataset resolves dataset profiles for the sweep orchestrator.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports that no profile exists for the requested dataset id.
var ErrNotFound = errors.New("dataset not found")

// ErrEmptyDataset reports a profile with zero pages or zero tokens.
var ErrEmptyDataset = errors.New("dataset is empty")

// Profile is the shape of the dataset the evaluation battery runs against.
type Profile struct {
	DatasetID  string `json:"dataset_id"`
	PageCount  int64  `json:"page_count"`
	TokenCount int64  `json:"token_count"`
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.DatasetID) == "" {
		return errors.New("dataset id is required")
	}
	if p.PageCount <= 0 {
		return fmt.Errorf("%w: zero pages", ErrEmptyDataset)
	}
	if p.TokenCount <= 0 {
		return fmt.Errorf("%w: zero tokens", ErrEmptyDataset)
	}
	return nil
}

// Source resolves dataset profiles.
type Source interface {
	Profile(ctx context.Context, datasetID string) (Profile, error)
}

// StaticSource serves profiles from memory. Smoke runs and tests use it.
type StaticSource struct {
	profiles map[string]Profile
}

func NewStaticSource(profiles ...Profile) *StaticSource {
	out := &StaticSource{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		out.profiles[p.DatasetID] = p
	}
	return out
}

func (s *StaticSource) Profile(_ context.Context, datasetID string) (Profile, error) {
	if s == nil {
		return Profile{}, ErrNotFound
	}
	p, ok := s.profiles[strings.TrimSpace(datasetID)]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, datasetID)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}
