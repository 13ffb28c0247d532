package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PostgresSource resolves dataset profiles from the dataset registry.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) (*PostgresSource, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &PostgresSource{db: db}, nil
}

func (s *PostgresSource) Profile(ctx context.Context, datasetID string) (Profile, error) {
	if s == nil || s.db == nil {
		return Profile{}, errors.New("postgres source not initialized")
	}
	datasetID = strings.TrimSpace(datasetID)
	if datasetID == "" {
		return Profile{}, errors.New("dataset id is required")
	}

	var profile Profile
	err := s.db.QueryRowContext(
		ctx,
		`SELECT dataset_id, page_count, token_count
		 FROM dataset_profiles
		 WHERE dataset_id = $1`,
		datasetID,
	).Scan(&profile.DatasetID, &profile.PageCount, &profile.TokenCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, datasetID)
		}
		return Profile{}, fmt.Errorf("query dataset profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}
	return profile, nil
}
