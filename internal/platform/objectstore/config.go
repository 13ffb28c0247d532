package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/verity-labs/verity-go/internal/platform/env"
)

type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	BucketEvidence string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("VERITY_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:       env.String("VERITY_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:      env.String("VERITY_MINIO_ACCESS_KEY", "verity"),
		SecretKey:      env.String("VERITY_MINIO_SECRET_KEY", "verityminio"),
		Region:         env.String("VERITY_MINIO_REGION", "us-east-1"),
		UseSSL:         useSSL,
		BucketEvidence: env.String("VERITY_MINIO_BUCKET_EVIDENCE", "release-evidence"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketEvidence) == "" {
		return errors.New("evidence bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
