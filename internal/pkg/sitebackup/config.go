package sitebackup

import (
	"errors"
	"fmt"
	"time"

	"github.com/steeplelabs/steeple/internal/pkg/env"
)

// Config holds S3 snapshot configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("S3_SNAPSHOT_ENABLED", "false") == "true",
	}

	// Validate required fields if snapshots are enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 snapshots are enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 snapshots are enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 snapshots are enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if S3 snapshots are enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// GetObjectKey generates a standardized S3 object key for a site snapshot
func (c *Config) GetObjectKey(siteName string, publishedAt time.Time) string {
	// Format: sites/YYYY/MM/sitename-unix.json
	return fmt.Sprintf("sites/%04d/%02d/%s-%d.json",
		publishedAt.Year(), int(publishedAt.Month()), siteName, publishedAt.Unix())
}
