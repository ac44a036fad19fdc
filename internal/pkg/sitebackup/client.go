package sitebackup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/steeplelabs/steeple/app/models"
)

// Client archives published-site metadata to S3 so a site can be rebuilt on
// the builder if its record is ever lost there.
type Client struct {
	s3Client *s3.Client
	config   *Config
}

// snapshot is the JSON document written per published site.
type snapshot struct {
	SiteName    string     `json:"site_name"`
	TemplateID  string     `json:"template_id"`
	PreviewURL  string     `json:"preview_url"`
	LiveURL     string     `json:"live_url"`
	PublishedAt *time.Time `json:"published_at"`
	Email       string     `json:"email"`
	ChurchName  string     `json:"church_name"`
	InvoiceID   string     `json:"invoice_id"`
	CapturedAt  time.Time  `json:"captured_at"`
}

// NewClient creates a new S3 snapshot client
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("S3 snapshots are disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	client := &Client{
		s3Client: s3Client,
		config:   cfg,
	}

	log.Infof("[SiteBackup] Successfully initialized S3 client for bucket: %s", cfg.BucketName)
	return client, nil
}

// SnapshotSite writes one JSON snapshot for a freshly published site.
func (c *Client) SnapshotSite(ctx context.Context, site *models.Site, trial *models.Trial) error {
	doc := snapshot{
		SiteName:    site.SiteName,
		TemplateID:  site.TemplateID,
		PreviewURL:  site.PreviewURL,
		LiveURL:     site.LiveURL,
		PublishedAt: site.PublishedAt,
		Email:       trial.Email,
		ChurchName:  trial.ChurchName,
		InvoiceID:   trial.InvoiceID,
		CapturedAt:  time.Now(),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for %s: %w", site.SiteName, err)
	}

	publishedAt := time.Now()
	if site.PublishedAt != nil {
		publishedAt = *site.PublishedAt
	}
	key := c.config.GetObjectKey(site.SiteName, publishedAt)

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot s3://%s/%s: %w", c.config.BucketName, key, err)
	}

	log.Infof("[SiteBackup] Snapshot stored: s3://%s/%s", c.config.BucketName, key)
	return nil
}
