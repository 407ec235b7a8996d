package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
	"github.com/godspeedsystems/ingestor-sdk/pkg/webhook"
)

// S3Store persists tasks and registrations as JSON objects in a bucket.
// A process-wide mutex serializes read-modify-write updates; the store
// assumes single-process authority over the task set.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	mu     sync.Mutex
}

// NewS3Store creates an S3 store instance and verifies bucket access
func NewS3Store(cfg *Config) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}
	prefix := cfg.S3Prefix
	if prefix == "" {
		prefix = "ingestor/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	ctx := context.Background()

	var awsCfg aws.Config
	var err error
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.S3Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.S3Bucket),
	}); err != nil {
		return nil, fmt.Errorf("failed to access S3 bucket '%s': %w", cfg.S3Bucket, err)
	}

	log.Printf("[STORE] S3 store initialized: bucket=%s, region=%s, prefix=%s", cfg.S3Bucket, region, prefix)

	return &S3Store{client: client, bucket: cfg.S3Bucket, prefix: prefix}, nil
}

func (s *S3Store) taskKey(id string) string {
	return s.prefix + "tasks/" + id + ".json"
}

func (s *S3Store) registrationKey(sourceIdentifier string) string {
	// Source identifiers are URLs or folder ids; escape them into one key segment
	return s.prefix + "webhook_registry/" + url.PathEscape(sourceIdentifier) + ".json"
}

func (s *S3Store) getObject(ctx context.Context, key string, out any) (bool, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[STORE] Failed to close S3 response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to parse object %s: %w", key, err)
	}
	return true, nil
}

func (s *S3Store) putObject(ctx context.Context, key string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal object %s: %w", key, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) deleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// GetTask retrieves a task by id
func (s *S3Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	found, err := s.getObject(ctx, s.taskKey(id), &t)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, task.ErrTaskNotFound{ID: id}
	}
	return &t, nil
}

// SaveTask stores a new task, failing on a duplicate id
func (s *S3Store) SaveTask(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	var existing task.Task
	found, err := s.getObject(ctx, s.taskKey(t.ID), &existing)
	if err != nil {
		return err
	}
	if found {
		return task.ErrTaskExists{ID: t.ID}
	}
	return s.putObject(ctx, s.taskKey(t.ID), t)
}

// UpdateTask applies a partial update as a serialized read-modify-write
func (s *S3Store) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t task.Task
	found, err := s.getObject(ctx, s.taskKey(id), &t)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, task.ErrTaskNotFound{ID: id}
	}
	applyTaskPatch(&t, patch)
	if err := s.putObject(ctx, s.taskKey(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTask removes a task
func (s *S3Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteObject(ctx, s.taskKey(id))
}

// ListTasks retrieves all tasks under the task prefix
func (s *S3Store) ListTasks(ctx context.Context) ([]*task.Task, error) {
	var tasks []*task.Task

	prefix := s.prefix + "tasks/"
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}
		for _, obj := range page.Contents {
			var t task.Task
			found, err := s.getObject(ctx, aws.ToString(obj.Key), &t)
			if err != nil {
				log.Printf("[STORE] Skipping unreadable object %s: %v", aws.ToString(obj.Key), err)
				continue
			}
			if found {
				tasks = append(tasks, &t)
			}
		}
	}
	return tasks, nil
}

// GetRegistration retrieves a webhook registration by source identifier
func (s *S3Store) GetRegistration(ctx context.Context, sourceIdentifier string) (*webhook.Registration, error) {
	var reg webhook.Registration
	found, err := s.getObject(ctx, s.registrationKey(sourceIdentifier), &reg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, webhook.ErrRegistrationNotFound{SourceIdentifier: sourceIdentifier}
	}
	return &reg, nil
}

// SaveRegistration stores a webhook registration
func (s *S3Store) SaveRegistration(ctx context.Context, reg *webhook.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reg.SourceIdentifier == "" {
		return fmt.Errorf("source identifier cannot be empty")
	}
	return s.putObject(ctx, s.registrationKey(reg.SourceIdentifier), reg)
}

// UpdateRegistration applies a partial update as a serialized read-modify-write
func (s *S3Store) UpdateRegistration(ctx context.Context, sourceIdentifier string, patch RegistrationPatch) (*webhook.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reg webhook.Registration
	found, err := s.getObject(ctx, s.registrationKey(sourceIdentifier), &reg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, webhook.ErrRegistrationNotFound{SourceIdentifier: sourceIdentifier}
	}
	applyRegistrationPatch(&reg, patch)
	if err := s.putObject(ctx, s.registrationKey(sourceIdentifier), &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// DeleteRegistration removes a webhook registration
func (s *S3Store) DeleteRegistration(ctx context.Context, sourceIdentifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteObject(ctx, s.registrationKey(sourceIdentifier))
}

// Close is a no-op for the S3 store
func (s *S3Store) Close() error {
	return nil
}
