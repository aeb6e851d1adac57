// Package session provides configuration and the lazily built DynamoDB client
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/theory-cloud/tablerecord/pkg/interfaces"
)

// configLoadFunc is a variable to allow mocking config.LoadDefaultConfig in tests
var configLoadFunc = config.LoadDefaultConfig

// Session holds the shared DynamoDB client. The client is built on first use;
// concurrent first callers wait for a single construction.
type Session struct {
	config    *Config
	client    interfaces.DynamoDBAPI
	awsConfig aws.Config
	logger    zerolog.Logger
	mu        sync.Mutex
}

// NewSession validates cfg and returns a session without contacting AWS
func NewSession(cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Session{
		config: cfg,
		logger: NewLogger(cfg.LogLevel, cfg.LogFormat),
	}, nil
}

// Client returns the DynamoDB client, building it on the first call
func (s *Session) Client(ctx context.Context) (interfaces.DynamoDBAPI, error) {
	if s == nil {
		return nil, fmt.Errorf("session is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	client, awsConfig, err := buildClient(ctx, s.config)
	if err != nil {
		return nil, err
	}
	s.client = client
	s.awsConfig = awsConfig

	s.logger.Debug().
		Str("region", awsConfig.Region).
		Str("endpoint", s.config.Endpoint).
		Msg("dynamodb client initialized")

	return s.client, nil
}

// SetClient replaces the client, e.g. with a mock
func (s *Session) SetClient(client interfaces.DynamoDBAPI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
}

// Reset drops the client so the next Client call builds a new one
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.awsConfig = aws.Config{}
}

// Config returns the session configuration
func (s *Session) Config() *Config {
	return s.config
}

// AWSConfig returns the AWS configuration the client was built from
func (s *Session) AWSConfig() aws.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awsConfig
}

// Logger returns the session logger
func (s *Session) Logger() zerolog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// SetLogger replaces the session logger
func (s *Session) SetLogger(logger zerolog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

func buildClient(ctx context.Context, cfg *Config) (*dynamodb.Client, aws.Config, error) {
	options := make([]func(*config.LoadOptions) error, 0, len(cfg.AWSConfigOptions)+6)

	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		options = append(options, config.WithSharedConfigProfile(cfg.Profile))
	}

	switch {
	case cfg.CredentialsProvider != nil:
		options = append(options, config.WithCredentialsProvider(cfg.CredentialsProvider))
	case cfg.AccessKeyID != "":
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	maxAttempts := cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	options = append(options, config.WithRetryMode(aws.RetryModeStandard))
	options = append(options, config.WithRetryMaxAttempts(maxAttempts))

	httpClient := &http.Client{Timeout: 30 * time.Second}
	options = append(options, config.WithHTTPClient(httpClient))

	options = append(options, cfg.AWSConfigOptions...)

	awsConfig, err := configLoadFunc(ctx, options...)
	if err != nil {
		return nil, aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if awsConfig.Retryer == nil {
		awsConfig.Retryer = func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = maxAttempts
			})
		}
	}

	if cfg.AssumeRoleARN != "" {
		stsClient := sts.NewFromConfig(awsConfig)
		provider := stscreds.NewAssumeRoleProvider(stsClient, cfg.AssumeRoleARN, func(o *stscreds.AssumeRoleOptions) {
			if cfg.ExternalID != "" {
				o.ExternalID = aws.String(cfg.ExternalID)
			}
			o.RoleSessionName = "tablerecord"
			o.Duration = time.Hour
		})
		awsConfig.Credentials = aws.NewCredentialsCache(provider)
	}

	clientOptions := make([]func(*dynamodb.Options), 0, 1+len(cfg.DynamoDBOptions))
	clientOptions = append(clientOptions, func(o *dynamodb.Options) {
		o.Region = awsConfig.Region

		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if o.Retryer == nil {
			o.Retryer = awsConfig.Retryer()
		}
		if o.HTTPClient == nil {
			o.HTTPClient = httpClient
		}
	})
	clientOptions = append(clientOptions, cfg.DynamoDBOptions...)

	return dynamodb.NewFromConfig(awsConfig, clientOptions...), awsConfig, nil
}
