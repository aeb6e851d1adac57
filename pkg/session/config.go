package session

import (
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
)

// Config holds the configuration for tablerecord
type Config struct {
	CredentialsProvider aws.CredentialsProvider `mapstructure:"-"`

	Region   string `mapstructure:"region" validate:"required"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	Profile  string `mapstructure:"profile"`

	// Static credentials, typically for a local endpoint
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required_with=AccessKeyID"`
	SessionToken    string `mapstructure:"session_token" validate:"excluded_without=AccessKeyID"`

	AssumeRoleARN string `mapstructure:"assume_role_arn" validate:"omitempty,startswith=arn:"`
	ExternalID    string `mapstructure:"external_id" validate:"excluded_without=AssumeRoleARN"`

	LogLevel  string `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	LogFormat string `mapstructure:"log_format" validate:"omitempty,oneof=json console"`

	AWSConfigOptions []func(*config.LoadOptions) error `mapstructure:"-"`
	DynamoDBOptions  []func(*dynamodb.Options)          `mapstructure:"-"`

	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=20"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Region:     "us-east-1",
		MaxRetries: 3,
		LogLevel:   "info",
		LogFormat:  "json",
	}
}

// LoadConfig overlays <PREFIX>_REGION, <PREFIX>_ENDPOINT, <PREFIX>_MAX_RETRIES and the
// other <PREFIX>_* variables onto DefaultConfig and validates the result.
func LoadConfig(prefix string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	prefixUpper := strings.ToUpper(strings.TrimSuffix(prefix, "_")) + "_"
	for _, envStr := range os.Environ() {
		key, value, ok := strings.Cut(envStr, "=")
		if !ok || !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		// TABLERECORD_MAX_RETRIES -> max_retries
		v.Set(strings.ToLower(strings.TrimPrefix(key, prefixUpper)), value)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration struct tags
func (c *Config) Validate() error {
	if c == nil {
		return customerrors.NewValidationError("config", fmt.Errorf("config is nil"))
	}
	if err := validate.Struct(c); err != nil {
		return customerrors.NewValidationError("config", err)
	}
	return nil
}
