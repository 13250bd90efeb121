package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"livechat-backend/internal/env"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type DynamoDBClient struct {
	svc *dynamodb.Client
}

// DynamoConfig carries the connection settings for the DynamoDB client. Empty
// credentials fall back to the default AWS provider chain.
type DynamoConfig struct {
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	Endpoint     string
}

func DynamoConfigFromEnv() DynamoConfig {
	return DynamoConfig{
		Region:       env.GetOrDefault(env.AWSRegion, "eu-central-1"),
		AccessKey:    env.Get(env.AWSID),
		SecretKey:    env.Get(env.AWSSecret),
		SessionToken: env.Get(env.AWSToken),
		Endpoint:     env.Get(env.DynamoDBEndpoint),
	}
}

func NewDynamoDBClient(ctx context.Context, dc DynamoConfig) (*DynamoDBClient, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(dc.Region)}
	if dc.AccessKey != "" && dc.SecretKey != "" {
		static := credentials.NewStaticCredentialsProvider(dc.AccessKey, dc.SecretKey, dc.SessionToken)
		opts = append(opts, config.WithCredentialsProvider(aws.NewCredentialsCache(static)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	svc := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if dc.Endpoint != "" {
			o.BaseEndpoint = aws.String(dc.Endpoint)
		}
	})
	return &DynamoDBClient{svc: svc}, nil
}

// Database is the DynamoDB handle shared by the chat and auth repositories.
type Database struct {
	Client *DynamoDBClient
}

// IsIndexNotFound reports whether a query failed because the table lacks the GSI.
// Repositories fall back to a filtered scan in that case.
func IsIndexNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "index") && strings.Contains(msg, "not") && strings.Contains(msg, "found")
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

func NewDatabase(ctx context.Context, dc DynamoConfig) (*Database, error) {
	client, err := NewDynamoDBClient(ctx, dc)
	if err != nil {
		return nil, fmt.Errorf("init dynamodb client: %w", err)
	}
	return &Database{Client: client}, nil
}
