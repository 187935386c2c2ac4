package transactions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultTTLAttribute is the item attribute holding the epoch-seconds expiry
// that DynamoDB TTL is configured against.
const DefaultTTLAttribute = "expires_at"

// DynamoDBConfig selects the table records are written to. Endpoint overrides
// the AWS endpoint, for example to target DynamoDB Local.
type DynamoDBConfig struct {
	Region       string
	Endpoint     string
	Table        string
	TTLAttribute string
}

type putItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBStore writes each record with a single conditional PutItem.
type DynamoDBStore struct {
	api          putItemAPI
	table        string
	ttlAttribute string
}

// NewDynamoDB loads AWS credentials from the default chain and returns a store
// bound to cfg.Table.
func NewDynamoDB(ctx context.Context, cfg DynamoDBConfig) (*DynamoDBStore, error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, errors.New("transactions: dynamodb table required")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("transactions: load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newDynamoDBStore(client, cfg.Table, cfg.TTLAttribute), nil
}

func newDynamoDBStore(api putItemAPI, table, ttlAttribute string) *DynamoDBStore {
	if strings.TrimSpace(ttlAttribute) == "" {
		ttlAttribute = DefaultTTLAttribute
	}
	return &DynamoDBStore{api: api, table: table, ttlAttribute: ttlAttribute}
}

func (s *DynamoDBStore) Put(ctx context.Context, record Record) error {
	item := map[string]types.AttributeValue{
		"transaction_id": &types.AttributeValueMemberS{Value: record.TransactionID},
		"artist_name":    &types.AttributeValueMemberS{Value: record.ArtistName},
		"cache_enabled":  &types.AttributeValueMemberBOOL{Value: record.CacheEnabled},
		"source":         &types.AttributeValueMemberS{Value: record.Source},
		"tracks_count":   &types.AttributeValueMemberN{Value: strconv.Itoa(record.TracksCount)},
		"created_at":     &types.AttributeValueMemberS{Value: record.CreatedAt.UTC().Format(time.RFC3339Nano)},
		s.ttlAttribute:   &types.AttributeValueMemberN{Value: strconv.FormatInt(record.ExpiresAt.Unix(), 10)},
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(transaction_id)"),
	})
	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return ErrDuplicate
		}
		return fmt.Errorf("dynamodb put item: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) Close(context.Context) error {
	return nil
}
