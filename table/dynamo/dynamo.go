// Package dynamo is a table.Repository backed by DynamoDB.
//
// Each table maps to one DynamoDB table named TablePrefix+name with a string
// hash key PartitionKey and a string range key RowKey. Writes are
// conditional puts on the ETag attribute; a failed condition means another
// writer got there first, and the read-mutate-write cycle is retried.
//
// Items whose ttl attribute has passed are treated as absent even before
// DynamoDB removes them.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/cell"
	"github.com/jacentio/lattice/table"
)

// Client is the subset of the DynamoDB API the repository uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	dynamodb.ScanAPIClient
}

// Config holds configuration for the Repository.
type Config struct {
	// TablePrefix is prepended to every table name.
	// Default: ""
	TablePrefix string

	// MaxAttempts bounds the read-mutate-write cycles of one write.
	// Default: table.DefaultMaxAttempts
	MaxAttempts int

	// Now returns the current time, used for timestamps and TTL checks.
	// Default: time.Now
	Now func() time.Time
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{MaxAttempts: table.DefaultMaxAttempts, Now: time.Now}
}

func (c *Config) validate() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = table.DefaultMaxAttempts
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Repository stores rows in DynamoDB.
type Repository struct {
	client Client
	config Config
}

var (
	_ table.Repository = (*Repository)(nil)
	_ table.Scanner    = (*Repository)(nil)
)

// New creates a Repository over client.
func New(client Client, cfg Config) *Repository {
	cfg.validate()
	return &Repository{client: client, config: cfg}
}

// LoadDefault creates a Repository using the default AWS credential chain.
func LoadDefault(ctx context.Context, cfg Config, optFns ...func(*config.LoadOptions) error) (*Repository, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(awsCfg), cfg), nil
}

// TableName returns the DynamoDB table name for tbl.
func (r *Repository) TableName(tbl string) string {
	return r.config.TablePrefix + tbl
}

func (r *Repository) get(ctx context.Context, tbl string, key cell.Key) (*table.Row, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.TableName(tbl)),
		Key:            KeyAttributes(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil || IsExpired(out.Item, r.config.Now()) {
		return nil, nil
	}
	return DecodeItem(out.Item)
}

// put writes row with ETag etag+1 if cond holds. It reports false when the
// condition failed.
func (r *Repository) put(ctx context.Context, tbl string, row *table.Row, etag int64, cond condition) (*table.Row, bool, error) {
	stored := row.Clone()
	stored.ETag = etag + 1
	stored.Timestamp = r.config.Now().UTC()
	if stored.Cells == nil {
		stored.Cells = cell.Bag{}
	}
	item, err := EncodeItem(stored)
	if err != nil {
		return nil, false, err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.TableName(tbl)),
		Item:                      item,
		ConditionExpression:       aws.String(cond.expr),
		ExpressionAttributeNames:  cond.names,
		ExpressionAttributeValues: cond.values,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return stored, true, nil
}

func (r *Repository) Find(ctx context.Context, tbl string, key cell.Key) (*table.Row, error) {
	row, err := r.get(ctx, tbl, key)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, table.ErrNotFound
	}
	return row, nil
}

func (r *Repository) CreateOrGet(ctx context.Context, tbl string, key cell.Key, init table.Mutator) (bool, *table.Row, error) {
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		current, err := r.get(ctx, tbl, key)
		if err != nil {
			return false, nil, err
		}
		if current != nil {
			return false, current, nil
		}

		next := &table.Row{Key: key, Cells: cell.Bag{}}
		if err := init(next); err != nil {
			return false, nil, err
		}
		next.Key = key
		row, ok, err := r.put(ctx, tbl, next, 0, absentCond(r.config.Now()))
		if err != nil {
			return false, nil, err
		}
		if ok {
			return true, row, nil
		}
	}
	return false, nil, fmt.Errorf("%w: create %s %v", table.ErrConflict, tbl, key)
}

func (r *Repository) Update(ctx context.Context, tbl string, key cell.Key, mutate table.Mutator) (*table.Row, error) {
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		current, err := r.get(ctx, tbl, key)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, table.ErrNotFound
		}

		next := current.Clone()
		if err := mutate(next); errors.Is(err, table.ErrNoChange) {
			return current, nil
		} else if err != nil {
			return nil, err
		}
		next.Key = key
		row, ok, err := r.put(ctx, tbl, next, current.ETag, versionCond(current.ETag, r.config.Now()))
		if err != nil {
			return nil, err
		}
		if ok {
			return row, nil
		}
	}
	return nil, fmt.Errorf("%w: update %s %v", table.ErrConflict, tbl, key)
}

func (r *Repository) Delete(ctx context.Context, tbl string, key cell.Key) (*table.Row, error) {
	cond := liveCond(r.config.Now())
	out, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.TableName(tbl)),
		Key:                       KeyAttributes(key),
		ConditionExpression:       aws.String(cond.expr),
		ExpressionAttributeNames:  cond.names,
		ExpressionAttributeValues: cond.values,
		ReturnValues:              types.ReturnValueAllOld,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, table.ErrNotFound
		}
		return nil, err
	}
	return DecodeItem(out.Attributes)
}

// Scan pages through the whole table, skipping expired items.
func (r *Repository) Scan(ctx context.Context, tbl string, fn func(*table.Row) error) error {
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                 aws.String(r.TableName(tbl)),
		FilterExpression:          aws.String(TTLFilterExpr()),
		ExpressionAttributeNames:  map[string]string{"#ttl": AttrTTL},
		ExpressionAttributeValues: map[string]types.AttributeValue{":now": nowValue(r.config.Now())},
		ConsistentRead:            aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range page.Items {
			row, err := DecodeItem(raw)
			if err != nil {
				return err
			}
			if err := fn(row); err != nil {
				return err
			}
		}
	}
	return nil
}
