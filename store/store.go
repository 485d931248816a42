// Package store provides the metadata tier: a durable key-value store with
// full-scan capability, keyed by the record id. No transactions and no
// secondary indexes are assumed.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by GetByID when the table has no item with the
// given id.
var ErrNotFound = errors.New("item not found")

const idKey = "id"

// Store is the metadata tier contract used by the engine.
type Store interface {
	Upsert(ctx context.Context, table string, item interface{}) error
	GetByID(ctx context.Context, table, id string, out interface{}) error
	GetAll(ctx context.Context, table string, out interface{}) error
	DeleteByID(ctx context.Context, table, id string) error
}

// DynamoDB implements Store on top of a DynamoDB table whose partition key
// is the string attribute "id".
type DynamoDB struct {
	client dynamodbiface.DynamoDBAPI
	logger logrus.FieldLogger
}

var _ Store = (*DynamoDB)(nil)

func NewDynamoDB(logger logrus.FieldLogger, client dynamodbiface.DynamoDBAPI) *DynamoDB {
	return &DynamoDB{client: client, logger: logger}
}

// Upsert writes the item, replacing any previous item with the same id.
// Oversized items are logged with enough context to diagnose before the
// error is handed back to the caller, which owns the retry policy.
func (s *DynamoDB) Upsert(ctx context.Context, table string, item interface{}) error {
	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return errors.Wrap(err, "marshaling item")
	}
	_, err = s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		if isItemTooLarge(err) {
			blob, _ := json.Marshal(item)
			s.logger.WithFields(logrus.Fields{
				"table": table,
				"id":    itemID(av),
				"size":  len(blob),
			}).Error("Item exceeds the maximum item size")
		}
		return errors.Wrapf(err, "putting item into %s", table)
	}
	return nil
}

func (s *DynamoDB) GetByID(ctx context.Context, table, id string, out interface{}) error {
	output, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key: map[string]*dynamodb.AttributeValue{
			idKey: {S: aws.String(id)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "getting item %s from %s", id, table)
	}
	if output.Item == nil {
		return ErrNotFound
	}
	return dynamodbattribute.UnmarshalMap(output.Item, out)
}

// GetAll scans the whole table into out, following pagination. out must be
// a pointer to a slice.
func (s *DynamoDB) GetAll(ctx context.Context, table string, out interface{}) error {
	var items []map[string]*dynamodb.AttributeValue
	input := &dynamodb.ScanInput{TableName: aws.String(table)}
	for {
		output, err := s.client.ScanWithContext(ctx, input)
		if err != nil {
			return errors.Wrapf(err, "scanning %s", table)
		}
		items = append(items, output.Items...)
		if output.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
	return dynamodbattribute.UnmarshalListOfMaps(items, out)
}

// DeleteByID removes the item. Deleting an id that is already absent is a
// success.
func (s *DynamoDB) DeleteByID(ctx context.Context, table, id string) error {
	_, err := s.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key: map[string]*dynamodb.AttributeValue{
			idKey: {S: aws.String(id)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "deleting item %s from %s", id, table)
	}
	return nil
}

func isItemTooLarge(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	return aerr.Code() == "ValidationException" && strings.Contains(aerr.Message(), "Item size")
}

func itemID(av map[string]*dynamodb.AttributeValue) string {
	if v, ok := av[idKey]; ok && v.S != nil {
		return *v.S
	}
	return "<no id>"
}
