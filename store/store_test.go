package store

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	ID   string `dynamodbav:"id"`
	Name string `dynamodbav:"name"`
}

type mockDynamoDB struct {
	dynamodbiface.DynamoDBAPI

	putInput    *dynamodb.PutItemInput
	putErr      error
	getInput    *dynamodb.GetItemInput
	getOutput   *dynamodb.GetItemOutput
	scanInputs  []*dynamodb.ScanInput
	scanOutputs []*dynamodb.ScanOutput
	deleteInput *dynamodb.DeleteItemInput
}

func (m *mockDynamoDB) PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	m.putInput = input
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamoDB) GetItemWithContext(ctx aws.Context, input *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error) {
	m.getInput = input
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}

func (m *mockDynamoDB) ScanWithContext(ctx aws.Context, input *dynamodb.ScanInput, opts ...request.Option) (*dynamodb.ScanOutput, error) {
	m.scanInputs = append(m.scanInputs, input)
	output := m.scanOutputs[0]
	m.scanOutputs = m.scanOutputs[1:]
	return output, nil
}

func (m *mockDynamoDB) DeleteItemWithContext(ctx aws.Context, input *dynamodb.DeleteItemInput, opts ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	m.deleteInput = input
	return &dynamodb.DeleteItemOutput{}, nil
}

func testStore(client dynamodbiface.DynamoDBAPI) *DynamoDB {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewDynamoDB(logger, client)
}

func TestUpsert(t *testing.T) {
	mock := &mockDynamoDB{}
	s := testStore(mock)

	err := s.Upsert(context.Background(), "things", testItem{ID: "a", Name: "first"})
	require.NoError(t, err)
	require.Equal(t, "things", *mock.putInput.TableName)
	require.Equal(t, "a", *mock.putInput.Item["id"].S)
}

func TestUpsertItemTooLarge(t *testing.T) {
	mock := &mockDynamoDB{
		putErr: awserr.New("ValidationException", "Item size has exceeded the maximum allowed size", nil),
	}
	s := testStore(mock)

	err := s.Upsert(context.Background(), "things", testItem{ID: "a"})
	require.Error(t, err)
}

func TestGetByID(t *testing.T) {
	mock := &mockDynamoDB{
		getOutput: &dynamodb.GetItemOutput{
			Item: map[string]*dynamodb.AttributeValue{
				"id":   {S: aws.String("a")},
				"name": {S: aws.String("first")},
			},
		},
	}
	s := testStore(mock)

	var item testItem
	require.NoError(t, s.GetByID(context.Background(), "things", "a", &item))
	require.Equal(t, testItem{ID: "a", Name: "first"}, item)
	require.Equal(t, "a", *mock.getInput.Key["id"].S)
}

func TestGetByIDNotFound(t *testing.T) {
	s := testStore(&mockDynamoDB{})

	var item testItem
	err := s.GetByID(context.Background(), "things", "missing", &item)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetAllPaginates(t *testing.T) {
	page := func(id string, more bool) *dynamodb.ScanOutput {
		output := &dynamodb.ScanOutput{
			Items: []map[string]*dynamodb.AttributeValue{
				{"id": {S: aws.String(id)}},
			},
		}
		if more {
			output.LastEvaluatedKey = map[string]*dynamodb.AttributeValue{
				"id": {S: aws.String(id)},
			}
		}
		return output
	}
	mock := &mockDynamoDB{scanOutputs: []*dynamodb.ScanOutput{
		page("a", true),
		page("b", false),
	}}
	s := testStore(mock)

	var items []testItem
	require.NoError(t, s.GetAll(context.Background(), "things", &items))
	require.Len(t, items, 2)
	require.Len(t, mock.scanInputs, 2)
	require.NotNil(t, mock.scanInputs[1].ExclusiveStartKey)
}

func TestDeleteByID(t *testing.T) {
	mock := &mockDynamoDB{}
	s := testStore(mock)

	require.NoError(t, s.DeleteByID(context.Background(), "things", "a"))
	require.Equal(t, "a", *mock.deleteInput.Key["id"].S)
}

func TestIsItemTooLarge(t *testing.T) {
	tooLarge := awserr.New("ValidationException", "Item size has exceeded the maximum allowed size", nil)
	require.True(t, isItemTooLarge(errors.Wrap(tooLarge, "putting item")))
	require.False(t, isItemTooLarge(awserr.New("ValidationException", "One or more parameter values were invalid", nil)))
	require.False(t, isItemTooLarge(errors.New("plain error")))
}
