package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"relay-agent/internal/domain"
)

const (
	skProfile = "PROFILE"
	skEmail   = "EMAIL"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoUsers.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoUsers stores users in a single table. Each user owns two items: the
// profile under USER#<id> and an email claim under EMAIL#<email>. Both are
// written in one transaction so an email can belong to one user only.
type DynamoUsers struct {
	api       dynamodbAPI
	tableName string
}

func NewDynamoUsers(api dynamodbAPI, tableName string) (*DynamoUsers, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoUsers{api: api, tableName: tableName}, nil
}

func userPK(id string) string {
	return "USER#" + id
}

func emailPK(email string) string {
	return "EMAIL#" + email
}

// CreateUser returns ErrUserExists when the email is already claimed.
func (c *DynamoUsers) CreateUser(ctx context.Context, u domain.User) error {
	if u.ID == "" || u.Email == "" {
		return errors.New("repository: CreateUser: id and email are required")
	}

	notExists := aws.String("attribute_not_exists(PK)")
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                emailItem(u),
					ConditionExpression: notExists,
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                profileItem(u),
					ConditionExpression: notExists,
				},
			},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) && conditionFailed(canceled) {
			return ErrUserExists
		}
		return fmt.Errorf("repository: CreateUser: %w", err)
	}
	return nil
}

func (c *DynamoUsers) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	item, err := c.getItem(ctx, userPK(id), skProfile)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUserByID: %w", err)
	}
	if item == nil {
		return domain.User{}, ErrUserNotFound
	}
	u, err := itemToUser(item)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUserByID unmarshal: %w", err)
	}
	return u, nil
}

func (c *DynamoUsers) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	item, err := c.getItem(ctx, emailPK(email), skEmail)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUserByEmail: %w", err)
	}
	if item == nil {
		return domain.User{}, ErrUserNotFound
	}
	id, err := strAttr(item, "userId")
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUserByEmail unmarshal: %w", err)
	}
	return c.GetUserByID(ctx, id)
}

func (c *DynamoUsers) getItem(ctx context.Context, pk, sk string) (map[string]types.AttributeValue, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

func conditionFailed(e *types.TransactionCanceledException) bool {
	for _, r := range e.CancellationReasons {
		if aws.ToString(r.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func profileItem(u domain.User) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: userPK(u.ID)},
		"SK":           &types.AttributeValueMemberS{Value: skProfile},
		"userId":       &types.AttributeValueMemberS{Value: u.ID},
		"email":        &types.AttributeValueMemberS{Value: u.Email},
		"passwordHash": &types.AttributeValueMemberS{Value: u.PasswordHash},
		"connected":    &types.AttributeValueMemberBOOL{Value: u.Connected},
		"createdAt":    &types.AttributeValueMemberS{Value: u.CreatedAt},
	}
}

func emailItem(u domain.User) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":     &types.AttributeValueMemberS{Value: emailPK(u.Email)},
		"SK":     &types.AttributeValueMemberS{Value: skEmail},
		"userId": &types.AttributeValueMemberS{Value: u.ID},
	}
}

func itemToUser(item map[string]types.AttributeValue) (domain.User, error) {
	id, err := strAttr(item, "userId")
	if err != nil {
		return domain.User{}, err
	}
	email, err := strAttr(item, "email")
	if err != nil {
		return domain.User{}, err
	}
	hash, err := strAttr(item, "passwordHash")
	if err != nil {
		return domain.User{}, err
	}
	createdAt, _ := strAttr(item, "createdAt") // allow empty
	connected, _ := boolAttr(item, "connected")

	return domain.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Connected:    connected,
		CreatedAt:    createdAt,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, fmt.Errorf("repository: missing attribute %q", key)
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, fmt.Errorf("repository: attribute %q is not a bool", key)
	}
	return b.Value, nil
}
