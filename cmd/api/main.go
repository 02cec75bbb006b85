package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"relay-agent/handler"
	"relay-agent/internal/config"
	"relay-agent/internal/integrations/paramstore"
	"relay-agent/internal/logging"
	"relay-agent/internal/repository"
	"relay-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	logger, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal(logger, "failed to load AWS config", err)
	}
	ssmClient, err := paramstore.NewFromConfig(awsCfg)
	if err != nil {
		fatal(logger, "failed to create SSM client", err)
	}

	// ---- Configuration (read only here) ----
	cfg, err := config.LoadAPI(ctx, os.Getenv, ssmClient)
	if err != nil {
		fatal(logger, "invalid configuration", err)
	}

	// ---- Clients ----
	users, err := userRepository(cfg, awsCfg)
	if err != nil {
		fatal(logger, "failed to create user repository", err)
	}

	// ---- Handler ----
	auth, err := usecase.NewAuthService(users, cfg.JWTSecret)
	if err != nil {
		fatal(logger, "failed to create auth service", err)
	}
	h, err := handler.NewHandler(auth, logger)
	if err != nil {
		fatal(logger, "failed to create handler", err)
	}

	lambda.Start(h.Handle)
}

func userRepository(cfg config.APIConfig, awsCfg aws.Config) (usecase.UserRepository, error) {
	switch cfg.UserStore {
	case config.UserStoreSQLite:
		return repository.OpenSQLiteUsers(cfg.SQLitePath)
	default:
		return repository.NewDynamoUsers(awsdynamodb.NewFromConfig(awsCfg), cfg.UsersTable)
	}
}

func fatal(logger *zap.Logger, msg string, err error) {
	logger.Error(msg, zap.Error(err))
	_ = logger.Sync()
	os.Exit(1)
}
