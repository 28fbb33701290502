// Command lambda runs the chat API behind API Gateway.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/tmc/langchaingo/llms/openai"

	"shopchat/chat"
	"shopchat/log"
	"shopchat/memstore"
	"shopchat/session"
	"shopchat/workflow"
)

var corsHeaders = map[string]string{
	"Content-Type":                 "application/json",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
	"Access-Control-Allow-Methods": "GET,POST,OPTIONS",
}

type handler struct {
	svc    *chat.Service
	logger log.Logger
}

func main() {
	ctx := context.Background()
	logger := log.NewDefaultLogger(log.LogLevelInfo)
	log.SetDefaultLogger(logger)

	h, err := newHandler(ctx, logger)
	if err != nil {
		logger.Error("lambda: setup failed: %v", err)
		os.Exit(1)
	}
	lambda.Start(h.handle)
}

func newHandler(ctx context.Context, logger log.Logger) (*handler, error) {
	opts := []openai.Option{}
	if base := os.Getenv("OPENAI_API_BASE"); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	if modelName := os.Getenv("OPENAI_MODEL"); modelName != "" {
		opts = append(opts, openai.WithModel(modelName))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	sessions, err := buildSessionStore(ctx, logger)
	if err != nil {
		return nil, err
	}

	runner, err := workflow.New(workflow.Options{
		Model:  model,
		Memory: memstore.NewMemoryStore(),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	svc, err := chat.NewService(chat.Config{
		Store:  sessions,
		Runner: runner,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return &handler{svc: svc, logger: logger}, nil
}

func buildSessionStore(ctx context.Context, logger log.Logger) (session.Store, error) {
	sessionTable := os.Getenv("SESSION_TABLE")
	historyTable := os.Getenv("HISTORY_TABLE")
	if sessionTable == "" || historyTable == "" {
		logger.Warn("lambda: session tables not configured, history is per-invocation only")
		return session.NewMemoryStore(), nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	dynamo, err := session.NewDynamoDBStore(awsdynamodb.NewFromConfig(cfg), sessionTable, historyTable)
	if err != nil {
		return nil, err
	}
	return session.NewFallbackStore(ctx, dynamo, session.NewMemoryStore(), "dynamodb", logger), nil
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

func (h *handler) handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	// Preflight.
	if event.HTTPMethod == "OPTIONS" {
		return respond(200, map[string]string{"message": "OK"}), nil
	}

	if event.Body == "" {
		return respond(400, map[string]string{"error": "Request body is required"}), nil
	}

	var req chatRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return respond(400, map[string]string{"error": "Invalid request body"}), nil
	}

	resp, err := h.svc.Chat(ctx, req.Message, req.SessionID)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			return respond(400, map[string]string{"error": "Message is required"}), nil
		}
		h.logger.Error("lambda: chat failed: %v", err)
		return respond(500, map[string]string{"error": "Internal server error"}), nil
	}

	return respond(200, map[string]any{
		"response":      resp.Response,
		"session_id":    resp.SessionID,
		"workflow_path": resp.WorkflowPath,
		"intent_type":   resp.IntentType,
		"final_agent":   resp.FinalAgent,
		"message":       req.Message,
	}), nil
}

func respond(status int, body any) events.APIGatewayProxyResponse {
	data, _ := json.Marshal(body)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    corsHeaders,
		Body:       string(data),
	}
}
