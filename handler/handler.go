package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"relay-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// AuthUseCase is the account API consumed by Handler.
type AuthUseCase interface {
	Signup(ctx context.Context, in usecase.Credentials) error
	Login(ctx context.Context, in usecase.Credentials) (string, error)
	Me(ctx context.Context, authorization string) (usecase.Profile, error)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type profileResponse struct {
	Email     string `json:"email"`
	Connected bool   `json:"connected_transport"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// messages maps use case reasons onto the text returned to API clients.
var messages = map[string]string{
	"missing_fields":          "All fields are required",
	"user_exists":             "User already exists",
	"user_not_found":          "User not found",
	"invalid_password":        "Invalid password",
	"missing_token":           "No token provided",
	"invalid_auth_format":     "Invalid auth format",
	"invalid_token":           "Invalid token",
	"invalid_token_structure": "Invalid token structure",
	"invalid_body":            "Invalid request body",
}

type Handler struct {
	auth   AuthUseCase
	logger *zap.Logger
}

func NewHandler(auth AuthUseCase, logger *zap.Logger) (*Handler, error) {
	if auth == nil {
		return nil, errors.New("handler: auth use case must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{auth: auth, logger: logger}, nil
}

// Handle routes an API Gateway proxy request to signup, login or me.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With(zap.String("correlation_id", correlationID))

	var resp events.APIGatewayProxyResponse
	switch route(req) {
	case http.MethodPost + " /signup":
		resp = h.signup(ctx, req, logger)
	case http.MethodPost + " /login":
		resp = h.login(ctx, req, logger)
	case http.MethodGet + " /me":
		resp = h.me(ctx, req, logger)
	default:
		resp = jsonResponse(http.StatusNotFound, errorResponse{Error: "Not found", Code: "NOT_FOUND"})
	}

	resp.Headers[correlationHeader] = correlationID
	logger.Info("request handled",
		zap.String("method", req.HTTPMethod),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
	)
	return resp, nil
}

func (h *Handler) signup(ctx context.Context, req events.APIGatewayProxyRequest, logger *zap.Logger) events.APIGatewayProxyResponse {
	in, ok := decodeCredentials(req.Body)
	if !ok {
		return errorFor(logger, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body"})
	}
	if err := h.auth.Signup(ctx, in); err != nil {
		return errorFor(logger, err)
	}
	return jsonResponse(http.StatusOK, messageResponse{Message: "Signup successful"})
}

func (h *Handler) login(ctx context.Context, req events.APIGatewayProxyRequest, logger *zap.Logger) events.APIGatewayProxyResponse {
	in, ok := decodeCredentials(req.Body)
	if !ok {
		return errorFor(logger, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body"})
	}
	token, err := h.auth.Login(ctx, in)
	if err != nil {
		return errorFor(logger, err)
	}
	return jsonResponse(http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) me(ctx context.Context, req events.APIGatewayProxyRequest, logger *zap.Logger) events.APIGatewayProxyResponse {
	p, err := h.auth.Me(ctx, header(req.Headers, "Authorization"))
	if err != nil {
		return errorFor(logger, err)
	}
	return jsonResponse(http.StatusOK, profileResponse{Email: p.Email, Connected: p.Connected})
}

func decodeCredentials(body string) (usecase.Credentials, bool) {
	var in credentialsRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return usecase.Credentials{}, false
	}
	return usecase.Credentials{Email: in.Email, Password: in.Password}, true
}

func errorFor(logger *zap.Logger, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		ucErr = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected", Err: err}
	}

	status := statusFor(ucErr.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", string(ucErr.Code)), zap.String("reason", ucErr.Reason), zap.Error(err))
	}
	msg, ok := messages[ucErr.Reason]
	if !ok {
		msg = "Internal server error"
	}
	return jsonResponse(status, errorResponse{Error: msg, Code: string(ucErr.Code)})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorUnauthorized:
		return http.StatusUnauthorized
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Internal server error","code":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func route(req events.APIGatewayProxyRequest) string {
	path := strings.TrimRight(req.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i:]
	}
	return strings.ToUpper(req.HTTPMethod) + " " + path
}

func header(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
