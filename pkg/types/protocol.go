package types

import "encoding/json"

// JSON-RPC error codes used by the engine server.
const (
	ErrInvalidRequest = 1001
	ErrProviderError  = 2001
	ErrJudgeFailure   = 2002
	ErrEngineError    = 3001
	ErrSessionError   = 3003

	ErrTypeInvalidRequest = "INVALID_REQUEST"
	ErrTypeProviderError  = "PROVIDER_ERROR"
	ErrTypeJudgeFailure   = "JUDGE_FAILURE"
	ErrTypeEngineError    = "ENGINE_ERROR"
	ErrTypeSessionError   = "SESSION_ERROR"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error object.
type RPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData holds structured error detail.
type ErrorData struct {
	ErrorType string `json:"error_type"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail"`
}

// NewRPCError constructs an RPCError with the given fields.
func NewRPCError(code int, message string, errorType string, retryable bool, detail string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data: &ErrorData{
			ErrorType: errorType,
			Retryable: retryable,
			Detail:    detail,
		},
	}
}

// NewErrorResponse constructs a JSON-RPC error response.
func NewErrorResponse(id int64, err *RPCError) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   err,
	}
}

// NewSuccessResponse constructs a JSON-RPC success response from a result value.
func NewSuccessResponse(id int64, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  raw,
	}, nil
}

// InitializeParams holds parameters for the initialize method.
type InitializeParams struct {
	SDKName              string   `json:"sdk_name"`
	SDKVersion           string   `json:"sdk_version"`
	ProtocolVersion      int      `json:"protocol_version"`
	RequiredCapabilities []string `json:"required_capabilities"`
}

// InitializeResult holds the result of the initialize method.
type InitializeResult struct {
	EngineVersion         string   `json:"engine_version"`
	ProtocolVersion       int      `json:"protocol_version"`
	Capabilities          []string `json:"capabilities"`
	Missing               []string `json:"missing"`
	Compatible            bool     `json:"compatible"`
	Encoding              string   `json:"encoding"`
	MaxConcurrentRequests int      `json:"max_concurrent_requests"`
}

// JudgeParams holds parameters for the judge method.
type JudgeParams struct {
	Actual      string  `json:"actual"`
	Expected    string  `json:"expected"`
	Context     string  `json:"context,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// JudgeResult holds the result of the judge method.
type JudgeResult struct {
	Judgment Judgment `json:"judgment"`
}

// CheckParams holds parameters for the check method. Identical in shape to
// JudgeParams but handled by the assertion surface, which formats failures.
type CheckParams = JudgeParams

// CheckResult holds the result of the check method.
type CheckResult struct {
	Passed         bool     `json:"passed"`
	Judgment       Judgment `json:"judgment"`
	FailureMessage string   `json:"failure_message,omitempty"`
}

// InvalidateCacheResult holds the result of the invalidate_cache method.
type InvalidateCacheResult struct {
	Cleared bool `json:"cleared"`
}

// ShutdownResult holds the result of the shutdown method.
type ShutdownResult struct {
	SessionsCompleted int `json:"sessions_completed"`
	JudgmentsIssued   int `json:"judgments_issued"`
}
