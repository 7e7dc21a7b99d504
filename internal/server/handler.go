package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/semtest-ai/semtest/engine/internal/assertion"
	"github.com/semtest-ai/semtest/engine/internal/judge"
	"github.com/semtest-ai/semtest/engine/internal/prompt"
	"github.com/semtest-ai/semtest/engine/pkg/types"
)

const (
	engineVersion   = "0.1.0"
	protocolVersion = 1
)

// RegisterBuiltinHandlers registers the built-in JSON-RPC handlers on s,
// all backed by the given judge engine.
func RegisterBuiltinHandlers(s *Server, engine *judge.Engine) {
	caps := []string{"judge", "check", "cache_invalidation"}

	s.RegisterHandler("initialize", handleInitialize(caps))
	s.RegisterHandler("judge", handleJudge(engine))
	s.RegisterHandler("check", handleCheck(assertion.New(engine)))
	s.RegisterHandler("invalidate_cache", handleInvalidateCache(engine))
	s.RegisterHandler("shutdown", handleShutdown)
}

func handleInitialize(caps []string) Handler {
	return func(session *Session, params json.RawMessage) (any, *types.RPCError) {
		if session.State() != StateUninitialized {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"initialize called on already-initialized session",
				types.ErrTypeSessionError,
				false,
				"initialize may only be called once per session",
			)
		}

		var p types.InitializeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"invalid initialize params",
				types.ErrTypeSessionError,
				false,
				err.Error(),
			)
		}

		if p.ProtocolVersion != protocolVersion {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				fmt.Sprintf("protocol version %d not supported; engine supports version %d", p.ProtocolVersion, protocolVersion),
				types.ErrTypeSessionError,
				false,
				"upgrade the engine binary or downgrade the SDK protocol_version",
			)
		}

		supported := make(map[string]bool, len(caps))
		for _, c := range caps {
			supported[c] = true
		}

		missing := []string{}
		for _, req := range p.RequiredCapabilities {
			if !supported[req] {
				missing = append(missing, req)
			}
		}

		session.SetState(StateInitialized)

		return &types.InitializeResult{
			EngineVersion:         engineVersion,
			ProtocolVersion:       protocolVersion,
			Capabilities:          caps,
			Missing:               missing,
			Compatible:            len(missing) == 0,
			Encoding:              "json",
			MaxConcurrentRequests: 64,
		}, nil
	}
}

// parseJudgmentRequest validates judge/check params and converts them to an
// engine request. Both methods share the same parameter shape.
func parseJudgmentRequest(params json.RawMessage, method string) (*types.JudgmentRequest, *types.RPCError) {
	var p types.JudgeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, types.NewRPCError(
			types.ErrInvalidRequest,
			fmt.Sprintf("invalid %s params: %v", method, err),
			types.ErrTypeInvalidRequest,
			false,
			"check the request format matches the protocol",
		)
	}

	req := &types.JudgmentRequest{
		Actual:   p.Actual,
		Expected: p.Expected,
		Context:  p.Context,
		ModelID:  p.Model,
		Params:   types.DefaultParams,
	}
	if p.Temperature != 0 {
		req.Params.Temperature = p.Temperature
	}
	if p.MaxTokens != 0 {
		req.Params.MaxTokens = p.MaxTokens
	}
	return req, nil
}

// judgeRPCError maps engine errors onto protocol errors. Infrastructure
// exhaustion is retryable from the client's point of view; a rejected
// request is not.
func judgeRPCError(err error) *types.RPCError {
	if errors.Is(err, prompt.ErrEmptyExpected) {
		return types.NewRPCError(
			types.ErrInvalidRequest,
			"expected must be non-empty",
			types.ErrTypeInvalidRequest,
			false,
			err.Error(),
		)
	}

	var jf *types.JudgeFailure
	if errors.As(err, &jf) {
		return types.NewRPCError(
			types.ErrJudgeFailure,
			"all judge providers exhausted",
			types.ErrTypeJudgeFailure,
			true,
			jf.Error(),
		)
	}

	return types.NewRPCError(
		types.ErrEngineError,
		fmt.Sprintf("judgment failed: %v", err),
		types.ErrTypeEngineError,
		false,
		"internal engine error",
	)
}

func handleJudge(engine *judge.Engine) Handler {
	return func(session *Session, params json.RawMessage) (any, *types.RPCError) {
		if session.State() != StateInitialized {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"judge called before initialize",
				types.ErrTypeSessionError,
				false,
				"call initialize first to establish a session",
			)
		}

		req, rpcErr := parseJudgmentRequest(params, "judge")
		if rpcErr != nil {
			return nil, rpcErr
		}

		j, err := engine.Judge(context.Background(), req)
		if err != nil {
			return nil, judgeRPCError(err)
		}

		session.IncrementJudgments(1)
		return &types.JudgeResult{Judgment: *j}, nil
	}
}

func handleCheck(asserter *assertion.Asserter) Handler {
	return func(session *Session, params json.RawMessage) (any, *types.RPCError) {
		if session.State() != StateInitialized {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"check called before initialize",
				types.ErrTypeSessionError,
				false,
				"call initialize first to establish a session",
			)
		}

		var p types.CheckParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.NewRPCError(
				types.ErrInvalidRequest,
				fmt.Sprintf("invalid check params: %v", err),
				types.ErrTypeInvalidRequest,
				false,
				"check the request format matches the protocol",
			)
		}

		opts := []assertion.Option{}
		if p.Context != "" {
			opts = append(opts, assertion.WithContext(p.Context))
		}
		if p.Model != "" {
			opts = append(opts, assertion.WithModel(p.Model))
		}
		if p.Temperature != 0 {
			opts = append(opts, assertion.WithTemperature(p.Temperature))
		}
		if p.MaxTokens != 0 {
			opts = append(opts, assertion.WithMaxTokens(p.MaxTokens))
		}

		out, err := asserter.Check(context.Background(), p.Actual, p.Expected, opts...)
		if err != nil {
			return nil, judgeRPCError(err)
		}

		session.IncrementJudgments(1)
		return &types.CheckResult{
			Passed:         out.Passed,
			Judgment:       *out.Judgment,
			FailureMessage: out.FailureMessage,
		}, nil
	}
}

func handleInvalidateCache(engine *judge.Engine) Handler {
	return func(session *Session, params json.RawMessage) (any, *types.RPCError) {
		if session.State() != StateInitialized {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"invalidate_cache called before initialize",
				types.ErrTypeSessionError,
				false,
				"call initialize first to establish a session",
			)
		}

		if err := engine.InvalidateCache(); err != nil {
			return nil, types.NewRPCError(
				types.ErrEngineError,
				fmt.Sprintf("cache invalidation failed: %v", err),
				types.ErrTypeEngineError,
				true,
				"the cache store rejected the delete; retry or remove the cache file",
			)
		}

		return &types.InvalidateCacheResult{Cleared: true}, nil
	}
}

func handleShutdown(session *Session, _ json.RawMessage) (any, *types.RPCError) {
	if session.State() != StateInitialized {
		return nil, types.NewRPCError(
			types.ErrSessionError,
			"shutdown called on uninitialized or already-shutting-down session",
			types.ErrTypeSessionError,
			false,
			"call initialize before shutdown",
		)
	}

	session.SetState(StateShuttingDown)
	completed, issued := session.CompleteSession()

	return &types.ShutdownResult{
		SessionsCompleted: int(completed),
		JudgmentsIssued:   int(issued),
	}, nil
}
