package provider

import (
	"context"
	"errors"
	"net"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"github.com/semtest-ai/semtest/engine/pkg/types"
)

// classifyStatus maps an HTTP status from a provider API to an error kind.
func classifyStatus(status int) types.ProviderErrorKind {
	switch {
	case status == 401 || status == 403:
		return types.ProviderAuth
	case status == 429:
		return types.ProviderRateLimit
	case status == 408:
		return types.ProviderTimeout
	default:
		return types.ProviderUnavailable
	}
}

// classifyTransport maps non-API errors (timeouts, connection failures,
// context expiry) to an error kind.
func classifyTransport(err error) types.ProviderErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ProviderTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.ProviderTimeout
	}
	return types.ProviderUnavailable
}

func anthropicError(name string, err error) *types.ProviderError {
	kind := classifyTransport(err)
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind = classifyStatus(apiErr.StatusCode)
	}
	return &types.ProviderError{Provider: name, Kind: kind, Err: err}
}

func openaiError(name string, err error) *types.ProviderError {
	kind := classifyTransport(err)
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind = classifyStatus(apiErr.StatusCode)
	}
	return &types.ProviderError{Provider: name, Kind: kind, Err: err}
}
