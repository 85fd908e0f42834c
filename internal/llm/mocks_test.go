package llm

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/audit-cli/pkg/anthropic"
	"github.com/sells-group/audit-cli/pkg/together"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func (m *mockAnthropic) StreamMessage(ctx context.Context, req anthropic.MessageRequest, onDelta func(string)) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if chunks, ok := args.Get(2).([]string); ok && onDelta != nil {
		for _, chunk := range chunks {
			onDelta(chunk)
		}
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockTogether struct {
	mock.Mock
}

func (m *mockTogether) ChatCompletion(ctx context.Context, req together.ChatCompletionRequest) (*together.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*together.ChatCompletionResponse), args.Error(1)
}

func (m *mockTogether) StreamChatCompletion(ctx context.Context, req together.ChatCompletionRequest, onDelta func(string)) (*together.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if chunks, ok := args.Get(2).([]string); ok && onDelta != nil {
		for _, chunk := range chunks {
			onDelta(chunk)
		}
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*together.ChatCompletionResponse), args.Error(1)
}
