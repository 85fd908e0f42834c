// Package mocks provides test doubles for llm providers.
package mocks

import (
	"context"

	llm "github.com/sells-group/audit-cli/internal/llm"
	mock "github.com/stretchr/testify/mock"
)

// MockProvider is a mock type for the Provider interface.
type MockProvider struct {
	mock.Mock
}

// Name provides a mock function with no fields
func (_m *MockProvider) Name() string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Name")
	}

	if rf, ok := ret.Get(0).(func() string); ok {
		return rf()
	}
	return ret.String(0)
}

// DefaultModel provides a mock function with no fields
func (_m *MockProvider) DefaultModel() string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for DefaultModel")
	}

	if rf, ok := ret.Get(0).(func() string); ok {
		return rf()
	}
	return ret.String(0)
}

// Call provides a mock function with given fields: ctx, req
func (_m *MockProvider) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Call")
	}

	var r0 *llm.Response
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, llm.Request) (*llm.Response, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*llm.Response)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Stream provides a mock function with given fields: ctx, req, onChunk
func (_m *MockProvider) Stream(ctx context.Context, req llm.Request, onChunk llm.ChunkFunc) (*llm.Response, error) {
	ret := _m.Called(ctx, req, onChunk)

	if len(ret) == 0 {
		panic("no return value specified for Stream")
	}

	var r0 *llm.Response
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, llm.Request, llm.ChunkFunc) (*llm.Response, error)); ok {
		return rf(ctx, req, onChunk)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*llm.Response)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockProvider creates a MockProvider named name and registers a cleanup
// that asserts expectations.
func NewMockProvider(t interface {
	mock.TestingT
	Cleanup(func())
}, name string) *MockProvider {
	m := &MockProvider{}
	m.Test(t)
	m.On("Name").Return(name).Maybe()

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
