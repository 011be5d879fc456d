package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/httputil"
	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/service"
)

type mockHandshake struct {
	mock.Mock
}

func (m *mockHandshake) step(args mock.Arguments) (*model.StepResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StepResult), args.Error(1)
}

func (m *mockHandshake) Begin(ctx context.Context, ownerID int64, req service.BeginRequest) (*model.StepResult, error) {
	return m.step(m.Called(ctx, ownerID, req))
}

func (m *mockHandshake) Submit(ctx context.Context, ownerID int64, input string) (*model.StepResult, error) {
	return m.step(m.Called(ctx, ownerID, input))
}

func (m *mockHandshake) Cancel(ctx context.Context, ownerID int64) (*model.StepResult, error) {
	return m.step(m.Called(ctx, ownerID))
}

func (m *mockHandshake) Status(ctx context.Context, ownerID int64) (*model.StepResult, error) {
	return m.step(m.Called(ctx, ownerID))
}

func TestAuthHandler_Begin(t *testing.T) {
	hs := new(mockHandshake)
	router := newRouter(NewAuthHandler(hs).Register)

	req := service.BeginRequest{AppID: "94575", AppSecret: "a3406de8d171bb422bb6ddf3bbd800e2", Method: model.AuthMethodPhoneCode}
	hs.On("Begin", mock.Anything, int64(7), req).
		Return(&model.StepResult{SessionID: "s-1", State: model.AuthStateCollectingPhone, Prompt: "Send the phone"}, nil)

	rec := do(t, router, http.MethodPost, "/v1/owners/7/auth", req)

	require.Equal(t, http.StatusOK, rec.Code)
	step := decode[model.StepResult](t, rec)
	assert.Equal(t, model.AuthStateCollectingPhone, step.State)
	assert.Equal(t, "s-1", step.SessionID)
	hs.AssertExpectations(t)
}

func TestAuthHandler_SubmitRejectedInputKeepsStep(t *testing.T) {
	hs := new(mockHandshake)
	router := newRouter(NewAuthHandler(hs).Register)

	hs.On("Submit", mock.Anything, int64(7), "12ab").
		Return(&model.StepResult{State: model.AuthStateAwaitingCode}, apperrors.InvalidInput("code", "digits only"))

	rec := do(t, router, http.MethodPost, "/v1/owners/7/auth/submit", map[string]string{"input": "12ab"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, string(apperrors.ErrCodeInvalidInput), body["code"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(model.AuthStateAwaitingCode), details["state"])
}

func TestAuthHandler_SharedErrorIsNotMutated(t *testing.T) {
	hs := new(mockHandshake)
	router := newRouter(NewAuthHandler(hs).Register)

	shared := apperrors.ValidationError("waiting")
	hs.On("Submit", mock.Anything, int64(7), "x").Return(&model.StepResult{State: model.AuthStateAwaitingQRScan}, shared)

	do(t, router, http.MethodPost, "/v1/owners/7/auth/submit", map[string]string{"input": "x"})
	assert.Nil(t, shared.Details)
}

func TestAuthHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		setup  func(hs *mockHandshake)
		status int
		code   apperrors.ErrorCode
	}{
		{
			name:   "status without handshake",
			method: http.MethodGet,
			path:   "/v1/owners/7/auth",
			setup: func(hs *mockHandshake) {
				hs.On("Status", mock.Anything, int64(7)).Return(nil, apperrors.HandshakeNotFound())
			},
			status: http.StatusNotFound,
			code:   apperrors.ErrCodeHandshakeNotFound,
		},
		{
			name:   "submit after the handshake ended",
			method: http.MethodPost,
			path:   "/v1/owners/7/auth/submit",
			body:   map[string]string{"input": "12345"},
			setup: func(hs *mockHandshake) {
				hs.On("Submit", mock.Anything, int64(7), "12345").Return(nil, apperrors.HandshakeEnded("failed"))
			},
			status: http.StatusConflict,
			code:   apperrors.ErrCodeHandshakeEnded,
		},
		{
			name:   "platform unreachable",
			method: http.MethodPost,
			path:   "/v1/owners/7/auth/submit",
			body:   map[string]string{"input": "+15550000000"},
			setup: func(hs *mockHandshake) {
				hs.On("Submit", mock.Anything, int64(7), "+15550000000").
					Return(&model.StepResult{State: model.AuthStateCollectingPhone}, apperrors.External("chat platform", errors.New("dial tcp")))
			},
			status: http.StatusBadGateway,
			code:   apperrors.ErrCodeExternal,
		},
		{
			name:   "invalid method",
			method: http.MethodPost,
			path:   "/v1/owners/7/auth",
			body:   map[string]string{"method": "carrier-pigeon"},
			setup: func(hs *mockHandshake) {
				hs.On("Begin", mock.Anything, int64(7), service.BeginRequest{Method: "carrier-pigeon"}).
					Return(nil, apperrors.InvalidInput("method", "must be code-scan or phone-code"))
			},
			status: http.StatusBadRequest,
			code:   apperrors.ErrCodeInvalidInput,
		},
		{
			name:   "bad owner id",
			method: http.MethodDelete,
			path:   "/v1/owners/zero/auth",
			setup:  func(hs *mockHandshake) {},
			status: http.StatusBadRequest,
			code:   apperrors.ErrCodeInvalidInput,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hs := new(mockHandshake)
			tc.setup(hs)
			router := newRouter(NewAuthHandler(hs).Register)

			rec := do(t, router, tc.method, tc.path, tc.body)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode[httputil.ErrorResponse](t, rec).Code)
			hs.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_Cancel(t *testing.T) {
	hs := new(mockHandshake)
	router := newRouter(NewAuthHandler(hs).Register)

	hs.On("Cancel", mock.Anything, int64(7)).Return(&model.StepResult{State: model.AuthStateCancelled}, nil)

	rec := do(t, router, http.MethodDelete, "/v1/owners/7/auth", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.AuthStateCancelled, decode[model.StepResult](t, rec).State)
}
