// Package mocks provides mock implementations for testing the gateway's ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockAPI := mocks.NewMockAuthAPI(ctrl)
//	mockAPI.EXPECT().Me(gomock.Any(), gomock.Any()).Return(envelope, nil)
package mocks

// Generate mock for AuthAPI interface from internal/ports package.
// This creates MockAuthAPI with methods for all AuthAPI interface methods:
// Me, RefreshSession, Login, Register, Logout, KycStatus
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=auth_api_mock.go github.com/propaddadjs/portal-gateway/internal/ports AuthAPI
