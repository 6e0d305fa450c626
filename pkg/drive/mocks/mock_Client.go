// Package mocks provides test doubles for the drive client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	"github.com/sells-group/risk-dashboard/internal/model"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// List provides a mock function with given fields: ctx, folderID
func (_m *MockClient) List(ctx context.Context, folderID string) ([]model.Artifact, error) {
	ret := _m.Called(ctx, folderID)

	if len(ret) == 0 {
		panic("no return value specified for List")
	}

	var r0 []model.Artifact
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) ([]model.Artifact, error)); ok {
		return rf(ctx, folderID)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Artifact)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Download provides a mock function with given fields: ctx, fileID, destDir
func (_m *MockClient) Download(ctx context.Context, fileID string, destDir string) (string, error) {
	ret := _m.Called(ctx, fileID, destDir)

	if len(ret) == 0 {
		panic("no return value specified for Download")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, string) (string, error)); ok {
		return rf(ctx, fileID, destDir)
	}
	return ret.String(0), ret.Error(1)
}

// Upload provides a mock function with given fields: ctx, localPath, folderID, name
func (_m *MockClient) Upload(ctx context.Context, localPath string, folderID string, name string) (string, error) {
	ret := _m.Called(ctx, localPath, folderID, name)

	if len(ret) == 0 {
		panic("no return value specified for Upload")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, string, string) (string, error)); ok {
		return rf(ctx, localPath, folderID, name)
	}
	return ret.String(0), ret.Error(1)
}

// Overwrite provides a mock function with given fields: ctx, fileID, localPath
func (_m *MockClient) Overwrite(ctx context.Context, fileID string, localPath string) error {
	ret := _m.Called(ctx, fileID, localPath)

	if len(ret) == 0 {
		panic("no return value specified for Overwrite")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, string) error); ok {
		return rf(ctx, fileID, localPath)
	}
	return ret.Error(0)
}

// Export provides a mock function with given fields: ctx, fileID, mimeType, destPath
func (_m *MockClient) Export(ctx context.Context, fileID string, mimeType string, destPath string) (string, error) {
	ret := _m.Called(ctx, fileID, mimeType, destPath)

	if len(ret) == 0 {
		panic("no return value specified for Export")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, string, string) (string, error)); ok {
		return rf(ctx, fileID, mimeType, destPath)
	}
	return ret.String(0), ret.Error(1)
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
