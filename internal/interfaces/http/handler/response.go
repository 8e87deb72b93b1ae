package handler

import "github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"

// APIResponse is the typed shape of dto.Response. Handlers never build it;
// it exists for OpenAPI annotations and for decoding responses in tests.
// @Description Standard API response wrapper with typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// SuccessResponse is the body of endpoints that return no data
// @Description Simple success response without data
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}
