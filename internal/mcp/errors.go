// Package mcp implements the Model Context Protocol (MCP) server for quarry.
package mcp

import (
	"context"
	"errors"
	"fmt"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// Custom MCP error codes for quarry.
const (
	// ErrCodeIndexNotFound indicates no index exists.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeSearchDegraded indicates every retrieval strategy failed.
	ErrCodeSearchDegraded = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var qe *qerrors.QuarryError
	if errors.As(err, &qe) {
		return mapQuarryError(qe)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapQuarryError converts a QuarryError to an MCPError.
func mapQuarryError(qe *qerrors.QuarryError) *MCPError {
	message := qe.Message
	if qe.Suggestion != "" {
		message = fmt.Sprintf("%s %s", qe.Message, qe.Suggestion)
	}

	switch qe.Code {
	case qerrors.ErrCodeCorruptIndex:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	case qerrors.ErrCodeEmbeddingFailed:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case qerrors.ErrCodeSearchFailed:
		return &MCPError{Code: ErrCodeSearchDegraded, Message: message}
	}

	switch qe.Category {
	case qerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case qerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
