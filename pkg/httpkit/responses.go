// Package httpkit holds the response envelope and SSE framing conventions
// shared by every REST and streaming handler, grounded on the teacher's
// pkg/api/responses.go and pkg/api/errors.go.
package httpkit

import (
	"net/http"

	"github.com/labstack/echo/v5"
)

// ErrorBody is the canonical error envelope: {"detail": "..."}.
type ErrorBody struct {
	Detail string `json:"detail"`
}

// JSON writes v as the bare JSON body (no envelope) with status code.
// Create endpoints intentionally use http.StatusOK rather than 201, matching
// the reference LangGraph server API.
func JSON(c echo.Context, code int, v any) error {
	return c.JSON(code, v)
}

// Created writes a successful create response. Per spec the create
// endpoints respond 200, not 201.
func Created(c echo.Context, v any) error {
	return c.JSON(http.StatusOK, v)
}

// Deleted writes the empty-object body a delete endpoint returns on success.
func Deleted(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{})
}

// Count writes a bare integer body, used by count endpoints.
func Count(c echo.Context, n int) error {
	return c.JSON(http.StatusOK, n)
}

// Error writes {"detail": message} at the given status code.
func Error(c echo.Context, code int, message string) error {
	return c.JSON(code, ErrorBody{Detail: message})
}

// NotFound writes a 404 with the standard detail body.
func NotFound(c echo.Context, message string) error {
	if message == "" {
		message = "Not found"
	}
	return Error(c, http.StatusNotFound, message)
}

// Conflict writes a 409 with the standard detail body.
func Conflict(c echo.Context, message string) error {
	if message == "" {
		message = "Resource already exists"
	}
	return Error(c, http.StatusConflict, message)
}

// BadRequest writes a 400 with the standard detail body.
func BadRequest(c echo.Context, message string) error {
	return Error(c, http.StatusBadRequest, message)
}
