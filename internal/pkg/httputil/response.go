// Package httputil provides HTTP response helpers and middleware.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Pagination is the page envelope returned by list endpoints.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// JSON writes a raw JSON response without envelope.
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, statusCode int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Success writes a {"success": true, "data": ...} response.
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// SuccessFields writes a {"success": true, ...fields} response for endpoints
// whose payload sits at the top level (login token, modified counts).
func SuccessFields(w http.ResponseWriter, status int, fields map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	JSON(w, status, body)
}

// SuccessPage writes a paginated {"success": true, "data": ..., "pagination": ...} response.
func SuccessPage(w http.ResponseWriter, status int, data interface{}, p Pagination) {
	JSON(w, status, map[string]interface{}{
		"success":    true,
		"data":       data,
		"pagination": p,
	})
}

// Error writes a {"success": false, "message": ...} response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// ValidationError writes a 400 response. For validator.ValidationErrors the
// field-level messages are joined into a single message string.
func ValidationError(w http.ResponseWriter, err error) {
	message := "validation error"
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		msg := ""
		for i, e := range validationErrors {
			if i > 0 {
				msg += ", "
			}
			msg += e.Field() + " " + e.Tag()
		}
		if msg != "" {
			message = msg
		}
	} else if err != nil {
		message = err.Error()
	}

	Error(w, http.StatusBadRequest, message)
}
