package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "DW-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "DW-DB-5001",
				Message: "Database schema is not initialized. Restart the service and retry.",
			}
		case strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "DW-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		case strings.Contains(raw, "unknown document format version"):
			return apiError{
				Code:    "DW-STORE-5003",
				Message: "Document was written by a newer version of the service.",
			}
		default:
			return apiError{
				Code:    "DW-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "DW-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusPaymentRequired:
		code = "DW-API-4002"
		msg = "Insufficient tokens to run this prompt over the selected items."
	case status == http.StatusNotFound:
		code = "DW-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusMethodNotAllowed:
		code = "DW-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusConflict:
		code = "DW-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusUnsupportedMediaType:
		code = "DW-API-4015"
		msg = "Unsupported document format. Upload .docx, .pdf or plain text."
	case status == http.StatusUnprocessableEntity:
		code = "DW-API-4022"
		msg = "The document could not be read or has no text."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "user is required"):
			msg = "The user query parameter is required."
		case strings.Contains(raw, "prompt is required"):
			msg = "A prompt is required to start a run."
		case strings.Contains(raw, "no files provided"):
			msg = "No files were provided."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(raw, "already in progress"):
			msg = "A run is already in progress for this document."
		}
	}

	return apiError{Code: code, Message: msg}
}
