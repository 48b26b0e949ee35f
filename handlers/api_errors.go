package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
)

const (
	CodeBadRequest      = "bad_request"
	CodeNotFound        = "not_found"
	CodeInvalidArchive  = "invalid_archive"
	CodeQueueFull       = "queue_full"
	CodeUploadTooLarge  = "upload_too_large"
	CodeInternal        = "internal_error"
	CodeServiceStopping = "service_unavailable"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logging.Error("Error encoding JSON response: %v", err)
		}
	}
}

// parseID reads a positive numeric chi URL parameter
func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
