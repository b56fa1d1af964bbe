package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rbxmod/banlist/pkg/banlist"
)

// maxRequestBodyBytes bounds request bodies. Ban requests are tiny.
const maxRequestBodyBytes = 64 << 10

const (
	statusSuccess = "success"
	statusError   = "error"
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// decodeRequest decodes the JSON body of r into v. An empty body decodes as
// an empty object so that missing fields are reported by validation.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondMessage(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, messageResponse{Status: statusSuccess, Message: message})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Status: statusError, Message: message})
}

// respondServerError reports a store failure. The underlying message is
// attached for diagnostics.
func respondServerError(w http.ResponseWriter, err error) {
	respondJSON(w, http.StatusInternalServerError, errorResponse{
		Status:  statusError,
		Message: "Internal Server Error",
		Detail:  err.Error(),
	})
}

// respondSyncError maps errors from the ban list to a response.
func respondSyncError(w http.ResponseWriter, err error) {
	var validationErr *banlist.ValidationError
	if errors.As(err, &validationErr) {
		respondError(w, http.StatusBadRequest, validationErr.Error())
		return
	}
	respondServerError(w, err)
}
