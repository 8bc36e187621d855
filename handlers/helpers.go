package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJsonAndRespond encodes dataPayload as JSON and writes it with the given status code.
// all handlers go through here so the response format stays consistent across the API.
//
// json.Marshal buffers the whole payload before anything is written, so an encoding
// error can still turn into a 500 instead of a truncated 200.
func writeJsonAndRespond(responseWriter http.ResponseWriter, statusCode int, dataPayload any) {
	responseWriter.Header().Set("Content-Type", "application/json")

	serializedData, err := json.Marshal(dataPayload)
	if err != nil {
		http.Error(responseWriter, `{"error":"internal encoding error"}`, http.StatusInternalServerError)
		return
	}

	// headers first, then WriteHeader, then Write
	responseWriter.WriteHeader(statusCode)
	responseWriter.Write(serializedData) // nolint:errcheck -- write errors are not actionable on the server side
}

// writeErrorJsonAndLogIt logs the error at level ERROR and writes {"error": message}.
// the message sent to the client is always a controlled string, never a raw Go error,
// to avoid leaking internal details. client errors that are safe to echo use errorResponse directly.
func writeErrorJsonAndLogIt(
	responseWriter http.ResponseWriter,
	statusCode int,
	message string,
	logger *slog.Logger,
) {
	logger.Error("request error", "status", statusCode, "message", message)
	writeJsonAndRespond(responseWriter, statusCode, errorResponse{Error: message})
}

// decodeJsonBody decodes a JSON request body into target, rejecting unknown fields
// so a typo in a field name is a 400 instead of a silently ignored value.
func decodeJsonBody(responseWriter http.ResponseWriter, request *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(responseWriter, request.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
