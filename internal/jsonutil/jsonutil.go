// Package jsonutil provides helpers for reading and writing
// application/x-amz-json-1.1 message bodies.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/loker/loker/internal/awserr"
)

// ContentType is the wire content type for the AWS JSON 1.1 protocol.
const ContentType = "application/x-amz-json-1.1"

// Timestamp marshals a time.Time as epoch seconds with fractional precision,
// the representation the AWS JSON protocols use for date fields.
type Timestamp time.Time

// MarshalJSON renders the timestamp as a JSON number of epoch seconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	sec := float64(tt.UnixNano()) / float64(time.Second)
	return []byte(strconv.FormatFloat(sec, 'f', 3, 64)), nil
}

// UnmarshalJSON parses a JSON number of epoch seconds.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	sec, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("parsing timestamp: %w", err)
	}
	whole, frac := math.Modf(sec)
	*t = Timestamp(time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC())
	return nil
}

// errorEnvelope is the AWS error body shape: {"__type":"...","message":"..."}.
type errorEnvelope struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

// WriteResponse marshals v as JSON with the x-amz-json-1.1 content type and
// a 200 status. A marshal failure falls back to InternalFailure.
func WriteResponse(w http.ResponseWriter, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshaling response body", "error", err)
		WriteError(w, awserr.ErrInternalFailure)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// WriteError renders err as the AWS error envelope. Errors that are not
// *awserr.APIError are reported as InternalFailure with no internal detail.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *awserr.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("internal failure", "error", err)
		apiErr = awserr.ErrInternalFailure
	}
	body, _ := json.Marshal(errorEnvelope{Type: apiErr.Code, Message: apiErr.Message})
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(apiErr.HTTPStatus)
	w.Write(body)
}

// Decode unmarshals the request body into v, mapping parse failures to
// MalformedHTTPRequestException. An empty body decodes into the zero value.
func Decode(body []byte, v interface{}) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return awserr.ErrMalformedHTTPRequest
	}
	return nil
}
