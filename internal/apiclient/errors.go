package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const genericDetail = "An error occurred"

// APIError is a non-2xx response. Detail is the human-readable message
// taken from the response payload.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return e.Detail
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// IsUnauthorized reports whether the server rejected the credentials.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

type errorPayload struct {
	Detail json.RawMessage `json:"detail"`
}

// validationIssue is one entry of a structured detail list.
type validationIssue struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func newAPIError(code int, body []byte) *APIError {
	return &APIError{StatusCode: code, Detail: parseDetail(body)}
}

// parseDetail extracts the message from {"detail": ...}. The detail is
// usually a string; validation failures carry a list of issues instead.
func parseDetail(body []byte) string {
	var p errorPayload
	if err := json.Unmarshal(body, &p); err != nil || len(p.Detail) == 0 {
		return genericDetail
	}

	var s string
	if err := json.Unmarshal(p.Detail, &s); err == nil {
		if s == "" {
			return genericDetail
		}
		return s
	}

	var issues []validationIssue
	if err := json.Unmarshal(p.Detail, &issues); err == nil && len(issues) > 0 {
		msgs := make([]string, 0, len(issues))
		for _, is := range issues {
			if len(is.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", is.Loc[len(is.Loc)-1], is.Msg))
			} else {
				msgs = append(msgs, is.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(p.Detail)
}
