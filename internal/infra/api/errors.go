// internal/infra/api/errors.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrSessionExpired is returned when the access token could not be
	// renewed. Credentials have been cleared or replaced by the time it is
	// returned.
	ErrSessionExpired = errors.New("session expired")
	// ErrStreamInterrupted is returned when a reply stream ends without a
	// completion event.
	ErrStreamInterrupted = errors.New("stream connection error")
	// ErrCredentialsChanged is returned by Credentials.Refreshed when the
	// session was logged out or replaced while the refresh was in flight.
	ErrCredentialsChanged = errors.New("credentials changed during refresh")
)

// ErrorKind classifies backend failures the way they are presented to users.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindValidation   ErrorKind = "validation"
	KindServer       ErrorKind = "server"
)

func kindForStatus(code int) ErrorKind {
	switch code {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return KindValidation
	default:
		return KindServer
	}
}

// FieldError is one entry of a 422 response's "errors" object.
type FieldError struct {
	Field string
	Key   string
}

// Error is a non-2xx response from the backend.
type Error struct {
	StatusCode int
	Kind       ErrorKind
	Message    string
	// Fields keeps the order in which the backend listed the field errors.
	Fields    []FieldError
	RequestID string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if f, ok := e.FirstField(); ok {
		return fmt.Sprintf("api: %d %s: %s: %s", e.StatusCode, e.Kind, f.Field, f.Key)
	}
	return fmt.Sprintf("api: %d %s: %s", e.StatusCode, e.Kind, msg)
}

// FirstField returns the first field error, if any.
func (e *Error) FirstField() (FieldError, bool) {
	if len(e.Fields) == 0 {
		return FieldError{}, false
	}
	return e.Fields[0], true
}

// IsStatus reports whether err is an *Error with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// StreamError is an error event sent by the server inside a reply stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "stream: " + e.Message
}

type errorBody struct {
	StatusCode int             `json:"statusCode"`
	Message    json.RawMessage `json:"message"`
	Error      string          `json:"error"`
	Errors     json.RawMessage `json:"errors"`
}

// parseError builds an *Error from a failed response body. Bodies that are
// not JSON are kept verbatim as the message.
func parseError(code int, body []byte, requestID string) *Error {
	apiErr := &Error{StatusCode: code, Kind: kindForStatus(code), RequestID: requestID}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	var msg string
	if err := json.Unmarshal(eb.Message, &msg); err == nil {
		apiErr.Message = msg
	} else if len(eb.Message) > 0 {
		apiErr.Message = string(eb.Message)
	}
	if apiErr.Message == "" {
		apiErr.Message = eb.Error
	}
	apiErr.Fields = parseFieldErrors(eb.Errors)
	return apiErr
}

// parseFieldErrors decodes {"field": "key", ...} preserving key order.
// Non-string values are kept as raw JSON.
func parseFieldErrors(raw json.RawMessage) []FieldError {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}

	var fields []FieldError
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fields
		}
		name, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fields
		}
		var key string
		if err := json.Unmarshal(value, &key); err != nil {
			key = string(value)
		}
		fields = append(fields, FieldError{Field: name, Key: key})
	}
	return fields
}

// UserMessage turns an error returned by this package into the short text
// shown to a teacher.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		apiErr    *Error
		streamErr *StreamError
		verrs     validator.ValidationErrors
	)
	switch {
	case errors.Is(err, ErrSessionExpired):
		return "Session expired. Please /login again."
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The server took too long to respond. Please try again."
	case errors.As(err, &verrs):
		return validationMessage(verrs)
	case errors.As(err, &streamErr):
		return "The assistant failed to answer: " + streamErr.Message
	case errors.Is(err, ErrStreamInterrupted):
		return "Connection to the assistant was lost. Please try again."
	case errors.As(err, &apiErr):
		return apiErrorMessage(apiErr)
	default:
		return "Something went wrong. Please try again later."
	}
}

func apiErrorMessage(e *Error) string {
	switch e.Kind {
	case KindForbidden:
		return "Access denied. You do not have permission to perform this action."
	case KindNotFound:
		if e.Message != "" {
			return "Not found: " + humanize(e.Message)
		}
		return "Not found."
	case KindValidation:
		if f, ok := e.FirstField(); ok {
			return fmt.Sprintf("%s: %s", f.Field, humanize(f.Key))
		}
		if e.Message != "" {
			return humanize(e.Message)
		}
		return "The request was rejected."
	case KindUnauthorized:
		return "Authentication failed."
	default:
		return "Something went wrong on the server. Please try again later."
	}
}

func validationMessage(verrs validator.ValidationErrors) string {
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid e-mail address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "cefr":
		return field + " must be one of A1, A2, B1, B2, C1, C2"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	case "url":
		return field + " must be a URL"
	case "datetime":
		return fmt.Sprintf("%s must be a date like %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

// humanize turns backend keys such as "emailNotExists" into "email not exists".
// Text that already contains spaces is returned unchanged.
func humanize(key string) string {
	if strings.ContainsAny(key, " ") {
		return key
	}
	var b strings.Builder
	for i, r := range key {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte(' ')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == '_' {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
