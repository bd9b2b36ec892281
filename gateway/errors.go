package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnauthorized marks terminal authorization failures: the access
// credential was rejected and a refresh either failed or did not help.
// Callers decide whether that means signing the user out.
var ErrUnauthorized = errors.New("unauthorized")

// ErrorPayload is the normalized form of a backend error body. Message is
// the form-level message; Details carries field-level messages for
// validation failures, keyed by field name.
type ErrorPayload struct {
	Message string
	Details map[string]string
}

// RequestError carries a non-success backend response through to the UI
// layer unmodified: the status, the normalized payload, and the raw body.
type RequestError struct {
	Status  int
	Payload ErrorPayload
	Body    json.RawMessage
}

func (e *RequestError) Error() string {
	if e.Payload.Message != "" {
		return fmt.Sprintf("request failed (%d): %s", e.Status, e.Payload.Message)
	}
	return fmt.Sprintf("request failed (%d)", e.Status)
}

// errorEnvelope matches the backend's primary convention: {error, details?}
// where details is either a field->message object or a list of
// {field, message} pairs.
type errorEnvelope struct {
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type messageEnvelope struct {
	Message string `json:"message"`
}

// ParseErrorPayload normalizes a backend error body. The backend has no
// single error schema, so known shapes are tried in a fixed priority order
// and the first structural match wins:
//
//  1. {error, details?} with details as an object or a {field,message} list
//  2. {message}
//  3. anything else: the trimmed body text as the message
//
// A pure function on the body bytes; transport code never inspects shapes.
func ParseErrorPayload(body []byte) ErrorPayload {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return ErrorPayload{Message: envelope.Error, Details: parseDetails(envelope.Details)}
	}

	var msg messageEnvelope
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		return ErrorPayload{Message: msg.Message}
	}

	var plain string
	if err := json.Unmarshal(body, &plain); err == nil && plain != "" {
		return ErrorPayload{Message: plain}
	}

	return ErrorPayload{Message: strings.TrimSpace(string(body))}
}

func parseDetails(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	byField := make(map[string]string)
	if err := json.Unmarshal(raw, &byField); err == nil && len(byField) > 0 {
		return byField
	}

	var list []fieldDetail
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		byField = make(map[string]string, len(list))
		for _, d := range list {
			if d.Field != "" {
				byField[d.Field] = d.Message
			}
		}
		if len(byField) > 0 {
			return byField
		}
	}
	return nil
}
