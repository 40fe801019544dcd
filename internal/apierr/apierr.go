// Package apierr defines the client-facing error taxonomy and the function
// that folds any upstream failure into a uniform (status, message) pair.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names a class of failure. Every Kind maps to one HTTP status, except
// KindUpstream whose status is taken from the upstream itself.
type Kind string

const (
	KindMalformedInput        Kind = "malformed_input"
	KindMissingField          Kind = "missing_field"
	KindUnknownModel          Kind = "unknown_model"
	KindUnsupportedModel      Kind = "unsupported_model"
	KindInvalidSize           Kind = "invalid_size"
	KindUnsupportedQuality    Kind = "unsupported_quality"
	KindEmptyUpstreamResponse Kind = "empty_upstream_response"
	KindNoImagesReturned      Kind = "no_images_returned"
	KindUpstream              Kind = "upstream_error"
	KindMissingCredential     Kind = "missing_credential"
	KindStreamInterrupted     Kind = "stream_interrupted"
)

// Error is a classified failure ready to be written to the client.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Field   string // set for KindMissingField

	// Err is the upstream error this one was derived from, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus lets an *Error flow back through Normalize unchanged.
func (e *Error) HTTPStatus() int { return e.Status }

// UpstreamMessage returns the client-facing message.
func (e *Error) UpstreamMessage() string { return e.Message }

// MalformedInput reports a body that is not a JSON object.
func MalformedInput(msg string) *Error {
	return &Error{Kind: KindMalformedInput, Status: http.StatusBadRequest, Message: msg}
}

// MissingField reports a required field that is absent or blank.
func MissingField(field, msg string) *Error {
	return &Error{Kind: KindMissingField, Status: http.StatusBadRequest, Message: msg, Field: field}
}

// UnknownModel reports a model id the registry has never heard of.
func UnknownModel(id string) *Error {
	return &Error{
		Kind:    KindUnknownModel,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Model %q is not supported.", id),
	}
}

// UnsupportedModel reports a model that exists but is disabled. reason may be
// empty.
func UnsupportedModel(id, reason string) *Error {
	msg := fmt.Sprintf("Model %q is not supported.", id)
	if reason != "" {
		msg = fmt.Sprintf("Model %q is not supported: %s", id, reason)
	}
	return &Error{Kind: KindUnsupportedModel, Status: http.StatusBadRequest, Message: msg}
}

// InvalidSize reports a size that is not WIDTHxHEIGHT.
func InvalidSize() *Error {
	return &Error{
		Kind:    KindInvalidSize,
		Status:  http.StatusBadRequest,
		Message: "size must be in WIDTHxHEIGHT format (e.g., 1024x1024).",
	}
}

// UnsupportedQuality reports a quality the chosen model does not offer.
func UnsupportedQuality() *Error {
	return &Error{
		Kind:    KindUnsupportedQuality,
		Status:  http.StatusBadRequest,
		Message: "Quality is not supported for this model.",
	}
}

// EmptyUpstreamResponse reports a completion with no text.
func EmptyUpstreamResponse() *Error {
	return &Error{
		Kind:    KindEmptyUpstreamResponse,
		Status:  http.StatusBadGateway,
		Message: "Empty response from upstream provider.",
	}
}

// NoImagesReturned reports an image call that produced no URLs.
func NoImagesReturned() *Error {
	return &Error{
		Kind:    KindNoImagesReturned,
		Status:  http.StatusBadGateway,
		Message: "No image URLs returned by upstream provider.",
	}
}

// MissingCredential reports that the server has no API key for a route.
func MissingCredential(envVar string) *Error {
	return &Error{
		Kind:    KindMissingCredential,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("Missing %s. Check .env.local.", envVar),
	}
}

// From classifies err for the client. Errors already classified by this
// package pass through; everything else is treated as an upstream failure
// and normalized.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	status, msg := Normalize(err)
	return &Error{Kind: KindUpstream, Status: status, Message: msg, Err: err}
}
