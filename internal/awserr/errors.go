// Package awserr defines AWS-shaped API error types used throughout Loker.
package awserr

import "fmt"

// APIError represents an AWS API error with a machine-readable code,
// human-readable message, and HTTP status code. On the wire it is rendered
// as {"__type":"<Code>","message":"<Message>"}.
type APIError struct {
	// Code is the AWS error code (e.g., "ResourceNotFoundException").
	Code string
	// Message is a human-readable description of the error.
	Message string
	// HTTPStatus is the HTTP status code to return (e.g., 400, 403).
	HTTPStatus int
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// WithMessage returns a copy of the APIError with the given message.
func (e *APIError) WithMessage(format string, args ...interface{}) *APIError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Pre-defined API errors for common conditions.
var (
	// ErrInvalidSignature is returned when the Authorization header cannot
	// be parsed as a SigV4 signature.
	ErrInvalidSignature = &APIError{
		Code:       "InvalidSignatureException",
		Message:    "The request signature is invalid",
		HTTPStatus: 403,
	}

	// ErrSignatureDoesNotMatch is returned when the recomputed signature,
	// payload hash, or request timestamp does not check out.
	ErrSignatureDoesNotMatch = &APIError{
		Code:       "SignatureDoesNotMatch",
		Message:    "The request signature we calculated does not match the signature you provided",
		HTTPStatus: 403,
	}

	// ErrInvalidClientTokenId is returned when the access key ID is not the
	// configured credential.
	ErrInvalidClientTokenId = &APIError{
		Code:       "InvalidClientTokenId",
		Message:    "The security token included in the request is invalid",
		HTTPStatus: 403,
	}

	// ErrResourceNotFound is returned when the requested secret, version,
	// or stage does not exist.
	ErrResourceNotFound = &APIError{
		Code:       "ResourceNotFoundException",
		Message:    "Secrets Manager can't find the specified secret",
		HTTPStatus: 400,
	}

	// ErrResourceExists is returned when creating a resource that already exists.
	ErrResourceExists = &APIError{
		Code:       "ResourceExistsException",
		Message:    "The resource already exists",
		HTTPStatus: 400,
	}

	// ErrInvalidRequest is returned when the request conflicts with the
	// resource's current state (e.g., operating on a deleted secret).
	ErrInvalidRequest = &APIError{
		Code:       "InvalidRequestException",
		Message:    "The request is not valid in the current state of the resource",
		HTTPStatus: 400,
	}

	// ErrInvalidParameter is returned when a parameter value is out of range
	// or malformed.
	ErrInvalidParameter = &APIError{
		Code:       "InvalidParameterException",
		Message:    "The parameter value is invalid",
		HTTPStatus: 400,
	}

	// ErrInvalidParameterCombination is returned when mutually exclusive
	// parameters are supplied together.
	ErrInvalidParameterCombination = &APIError{
		Code:       "InvalidParameterCombination",
		Message:    "The parameter combination is invalid",
		HTTPStatus: 400,
	}

	// ErrMalformedHTTPRequest is returned when the request body cannot be
	// parsed as JSON.
	ErrMalformedHTTPRequest = &APIError{
		Code:       "MalformedHTTPRequestException",
		Message:    "The HTTP body of the request is malformed",
		HTTPStatus: 400,
	}

	// ErrInvalidAction is returned for an unknown X-Amz-Target action.
	ErrInvalidAction = &APIError{
		Code:       "InvalidAction",
		Message:    "The action or operation requested is not valid",
		HTTPStatus: 400,
	}

	// ErrInvalidNextToken is returned when a pagination token is not one the
	// server handed out.
	ErrInvalidNextToken = &APIError{
		Code:       "InvalidNextTokenException",
		Message:    "The NextToken value is invalid",
		HTTPStatus: 400,
	}

	// ErrInternalFailure is returned for unexpected internal failures. The
	// body carries no internal detail.
	ErrInternalFailure = &APIError{
		Code:       "InternalFailure",
		Message:    "An internal error occurred",
		HTTPStatus: 500,
	}
)
