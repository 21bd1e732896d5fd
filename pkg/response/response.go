package response

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var EmptyRequestBodyResponse = Response{
	Status:  StatusError,
	Error:   "Empty Request Body",
	Message: "Request body is empty. Please provide necessary data.",
}

var BadRequestResponse = Response{
	Status:  StatusError,
	Error:   "Bad Request",
	Message: "The request is malformed or contains invalid parameters.",
}

var ResourceNotFoundResponse = Response{
	Status:  StatusError,
	Error:   "Resource Not Found",
	Message: "The requested resource was not found.",
}

var ConflictResponse = Response{
	Status:  StatusError,
	Error:   "Conflict",
	Message: "The short code is already taken. Please choose another one.",
}

var ServerErrorResponse = Response{
	Status:  StatusError,
	Error:   "Server Error",
	Message: "An internal server error occurred. Please try again later.",
}

type Response struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func SuccessResponse(msg string, data ...any) Response {
	resp := Response{
		Status:  StatusSuccess,
		Message: msg,
	}

	if len(data) > 0 {
		resp.Data = data[0]
	}

	return resp
}

// GoneResponse reports that the URL exists but can no longer be resolved,
// either because it expired or because it was deactivated.
func GoneResponse(reason string) Response {
	return Response{
		Status:  StatusError,
		Error:   "Gone",
		Message: reason,
	}
}

// RateLimitedResponse reports an exhausted request budget.
func RateLimitedResponse(retryAfter time.Duration) Response {
	return Response{
		Status:  StatusError,
		Error:   "Too Many Requests",
		Message: fmt.Sprintf("Rate limit exceeded. Retry after %s.", retryAfter),
	}
}

type validationError struct {
	Field string `json:"field"`
	Value any    `json:"value"`
	Issue string `json:"issue"`
}

// getValidationErrors processes validation errors and returns a list of validationError.
func getValidationErrors(err error) []validationError {
	var details []validationError

	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}

	for _, e := range errs {
		detail := validationError{
			Field: e.Field(),
			Value: e.Value(),
		}

		switch e.Tag() {
		case "required":
			detail.Issue = "This field is required."
		case "url":
			detail.Issue = "Invalid url."
		case "min":
			detail.Issue = fmt.Sprintf("Must be at least %s.", e.Param())
		case "max":
			detail.Issue = fmt.Sprintf("Must be at most %s.", e.Param())
		case "oneof":
			detail.Issue = fmt.Sprintf("Must be one of: %s.", e.Param())
		default:
			detail.Issue = "Invalid value."
		}

		details = append(details, detail)
	}

	return details
}

func ValidationErrorResponse(err error) Response {
	resp := Response{
		Status:  StatusError,
		Error:   "Validation Error",
		Message: "The request contains invalid data.",
	}

	for _, detail := range getValidationErrors(err) {
		resp.Details = append(resp.Details, detail)
	}

	return resp
}
