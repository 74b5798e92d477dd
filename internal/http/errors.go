package http

import (
	"errors"
	"net/http"

	"github.com/DataDog/jsonapi"
	"github.com/datapowersync/counters/internal"
)

const mediaType = "application/vnd.api+json"

var codes = map[error]int{
	internal.ErrResourceNotFound:      http.StatusNotFound,
	internal.ErrResourceAlreadyExists: http.StatusConflict,
}

// lookupHTTPCode maps a domain error to a http status code
func lookupHTTPCode(err error) int {
	for domainError, httpError := range codes {
		if errors.Is(err, domainError) {
			return httpError
		}
	}
	var (
		missing *internal.ErrMissingParameter
		invalid *internal.ErrInvalidParameter
	)
	if errors.As(err, &missing) || errors.As(err, &invalid) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

type ErrorOption func(*jsonapi.Error)

func WithStatus(httpStatusCode int) ErrorOption {
	return func(err *jsonapi.Error) {
		err.Status = &httpStatusCode
	}
}

// Error writes an HTTP response with a JSON-API encoded error.
func Error(w http.ResponseWriter, err error, opts ...ErrorOption) {
	jsonapiError := &jsonapi.Error{
		Detail: err.Error(),
	}
	for _, fn := range opts {
		fn(jsonapiError)
	}
	if jsonapiError.Status == nil {
		jsonapiError.Status = new(lookupHTTPCode(err))
	}
	jsonapiError.Title = http.StatusText(*jsonapiError.Status)

	b, err := jsonapi.Marshal(jsonapiError)
	if err != nil {
		panic(err)
	}
	w.Header().Set("Content-type", mediaType)
	w.WriteHeader(*jsonapiError.Status)
	w.Write(b)
}
