// Package decode contains decoders for various HTTP artefacts
package decode

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/datapowersync/counters/internal"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
)

// Query schema decoder: caches structs, and safe for sharing.
var decoder *schema.Decoder

func init() {
	decoder = schema.NewDecoder()
	// Don't error if there are keys in the source map that are not present in
	// the destination struct.
	decoder.IgnoreUnknownKeys(true)
}

// Query unmarshals a query string (k1=v1&k2=v2...) into dst.
func Query(dst any, query url.Values) error {
	if err := decoder.Decode(dst, query); err != nil {
		var emptyField schema.EmptyFieldError
		if errors.As(err, &emptyField) {
			return &internal.ErrMissingParameter{Parameter: emptyField.Key}
		}
		var multi schema.MultiError
		if errors.As(err, &multi) {
			for key, fieldErr := range multi {
				return &internal.ErrInvalidParameter{Parameter: key, Reason: fieldErr.Error()}
			}
		}
		return err
	}
	return nil
}

// Param retrieves a single path variable by name from the request.
func Param(name string, r *http.Request) (string, error) {
	if v, ok := mux.Vars(r)[name]; ok && v != "" {
		return v, nil
	}
	return "", &internal.ErrMissingParameter{Parameter: name}
}

// JSON decodes a JSON request body into dst. An empty body leaves dst
// untouched.
func JSON(dst any, r *http.Request) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &internal.ErrInvalidParameter{
				Parameter: typeErr.Field,
				Reason:    fmt.Sprintf("must be of type %s", typeErr.Type),
			}
		}
		return &internal.ErrInvalidParameter{Parameter: "body", Reason: err.Error()}
	}
	return nil
}
