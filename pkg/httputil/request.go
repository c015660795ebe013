package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
)

// ParseJSON decodes the request body into dest. Unknown fields and
// malformed bodies are Validation errors.
func ParseJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.Validation("request body is required")
		}
		return apperrors.Validation("invalid JSON: %v", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteAppError(w, err)
		return false
	}
	return true
}

// PathVar returns a route variable, empty when absent.
func PathVar(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// ParseQueryBool parses a boolean query parameter with a default value
func ParseQueryBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseBool(str)
	if err != nil {
		return false, apperrors.Validation("invalid boolean for %s: %s", key, str)
	}
	return val, nil
}

// ParseQueryString returns a query parameter or defaultVal when it is empty.
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	if str := r.URL.Query().Get(key); str != "" {
		return str
	}
	return defaultVal
}
