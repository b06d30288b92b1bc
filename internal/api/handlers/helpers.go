// Package handlers contains the HTTP handlers behind /api/v1. Each
// handler validates input, checks permissions, calls the domain services
// and writes the JSON envelope.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gatherspace/server/internal/api/respond"
	"github.com/gatherspace/server/internal/domain/ids"
	"github.com/gatherspace/server/internal/notify"
)

// NotifyEnqueuer schedules a notification fan-out on the job queue. The
// router wires it to the River client so handlers stay oblivious to the
// queue machinery.
type NotifyEnqueuer func(ctx context.Context, input notify.Input) error

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report errors against the JSON field name, not the Go one.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON decodes and validates a request body. On failure it writes
// the 400 response itself and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respond.Error(w, r, http.StatusBadRequest, validationMessage(err), err)
		return false
	}
	return true
}

// pathULID extracts and validates a ULID path parameter. On failure it
// writes the 400 response itself and returns false.
func pathULID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := strings.TrimSpace(r.PathValue(name))
	if value == "" {
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("Missing %s parameter", name), nil)
		return "", false
	}
	if err := ids.ValidateULID(value); err != nil {
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid %s parameter", name), err)
		return "", false
	}
	return value, true
}

func validationMessage(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return "Invalid request body"
	}

	fe := fieldErrors[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
