package utils

import (
	"encoding/json"
	"fmt"
	"net/http"

	"fast-queue/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON reads the request body into dst and runs its validate tags.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("DecodeJSON", fmt.Errorf("invalid request body: %w", err))
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.Validation("DecodeJSON", err)
	}
	return nil
}
