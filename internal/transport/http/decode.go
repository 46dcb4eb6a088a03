package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "poscore/internal/errors"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeRequest decodes a JSON body into dst and validates its tags. Any
// failure is returned as a 400 problem.
func decodeRequest(r *http.Request, dst any) error {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		return apperrors.NewProblem(http.StatusBadRequest, apperrors.TypeInvalidRequest,
			"malformed JSON body: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return validationProblem(err)
	}
	return nil
}

func validationProblem(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewProblem(http.StatusBadRequest, apperrors.TypeValidation, err.Error())
	}

	fields := make(map[string]string, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := jsonName(fe)
		fields[name] = fe.Tag()
		names = append(names, name)
	}
	pd := apperrors.NewProblem(http.StatusBadRequest, apperrors.TypeValidation,
		"invalid fields: "+strings.Join(names, ", "))
	pd.Fields = fields
	return pd
}

// jsonName returns the wire path of the failing field, e.g.
// items[0].product_id.
func jsonName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// idParam parses the {id} URL parameter.
func idParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.NewProblem(http.StatusBadRequest, apperrors.TypeInvalidRequest,
			fmt.Sprintf("invalid id %q", raw))
	}
	return id, nil
}

// pageParams reads limit and offset from the query string.
func pageParams(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 || limit > maxPageSize {
			return 0, 0, apperrors.NewProblem(http.StatusBadRequest, apperrors.TypeInvalidRequest,
				fmt.Sprintf("limit must be between 1 and %d", maxPageSize))
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, apperrors.NewProblem(http.StatusBadRequest, apperrors.TypeInvalidRequest,
				"offset must not be negative")
		}
	}
	return limit, offset, nil
}
