// Package routes holds the request helpers shared by the API handlers. The
// handlers themselves live in one subpackage per resource.
package routes

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
)

// Validator adapts go-playground/validator to echo.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i any) error {
	return v.validate.Struct(i)
}

// Bind decodes the request into req and validates it. Failures are VALUE
// errors naming the offending field.
func Bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return errors.InvalidValue("BODY_ERROR", "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			field := strings.ToUpper(verrs[0].Field())
			return errors.InvalidValuef(field+"_ERROR", "'%s' failed on '%s'", verrs[0].Field(), verrs[0].Tag()).
				AddMetaValue("field", verrs[0].Field())
		}
		return errors.InvalidValue("BODY_ERROR", err.Error())
	}
	return nil
}

// QueryInt reads an optional integer query parameter.
func QueryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.InvalidFilter(name, "must be an integer")
	}
	return n, nil
}

// QueryBool reads an optional boolean query parameter; nil when absent.
func QueryBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.InvalidFilter(name, "must be a boolean")
	}
	return &b, nil
}

// QueryList reads a repeated or comma separated query parameter.
func QueryList(c echo.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryParams()[name] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// QueryTime reads an optional RFC 3339 or YYYY-MM-DD query parameter.
func QueryTime(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := ParseTime(raw)
	if err != nil {
		return nil, errors.InvalidFilter(name, err.Error())
	}
	return &t, nil
}

func ParseTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("'%s' is not a valid date", raw)
}

// ParamInt reads an integer path parameter.
func ParamInt(c echo.Context, name string) (int64, error) {
	n, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, errors.InvalidValuef(strings.ToUpper(name)+"_ERROR", "'%s' must be an integer", name)
	}
	return n, nil
}
