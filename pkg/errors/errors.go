package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// Code is the stable numeric identifier callers map to exit or status codes.
type Code int

const (
	CodeBase              Code = 1
	CodeAlreadyExists     Code = 2
	CodeNotFound          Code = 9
	CodeValue             Code = 10
	CodeClosedTransaction Code = 12
	CodeLockedIdentity    Code = 13
	CodeDuplicateRange    Code = 14
	CodeEqualIndividual   Code = 15
	CodeFilter            Code = 16
	CodeRecommendation    Code = 100
)

var statusByCode = map[Code]int{
	CodeBase:              http.StatusInternalServerError,
	CodeAlreadyExists:     http.StatusConflict,
	CodeNotFound:          http.StatusNotFound,
	CodeValue:             http.StatusBadRequest,
	CodeClosedTransaction: http.StatusConflict,
	CodeLockedIdentity:    http.StatusLocked,
	CodeDuplicateRange:    http.StatusConflict,
	CodeEqualIndividual:   http.StatusBadRequest,
	CodeFilter:            http.StatusBadRequest,
	CodeRecommendation:    http.StatusBadRequest,
}

// Error is a registry error: a code, a human message and optional metadata
// such as the entity or field that triggered it.
type Error struct {
	Code    Code
	Message string
	Meta    map[string]any
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) AddMetaValue(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	e.Meta[key] = value
	return e
}

// StatusCode is the HTTP status the API answers with for this error.
func (e *Error) StatusCode() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (e *Error) ToHTTPError() *httperror.HTTPError {
	herr := httperror.NewHTTPError(e.StatusCode(), e.Message).AddMetaValue("code", int(e.Code))
	for k, v := range e.Meta {
		herr = herr.AddMetaValue(k, v)
	}
	return herr
}

func AlreadyExists(entity, id string) *Error {
	return Newf(CodeAlreadyExists, "%s '%s' already exists in the registry", entity, id).
		AddMetaValue("entity", entity).AddMetaValue("id", id)
}

func NotFound(entity, id string) *Error {
	return Newf(CodeNotFound, "%s not found in the registry", fmt.Sprintf("%s '%s'", entity, id)).
		AddMetaValue("entity", entity).AddMetaValue("id", id)
}

// InvalidValue reports a rejected input. name is the per-field error name,
// e.g. SOURCE_NONE_ERROR.
func InvalidValue(name, msg string) *Error {
	return New(CodeValue, msg).AddMetaValue("error", name)
}

func InvalidValuef(name, format string, args ...any) *Error {
	return InvalidValue(name, fmt.Sprintf(format, args...))
}

func Locked(mk string) *Error {
	return Newf(CodeLockedIdentity, "individual %s is locked", mk).AddMetaValue("mk", mk)
}

func ClosedTransaction(tuid string) *Error {
	return Newf(CodeClosedTransaction, "transaction %s is closed", tuid).AddMetaValue("tuid", tuid)
}

func DuplicateRange(group string, start, end any) *Error {
	return Newf(CodeDuplicateRange, "range date '%v'-'%v' is part of an existing range for %s", start, end, group).
		AddMetaValue("group", group)
}

func EqualIndividual(mk string) *Error {
	return Newf(CodeEqualIndividual, "'from_mk' and 'to_mk' cannot be equal (%s)", mk).AddMetaValue("mk", mk)
}

func InvalidFilter(filter, msg string) *Error {
	return Newf(CodeFilter, "invalid filter '%s': %s", filter, msg).AddMetaValue("filter", filter)
}

func UnknownRecommendation(name string) *Error {
	return Newf(CodeRecommendation, "unknown recommendation engine '%s'", name).AddMetaValue("engine", name)
}

// CodeOf returns the registry code carried by err, or CodeBase for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeBase
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// ToHTTPError converts any error into the httperror shape the API renders.
func ToHTTPError(err error) *httperror.HTTPError {
	var e *Error
	if errors.As(err, &e) {
		return e.ToHTTPError()
	}
	if httperror.IsHTTPError(err) {
		return httperror.ToHTTPError(err)
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, err.Error()).AddMetaValue("code", int(CodeBase))
}

// Internal wraps an infrastructure failure the caller cannot act on.
func Internal(msg string) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, msg)
}
