package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// All unclassified errors that do not provide a code are clubbed under
	// an internal error code and a generic message instead of detailed
	// error string.
	internalCode uint32 = 1
	internalLog         = "internal error"
)

// httpStatus maps registered root errors to HTTP response codes. Codes not
// listed here are reported as 500.
var httpStatus = map[uint32]int{
	ErrUnauthorized.code:       http.StatusUnauthorized,
	ErrNotFound.code:           http.StatusNotFound,
	ErrModel.code:              http.StatusBadRequest,
	ErrDuplicate.code:          http.StatusConflict,
	ErrEmpty.code:              http.StatusBadRequest,
	ErrState.code:              http.StatusConflict,
	ErrType.code:               http.StatusBadRequest,
	ErrInsufficientAmount.code: http.StatusBadRequest,
	ErrAmount.code:             http.StatusBadRequest,
	ErrInput.code:              http.StatusBadRequest,
	ErrOverflow.code:           http.StatusBadRequest,
	ErrUpstream.code:           http.StatusBadGateway,
	ErrTimeout.code:            http.StatusGatewayTimeout,
}

// HTTPInfo returns the HTTP status code and a message that can be safely
// returned to the client for the given error.
//
// Any error that does not provide code information is categorized as an
// internal error. When not running in a debug mode all messages of internal
// errors are replaced with a generic "internal error".
func HTTPInfo(err error, debug bool) (int, string) {
	if isNilErr(err) {
		return http.StatusOK, ""
	}

	c := code(err)
	status, ok := httpStatus[c]
	if !ok {
		status = http.StatusInternalServerError
	}

	// Only non-internal errors information can be exposed. Any error that
	// does not explicitly expose its state by providing a code, or that is
	// a storage or coding problem, must be silenced.
	if debug {
		return status, fmt.Sprintf("%+v", err)
	}
	if c == internalCode || c == ErrPanic.code || c == ErrDatabase.code || c == ErrHuman.code {
		return status, internalLog
	}
	return status, err.Error()
}

type coder interface {
	Code() uint32
}

// code test if given error contains a code and returns the value of it if
// available. This function is testing for the causer interface as well and
// unwraps the error.
func code(err error) uint32 {
	if isNilErr(err) {
		return 0
	}

	for {
		if c, ok := err.(coder); ok {
			return c.Code()
		}

		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return internalCode
		}
	}
}

// Redact replace all errors that do not initialize with a registered error
// with a generic internal error instance. This function is supposed to hide
// implementation details errors and leave only those that this package
// originates.
//
// This is a no-operation function when running in debug mode.
func Redact(err error, debug bool) error {
	if debug {
		return err
	}
	if ErrPanic.Is(err) {
		return errors.New(internalLog)
	}
	if code(err) == internalCode {
		return errors.New(internalLog)
	}
	return err
}
