package errors

import (
	"strings"
)

// Append clubs together all provided errors. Nil values are ignored.
//
// If given error implements unpacker interface, it is flattened. All
// contained errors are extracted and added to the result set.
//
// Returned error is nil if no non-nil error was provided.
func Append(errs ...error) error {
	var res multiErr
	for _, e := range errs {
		if isNilErr(e) {
			continue
		}
		if u, ok := e.(unpacker); ok {
			res = append(res, u.Unpack()...)
		} else {
			res = append(res, e)
		}
	}
	if len(res) == 0 {
		return nil
	}
	return res
}

// multiErr represents a group of errors. It is used to report more than one
// problem at once, for example all invalid fields of a model.
type multiErr []error

func (errs multiErr) Error() string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unpack implements unpacker interface.
func (errs multiErr) Unpack() []error {
	return errs
}

// Code returns the code of the first error that provides one, so that a
// group of validation errors is reported with a meaningful class.
func (errs multiErr) Code() uint32 {
	for _, e := range errs {
		if c := code(e); c != internalCode {
			return c
		}
	}
	return internalCode
}
