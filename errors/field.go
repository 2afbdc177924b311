package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Field labels err as a problem of a single request or model field. It
// returns nil if err is nil.
//
// Use Go naming for the field name, for example BuyerAddress. Nested fields
// use dot notation, for example Outputs.0.Value or HTTP.RateBurst.
func Field(fieldName string, err error) error {
	if isNilErr(err) {
		return nil
	}
	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}
	return &fieldError{parent: err, field: fieldName}
}

// AppendField adds the field error, if any, to errorsOrNil.
func AppendField(errorsOrNil error, fieldName string, fieldErrOrNil error) error {
	return Append(errorsOrNil, Field(fieldName, fieldErrOrNil))
}

type fieldError struct {
	parent error
	field  string
}

func (err *fieldError) Error() string {
	return fmt.Sprintf("field %q: %s", err.field, err.parent)
}

func (err *fieldError) Cause() error {
	return err.parent
}

// FieldErrors returns all errors of err labeled with given field name.
func FieldErrors(err error, fieldName string) []error {
	var res []error
	eachField(err, func(f *fieldError) {
		if f.field == fieldName {
			res = append(res, f)
		}
	})
	return res
}

// Fields returns the message of every field error found in err, by field
// name. Messages of a field that failed more than once are joined. The
// HTTP layer returns them with input errors so that a client can point at
// the wrong values.
func Fields(err error) map[string]string {
	var res map[string]string
	eachField(err, func(f *fieldError) {
		if res == nil {
			res = make(map[string]string)
		}
		if prev, ok := res[f.field]; ok {
			res[f.field] = prev + "; " + f.parent.Error()
		} else {
			res[f.field] = f.parent.Error()
		}
	})
	return res
}

// eachField calls fn with every field error of the err tree. A field error
// is not searched further.
func eachField(err error, fn func(*fieldError)) {
	for !isNilErr(err) {
		if f, ok := err.(*fieldError); ok {
			fn(f)
			return
		}
		// An error group holds all its children, there is no other
		// cause to follow.
		if u, ok := err.(unpacker); ok {
			for _, e := range u.Unpack() {
				eachField(e, fn)
			}
			return
		}
		c, ok := err.(causer)
		if !ok {
			return
		}
		err = c.Cause()
	}
}
