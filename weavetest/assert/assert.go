// Package assert provides the small set of helpers used by escrowd tests to
// compare values and classify errors.
package assert

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/iov-one/escrowd/errors"
)

// Tester is the minimal subset of testing.TB needed to run most assert commands
type Tester interface {
	Helper()
	Fatal(...interface{})
	Fatalf(string, ...interface{})
}

// Nil fails the test if given value is not nil.
func Nil(t Tester, value interface{}) {
	t.Helper()
	if !isNil(value) {
		// %+v prints the stack trace of wrapped errors.
		t.Fatalf("want a nil value, got %+v", value)
	}
}

func isNil(value interface{}) (isnil bool) {
	if value == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			isnil = false
		}
	}()
	return reflect.ValueOf(value).IsNil()
}

// Equal fails the test if two values are not equal.
func Equal(t Tester, want, got interface{}) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("values not equal \nwant %T %v\n got %T %v", want, want, got, got)
	}
}

// JSONEqual fails the test if both documents do not represent the same JSON
// value. Formatting and key order are ignored.
func JSONEqual(t Tester, want, got []byte) {
	t.Helper()
	var w, g interface{}
	if err := json.Unmarshal(want, &w); err != nil {
		t.Fatalf("want is not JSON: %s", err)
	}
	if err := json.Unmarshal(bytes.TrimSpace(got), &g); err != nil {
		t.Fatalf("got is not JSON: %s: %q", err, got)
	}
	if !reflect.DeepEqual(w, g) {
		t.Fatalf("JSON not equal \nwant %s\n got %s", want, got)
	}
}

// Panics will run given function and recover any panic. It will fail the test
// if given function call did not panic.
func Panics(t Tester, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("panic expected")
		}
	}()
	fn()
}

// IsErr fails the test unless got is an instance of want. Passing nil as want
// asserts that no error was returned.
func IsErr(t Tester, want *errors.Error, got error) {
	t.Helper()
	if want == nil {
		if got != nil {
			t.Fatalf("want no error, got %+v", got)
		}
		return
	}
	if !want.Is(got) {
		t.Fatalf("want %q error, got %+v", want, got)
	}
}

// FieldError ensures that given error contains a field error for given name
// that is an instance of want. Use nil to assert that the field is valid.
func FieldError(t testing.TB, err error, fieldName string, want *errors.Error) {
	t.Helper()

	errs := errors.FieldErrors(err, fieldName)
	if want == nil {
		if len(errs) != 0 {
			t.Fatalf("expected no %q field error, got %q", fieldName, errs)
		}
		return
	}
	for _, e := range errs {
		if want.Is(e) {
			return
		}
	}
	if len(errs) == 0 {
		t.Fatalf("no %q field error found", fieldName)
	}
	t.Fatalf("%q field errors do not contain %q: %q", fieldName, want, errs)
}
