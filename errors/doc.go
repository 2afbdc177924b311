/*
Package errors implements custom error interfaces for escrowd.

The idea is to reuse as many errors from this package as possible and define
custom package errors only when absolutely necessary. Every error returned by
the escrow components wraps one of the root errors declared here, so that the
class of a failure (not found, conflict, invalid state, invalid input,
upstream failure, persistence failure) can be tested with ErrXyz.Is(err) and
translated into a transport response with HTTPInfo.

If you want to register a custom error - use Register(code, description).
For reusing errors - use Errxxx.New and Errxxx.Newf, or Wrap and Wrapf.

There is also support for stacktraces. Please ensure you create the custom
error using ErrXyz.New("...") or errors.Wrap(err, "...") at the point of
creation to ensure we attach a stacktrace.

Once you have an error, you can use `fmt.Printf/Sprintf` to get more context
for the error

	%s is just the error message
	%+v is the full stack trace
*/
package errors
