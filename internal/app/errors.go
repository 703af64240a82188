package app

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/agis/gridcal/internal/contract"
	"github.com/agis/gridcal/internal/output"
)

type AppError struct {
	Code    int
	Err     error
	Printed bool
}

func (e AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e AppError) Unwrap() error { return e.Err }

func Wrap(code int, err error) error {
	if err == nil {
		return nil
	}
	return AppError{Code: code, Err: err}
}

func WrapPrinted(code int, err error) error {
	if err == nil {
		return nil
	}
	return AppError{Code: code, Err: err, Printed: true}
}

func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e AppError
	if errors.As(err, &e) {
		return e.Code
	}
	return 1
}

// failWithHint prints err through p and returns it marked as printed, so
// the top-level handler does not report it twice. Annotated source errors
// carry their phase and kind in the envelope meta.
func failWithHint(p output.Printer, code contract.ErrorCode, err error, hint string, exit int) error {
	_ = p.ErrorWithMeta(code, err.Error(), hint, sourceErrorMeta(err))
	return WrapPrinted(exit, err)
}

// failSource reports a source read failure. A missing source file is
// NOT_FOUND; everything else means the source is unavailable.
func failSource(p output.Printer, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return failWithHint(p, contract.ErrNotFound, err, "Point --source or GRIDCAL_SOURCE at an existing events file", 4)
	}
	hint := "Run `gridcal doctor` to check the source"
	if meta := sourceErrorMeta(err); meta != nil && meta["kind"] == "timeout" {
		hint = "Raise --timeout or check the source file"
	}
	return failWithHint(p, contract.ErrSourceUnavailable, err, hint, 6)
}
