package dieselrhi

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
)

// FatalHandler receives unrecoverable errors: native failures on creation
// or submission and fence timeouts. The default handler exits the process
// with status 1. A replacement must not return control to the frame loop;
// test handlers panic.
type FatalHandler func(op string, err error)

// FatalError is the value panicked by PanicOnFatal.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// PanicOnFatal turns fatal errors into a *FatalError panic, for hosts that
// recover at their top level.
func PanicOnFatal(op string, err error) {
	panic(&FatalError{Op: op, Err: err})
}

func exitOnFatal(op string, err error) {
	os.Exit(1)
}

// fatal logs err and hands it to the fatal handler. Finalizers run first.
func (d *Device) fatal(op string, err error, finalizers ...func()) {
	if err == nil {
		return
	}
	for _, fn := range finalizers {
		fn()
	}
	d.log.Error("fatal", "op", op, "err", err)
	d.onFatal(op, err)
}

// must reports a creation or submission failure as fatal and returns
// whether it was nil.
func (d *Device) must(op string, err error) bool {
	if err != nil {
		d.fatal(op, err)
		return false
	}
	return true
}

// assertf panics with an assertion failure when debug checks are enabled
// and cond is false. Release builds of the configuration skip the check.
func (d *Device) assertf(cond bool, format string, args ...any) {
	if !d.cfg.Debug || cond {
		return
	}
	err := errors.AssertionFailedf(format, args...)
	d.log.Error("contract violation", "err", err)
	panic(err)
}
