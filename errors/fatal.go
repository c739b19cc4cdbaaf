package errors

import (
	"fmt"
	"os"
)

// abort is the process-abort hook invoked by Fatal. Tests override it to
// observe the call without exiting the test binary.
var abort = func() { os.Exit(1) }

// Fatal reports err, with its captured stack trace, to stderr and invokes
// the process-abort hook. It is reserved for conditions spec §7 classifies
// as unrecoverable — a corrupted on-disk invariant, not an ordinary request
// failure — where logging and limping forward would risk further corruption.
func Fatal(err error) {
	fmt.Fprintln(os.Stderr, WithStack(err))
	abort()
}
