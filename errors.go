package diskprov

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kinds of DiskError. Use errors.Is to test for them.
var (
	// ErrDiscovery is returned when the system device tree cannot be listed.
	ErrDiscovery = errors.New("device discovery failed")

	// ErrDeviceNotFound is returned when a selection does not resolve.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrNoDevices is returned when selecting from an empty DeviceSet.
	ErrNoDevices = errors.New("no devices to select from")

	// ErrMissingBackingInfo is returned when a loop or crypt device cannot be
	// mapped to its backing path.
	ErrMissingBackingInfo = errors.New("missing backing info")

	// ErrUnsupportedDeviceKind is returned for device kinds with no backing path.
	ErrUnsupportedDeviceKind = errors.New("unsupported device kind")

	// ErrNotABlockDevice is returned when partitions are read off something
	// that is not a block device.
	ErrNotABlockDevice = errors.New("not a block device")

	// ErrMalformedOutput is returned when a structured query did not return
	// parseable data.
	ErrMalformedOutput = errors.New("malformed tool output")

	// ErrUnsupportedFilesystem is returned by Format for unknown kinds.
	ErrUnsupportedFilesystem = errors.New("unsupported filesystem")

	// ErrUnknownFilesystem is returned by Mount when no filesystem is known.
	ErrUnknownFilesystem = errors.New("unknown filesystem")

	// ErrFormat is returned when the formatting tool failed.
	ErrFormat = errors.New("format failed")

	// ErrUnsupportedTableMode is returned when opening a table session with a
	// mode other than GPT.
	ErrUnsupportedTableMode = errors.New("unsupported partition table mode")

	// ErrTableInit is returned when writing a new partition table failed.
	ErrTableInit = errors.New("partition table init failed")
)

// DiskError is a device, partition or table level failure.
type DiskError struct {
	Kind   error
	Device string
	Msg    string
	Output []byte
	Err    error
}

func (e *DiskError) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.Error())

	if e.Device != "" {
		fmt.Fprintf(&b, " [%s]", e.Device)
	}

	if e.Msg != "" {
		fmt.Fprintf(&b, ": %s", e.Msg)
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err)
	}

	if len(e.Output) != 0 {
		fmt.Fprintf(&b, "\n out: %s", e.Output)
	}

	return b.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *DiskError) Unwrap() []error {
	errs := []error{e.Kind}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// SysCallError is returned when a tool reports failure and the caller cannot
// safely continue.
type SysCallError struct {
	Args     []string
	ExitCode int
	Output   []byte
}

func (e *SysCallError) Error() string {
	out := e.Output

	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(append([]byte{}, out...), '\n')
	}

	return fmt.Sprintf("command returned %d:\n cmd: %v\n out: %s", e.ExitCode, e.Args, out)
}

// RequirementError is returned when an artifact needed by a later step is
// missing.
type RequirementError struct {
	What   string
	Output []byte
}

func (e *RequirementError) Error() string {
	if len(e.Output) == 0 {
		return "requirement not met: " + e.What
	}

	return fmt.Sprintf("requirement not met: %s\n out: %s", e.What, e.Output)
}

// cmdError returns nil for a zero exit code, a SysCallError otherwise.
func cmdError(res *CmdResult) error {
	if res.ExitCode == 0 {
		return nil
	}

	return &SysCallError{Args: res.Args, ExitCode: res.ExitCode, Output: res.Output}
}
