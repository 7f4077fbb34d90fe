package diskprov

import (
	"encoding/json"
	"fmt"
)

// Mebibyte is 1024 * 1024 bytes.
const Mebibyte = 1024 * 1024

// DeviceKind enumerates the kinds of block device the registry knows about.
type DeviceKind int

const (
	// KindOther - a device type reported by the system that we do not handle.
	KindOther DeviceKind = iota

	// KindDisk - a physical disk.
	KindDisk

	// KindLoop - a loop device backed by a file.
	KindLoop

	// KindCrypt - a decrypted crypto volume on top of a parent device.
	KindCrypt

	// KindPart - a partition, only listed when partitions are requested.
	KindPart
)

var kindToString = map[DeviceKind]string{ //nolint:gochecknoglobals
	KindOther: "other",
	KindDisk:  "disk",
	KindLoop:  "loop",
	KindCrypt: "crypt",
	KindPart:  "part",
}

func (k DeviceKind) String() string {
	if s, ok := kindToString[k]; ok {
		return s
	}

	return fmt.Sprintf("DeviceKind(%d)", int(k))
}

// MarshalJSON for string output rather than int
func (k DeviceKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// ParseDeviceKind maps an lsblk "type" column to a DeviceKind. Anything
// unrecognised is KindOther.
func ParseDeviceKind(s string) DeviceKind {
	for k, v := range kindToString {
		if v == s {
			return k
		}
	}

	return KindOther
}

// FilesystemKind enumerates the filesystems a partition can be formatted with.
type FilesystemKind int

const (
	// FilesystemNone - not formatted, or not known.
	FilesystemNone FilesystemKind = iota

	// FAT32 - 32-bit FAT, used for the EFI system partition.
	FAT32

	// Ext4 - fourth extended filesystem.
	Ext4
)

func (f FilesystemKind) String() string {
	switch f {
	case FilesystemNone:
		return ""
	case FAT32:
		return "fat32"
	case Ext4:
		return "ext4"
	}

	return fmt.Sprintf("FilesystemKind(%d)", int(f))
}

// MountType returns the type name given to mount(8) with -t.
func (f FilesystemKind) MountType() string {
	if f == FAT32 {
		return "vfat"
	}

	return f.String()
}

// MarshalJSON for string output rather than int
func (f FilesystemKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// ParseFilesystemKind returns the FilesystemKind named by s. It fails with
// ErrUnsupportedFilesystem for anything that is not fat32 or ext4.
func ParseFilesystemKind(s string) (FilesystemKind, error) {
	switch s {
	case "fat32", "vfat":
		return FAT32, nil
	case "ext4":
		return Ext4, nil
	}

	return FilesystemNone, &DiskError{
		Kind: ErrUnsupportedFilesystem,
		Msg:  fmt.Sprintf("filesystem %q is not yet implemented", s),
	}
}

// TableMode is the kind of partition table on a device.
type TableMode int

const (
	// TableNone - no partition table found.
	TableNone TableMode = iota

	// MBR - legacy Master Boot Record. Only ever reported, never written.
	MBR

	// GPT - GUID Partition Table.
	GPT
)

func (t TableMode) String() string {
	return []string{"NONE", "MBR", "GPT"}[t]
}

// MarshalJSON for string output rather than int
func (t TableMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Result is the outcome of an operation whose failure is expected and
// retryable (mount, unmount) and is therefore not reported as an error.
type Result int

const (
	// Failed - the tool ran and reported failure.
	Failed Result = iota

	// OK - the operation was performed.
	OK

	// AlreadyDone - nothing to do, the partition was already in the
	// requested state.
	AlreadyDone
)

func (r Result) String() string {
	return []string{"failed", "ok", "already-done"}[r]
}

// Success is true for OK and AlreadyDone.
func (r Result) Success() bool {
	return r == OK || r == AlreadyDone
}
