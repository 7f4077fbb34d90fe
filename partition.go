package diskprov

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// missingToolMarkers are printed by shells and front-ends when the binary
// itself could not be run. Some of them still exit zero.
var missingToolMarkers = []string{ //nolint:gochecknoglobals
	"command not found",
	"executable file not found",
}

// Partition is one partition of a BlockDevice. It records the filesystem it
// was formatted with and where it is mounted. It holds no reference back to
// its device.
type Partition struct {
	Path   string `json:"path"`
	Suffix string `json:"suffix"`
	Size   uint64 `json:"size"`

	filesystem FilesystemKind
	mountpoint string
	h          *host
}

func newPartition(h *host, ppath string, suffix string, size uint64) *Partition {
	return &Partition{Path: ppath, Suffix: suffix, Size: size, h: h}
}

func (p *Partition) String() string {
	return fmt.Sprintf("Partition(path=%s, fs=%s, mounted=%s)", p.Path, p.filesystem, p.mountpoint)
}

// Filesystem returns the filesystem recorded by Format, or FilesystemNone.
func (p *Partition) Filesystem() FilesystemKind {
	return p.filesystem
}

// Mountpoint returns where the partition was mounted, or "".
func (p *Partition) Mountpoint() string {
	return p.mountpoint
}

// Mounted is true once Mount succeeded and until Unmount succeeds.
func (p *Partition) Mounted() bool {
	return p.mountpoint != ""
}

func (p *Partition) logger() logrus.FieldLogger {
	return p.h.log.WithField("partition", p.Path)
}

func (p *Partition) formatArgs(kind FilesystemKind) []string {
	switch kind {
	case FAT32:
		return []string{p.h.tools.MkfsVfat, "-F32", p.Path}
	case Ext4:
		return []string{p.h.tools.MkfsExt4, "-F", p.Path}
	case FilesystemNone:
	}

	return nil
}

// Format creates a filesystem of the given kind on the partition. Unlike
// Mount, any failure is returned as an error: a half formatted partition is
// not something to carry on with.
func (p *Partition) Format(kind FilesystemKind) error {
	args := p.formatArgs(kind)
	if args == nil {
		return &DiskError{
			Kind:   ErrUnsupportedFilesystem,
			Device: p.Path,
			Msg:    fmt.Sprintf("filesystem %q is not yet implemented", kind),
		}
	}

	p.logger().Infof("formatting %s -> %s", p, kind)

	res := p.h.run(args)

	if !res.Success() || toolMissing(res) {
		return &DiskError{
			Kind:   ErrFormat,
			Device: p.Path,
			Msg:    fmt.Sprintf("could not format with %s", kind),
			Output: res.Output,
		}
	}

	p.filesystem = kind

	return nil
}

func toolMissing(res *CmdResult) bool {
	for _, m := range missingToolMarkers {
		if res.Contains(m) {
			return true
		}
	}

	return false
}

// MountOptions are the optional arguments to Mount.
type MountOptions struct {
	// Filesystem overrides the recorded filesystem when set.
	Filesystem FilesystemKind

	// Options is passed to mount with -o when not empty.
	Options string
}

// Mount mounts the partition at target. It is AlreadyDone if the partition
// is already mounted. A failing mount tool is reported as Failed rather than
// an error so the caller can retry; not knowing the filesystem at all is an
// error.
func (p *Partition) Mount(target string, opts MountOptions) (Result, error) {
	log := p.logger()

	if p.mountpoint != "" {
		if p.mountpoint != target {
			log.Warnf("already mounted at %s, not mounting at %s", p.mountpoint, target)
		}

		return AlreadyDone, nil
	}

	fs := opts.Filesystem
	if fs == FilesystemNone {
		fs = p.filesystem
	}

	if fs == FilesystemNone {
		return Failed, &DiskError{
			Kind:   ErrUnknownFilesystem,
			Device: p.Path,
			Msg:    "need to format (or define) the filesystem before mounting",
		}
	}

	args := []string{p.h.tools.Mount, "-t", fs.MountType()}
	if opts.Options != "" {
		args = append(args, "-o", opts.Options)
	}

	args = append(args, p.Path, target)

	log.Infof("mounting %s to %s", p, target)

	if res := p.h.run(args); !res.Success() {
		return Failed, nil
	}

	p.mountpoint = target

	return OK, nil
}

// Unmount unmounts the partition. It is AlreadyDone if it is not mounted and
// Failed, like Mount, when the tool reports an error.
func (p *Partition) Unmount() Result {
	if p.mountpoint == "" {
		return AlreadyDone
	}

	p.logger().Infof("unmounting %s", p)

	if res := p.h.run([]string{p.h.tools.Umount, p.Path}); !res.Success() {
		return Failed
	}

	p.mountpoint = ""

	return OK
}
