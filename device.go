package diskprov

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// BlockDevice is one device node reported by the Registry. It owns a cache
// of the partitions found on it by DiscoverPartitions. The cache is never
// invalidated on its own: callers must call DiscoverPartitions again after
// changing the partition table.
type BlockDevice struct {
	// Path is the device node, e.g. /dev/sda.
	Path string `json:"path"`

	// Kind is the closed device kind. RawType keeps lsblk's original
	// "type" column for display.
	Kind    DeviceKind `json:"kind"`
	RawType string     `json:"type"`

	// Size in bytes.
	Size uint64 `json:"size"`

	Label      string `json:"label,omitempty"`
	Mountpoint string `json:"mountpoint,omitempty"`

	// ParentName is the kernel name of the parent device (lsblk pkname).
	// It is what a crypt device resolves to.
	ParentName string `json:"pkname,omitempty"`

	parts map[string]*Partition
	h     *host
}

func newBlockDevice(h *host, rec lsblkRecord) *BlockDevice {
	return &BlockDevice{
		Path:       rec.Path,
		Kind:       ParseDeviceKind(rec.Type),
		RawType:    rec.Type,
		Size:       parseSize(rec.Size),
		Label:      rec.Label,
		Mountpoint: rec.Mountpoint,
		ParentName: rec.PKName,
		parts:      map[string]*Partition{},
		h:          h,
	}
}

func (d *BlockDevice) String() string {
	return fmt.Sprintf("BlockDevice(%s %s)", d.Path, d.Kind)
}

func (d *BlockDevice) logger() logrus.FieldLogger {
	return d.h.log.WithField("device", d.Path)
}

// ResolveBackingPath returns the real storage location the device maps to:
// the device itself for a disk, the back-file of a loop device, and the
// parent kernel device of a crypt volume.
func (d *BlockDevice) ResolveBackingPath() (string, error) {
	switch d.Kind {
	case KindDisk:
		return d.Path, nil
	case KindLoop:
		return d.loopBackFile()
	case KindCrypt:
		if d.ParentName == "" {
			return "", &DiskError{
				Kind:   ErrMissingBackingInfo,
				Device: d.Path,
				Msg:    "crypt device without a parent kernel device name",
			}
		}

		return path.Join("/dev", d.ParentName), nil
	case KindPart, KindOther:
		return "", &DiskError{
			Kind:   ErrUnsupportedDeviceKind,
			Device: d.Path,
			Msg:    fmt.Sprintf("no backing path for a %q device", d.RawType),
		}
	}

	panic(fmt.Sprintf("unhandled device kind %d", int(d.Kind)))
}

func (d *BlockDevice) loopBackFile() (string, error) {
	loops, err := d.h.loops.LoopDevices()
	if err != nil {
		return "", &DiskError{Kind: ErrMissingBackingInfo, Device: d.Path, Err: err}
	}

	for _, l := range loops {
		if l.Name == d.Path {
			return l.BackFile, nil
		}
	}

	return "", &DiskError{
		Kind:   ErrMissingBackingInfo,
		Device: d.Path,
		Msg:    "no matching entry in the loop device table",
	}
}

// DiscoverPartitions asks the kernel to re-read the partition table and then
// reads the device's block tree. Partitions not yet in the cache are added;
// cached ones are kept as they are so that format and mount state survive.
// The returned slice is sorted by suffix.
func (d *BlockDevice) DiscoverPartitions() ([]*Partition, error) {
	log := d.logger()

	if res := d.h.run([]string{d.h.tools.Partprobe, d.Path}); !res.Success() {
		log.Debugf("partprobe exited %d, reading block tree anyway", res.ExitCode)
	}

	res := d.h.run(treeArgs(d.h.tools, d.Path))

	if res.Contains("not a block device") {
		return nil, &DiskError{
			Kind:   ErrNotABlockDevice,
			Device: d.Path,
			Msg:    "cannot read partitions off something that is not a block device",
			Output: res.Output,
		}
	}

	nodes, err := parseDeviceTree(res.Output)
	if err != nil {
		return nil, &DiskError{
			Kind:   ErrMalformedOutput,
			Device: d.Path,
			Msg:    strings.Join(res.Args, " "),
			Output: res.Output,
			Err:    err,
		}
	}

	if len(nodes) != 0 {
		root := nodes[0]
		base := path.Base(d.Path)
		rootPath := path.Join("/dev", root.Name)

		for _, child := range root.Children {
			suffix := strings.TrimPrefix(child.Name, base)

			if _, ok := d.parts[suffix]; ok {
				continue
			}

			p := newPartition(d.h, rootPath+suffix, suffix, parseSize(child.Size))
			d.parts[suffix] = p

			log.WithField("partition", p.Path).Debug("discovered partition")
		}
	}

	return d.Partitions(), nil
}

// Partitions returns the cached partitions sorted by suffix without querying
// the system.
func (d *BlockDevice) Partitions() []*Partition {
	parts := make([]*Partition, 0, len(d.parts))

	for _, p := range d.parts {
		parts = append(parts, p)
	}

	sort.Slice(parts, func(i, j int) bool {
		return suffixLess(parts[i].Suffix, parts[j].Suffix)
	})

	return parts
}

// Partition returns the cached partition with the given suffix.
func (d *BlockDevice) Partition(suffix string) (*Partition, bool) {
	p, ok := d.parts[suffix]
	return p, ok
}

// ReadTable reads the partition table straight off the device's backing path.
func (d *BlockDevice) ReadTable() (TableInfo, error) {
	bpath, err := d.ResolveBackingPath()
	if err != nil {
		return TableInfo{}, err
	}

	return ReadTable(bpath)
}

// suffixLess orders "p2" before "p10".
func suffixLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}

	return a < b
}
