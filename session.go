package diskprov

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type sessionState int

const (
	tableCreated sessionState = iota
	finalized
)

// AddedPartition records one successful AddPartition call. Its position in
// TableSession.Added() + 1 is the partition's table index.
type AddedPartition struct {
	Type       string
	Start      string
	End        string
	Filesystem FilesystemKind
}

// TableSession is a scoped sequence of partition table writes against one
// device. OpenTable writes a fresh table, Close flushes to disk. Partitions
// are addressed by their 1-based creation order, which is the order in
// which parted assigns table indexes.
//
// A session assumes exclusive access to the device's partition table. Nothing
// stops another process from writing to it concurrently.
type TableSession struct {
	dev     *BlockDevice
	mode    TableMode
	backing string
	added   []AddedPartition
	state   sessionState
	last    *CmdResult
	log     logrus.FieldLogger
}

// OpenTable writes a new, empty partition table of the given mode to dev.
// This destroys any existing table. Only GPT is supported; any other mode
// fails before anything is written.
func OpenTable(dev *BlockDevice, mode TableMode) (*TableSession, error) {
	if mode != GPT {
		return nil, &DiskError{
			Kind:   ErrUnsupportedTableMode,
			Device: dev.Path,
			Msg:    fmt.Sprintf("unknown mode selected to format in: %s", mode),
		}
	}

	backing, err := dev.ResolveBackingPath()
	if err != nil {
		return nil, err
	}

	s := &TableSession{
		dev:     dev,
		mode:    mode,
		backing: backing,
		log:     dev.logger().WithField("table", backing),
	}

	s.log.Infof("writing new %s partition table", mode)

	res := s.parted("mklabel", "gpt")
	if !res.Success() {
		return nil, &DiskError{
			Kind:   ErrTableInit,
			Device: dev.Path,
			Msg:    "problem setting the partition format to " + mode.String(),
			Output: res.Output,
			Err:    cmdError(res),
		}
	}

	return s, nil
}

// WithTable opens a table session, runs fn, then closes it. The flush in
// Close always runs, including when fn fails or panics, and before fn's error
// is returned. fn's error wins over a failing flush.
func WithTable(dev *BlockDevice, mode TableMode, fn func(*TableSession) error) (err error) {
	s, err := OpenTable(dev, mode)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	return fn(s)
}

// Device returns the device the session writes to.
func (s *TableSession) Device() *BlockDevice {
	return s.dev
}

// Added returns the partitions added so far, in table order.
func (s *TableSession) Added() []AddedPartition {
	return append([]AddedPartition{}, s.added...)
}

func (s *TableSession) parted(args ...string) *CmdResult {
	s.last = s.dev.h.run(append([]string{s.dev.h.tools.Parted, "-s", s.backing}, args...))
	return s.last
}

func (s *TableSession) usable(op string) bool {
	if s.state == finalized {
		s.log.Warnf("%s on a closed partition table session", op)
		return false
	}

	return true
}

// AddPartition creates a partition from start to end (parted units, e.g.
// "1MiB" or "100%"). fs, when set, is passed as parted's fs-type hint; the
// partition is not formatted. The result is the tool's exit status.
func (s *TableSession) AddPartition(ptype string, start, end string, fs FilesystemKind) bool {
	if !s.usable("add partition") {
		return false
	}

	s.log.Infof("adding %s partition %s-%s", ptype, start, end)

	args := []string{"mkpart", ptype}
	if fs != FilesystemNone {
		args = append(args, fs.String())
	}

	args = append(args, start, end)

	if res := s.parted(args...); !res.Success() {
		return false
	}

	s.added = append(s.added, AddedPartition{Type: ptype, Start: start, End: end, Filesystem: fs})

	if s.dev.h.verify {
		return s.verifyIndex(uint(len(s.added)))
	}

	return true
}

func (s *TableSession) verifyIndex(index uint) bool {
	info, err := ReadTable(s.backing)
	if err != nil {
		s.log.Warnf("could not read table back: %s", err)
		return false
	}

	if _, ok := info.Entry(index); !ok {
		s.log.Warnf("partition %d was not found in the table after adding it", index)
		return false
	}

	return true
}

func (s *TableSession) validIndex(index uint) bool {
	if index < 1 || index > uint(len(s.added)) {
		s.log.Warnf("partition index %d out of range (1-%d)", index, len(s.added))
		return false
	}

	return true
}

// SetName sets the GPT name of the partition with the given 1-based index.
func (s *TableSession) SetName(index uint, name string) bool {
	if !s.usable("set name") || !s.validIndex(index) {
		return false
	}

	return s.parted("name", fmt.Sprint(index), name).Success()
}

// SetFlag sets a flag on the partition with the given 1-based index. flag is
// a parted flag expression such as "boot on".
func (s *TableSession) SetFlag(index uint, flag string) bool {
	if !s.usable("set flag") || !s.validIndex(index) {
		return false
	}

	args := append([]string{"set", fmt.Sprint(index)}, strings.Fields(flag)...)

	return s.parted(args...).Success()
}

// Whole disk layout. Downstream boot tooling relies on these values.
const (
	efiStart = "1MiB"
	efiEnd   = "513MiB"
	efiName  = "EFI"
	dataEnd  = "100%"
)

// ProvisionWholeDisk lays out the canonical whole disk EFI + data table: a
// fat32 EFI system partition from 1MiB to 513MiB named EFI with the boot and
// esp flags, followed by an ext4 partition over the rest of the disk. It
// stops at the first failing step.
func (s *TableSession) ProvisionWholeDisk() error {
	steps := []struct {
		desc string
		run  func() bool
	}{
		{"add EFI partition", func() bool { return s.AddPartition("primary", efiStart, efiEnd, FAT32) }},
		{"name EFI partition", func() bool { return s.SetName(1, efiName) }},
		{"set boot flag", func() bool { return s.SetFlag(1, "boot on") }},
		{"set esp flag", func() bool { return s.SetFlag(1, "esp on") }},
		{"add data partition", func() bool { return s.AddPartition("primary", efiEnd, dataEnd, Ext4) }},
	}

	for _, step := range steps {
		s.last = nil

		if step.run() {
			continue
		}

		if s.last != nil && !s.last.Success() {
			return errors.Wrapf(cmdError(s.last), "whole disk layout: %s", step.desc)
		}

		return errors.Errorf("whole disk layout: %s on %s failed", step.desc, s.dev.Path)
	}

	return nil
}

// Close flushes outstanding writes to disk and ends the session. It is safe
// to call more than once; only the first call flushes.
func (s *TableSession) Close() error {
	if s.state == finalized {
		return nil
	}

	s.state = finalized

	res := s.dev.h.run([]string{s.dev.h.tools.Sync})

	return cmdError(res)
}

// Mode returns the table mode the session was opened with.
func (s *TableSession) Mode() TableMode {
	return s.mode
}
