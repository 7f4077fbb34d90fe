package diskprov

import (
	"bytes"

	"github.com/sirupsen/logrus"
)

// CmdResult is the outcome of a single tool invocation.
type CmdResult struct {
	// Args is the full command line, binary first.
	Args []string

	// Output is the combined stdout and stderr of the process.
	Output []byte

	// ExitCode is the process exit status. 127 is used when the binary
	// could not be started at all.
	ExitCode int
}

// Success is true when the tool exited zero.
func (r *CmdResult) Success() bool {
	return r.ExitCode == 0
}

// Contains reports whether the output contains s.
func (r *CmdResult) Contains(s string) bool {
	return bytes.Contains(r.Output, []byte(s))
}

// RunOptions adjust how an Executor treats a single invocation.
type RunOptions struct {
	// SuppressErrors - do not log a non-zero exit status.
	SuppressErrors bool

	// HideFromLog - do not log the invocation itself.
	HideFromLog bool
}

// RunOption sets a field of RunOptions.
type RunOption func(*RunOptions)

// SuppressErrors returns a RunOption that silences failure logging.
func SuppressErrors() RunOption {
	return func(o *RunOptions) { o.SuppressErrors = true }
}

// HideFromLog returns a RunOption that keeps the invocation out of the logs.
func HideFromLog() RunOption {
	return func(o *RunOptions) { o.HideFromLog = true }
}

// NewRunOptions applies opts to a zero RunOptions.
func NewRunOptions(opts ...RunOption) RunOptions {
	ro := RunOptions{}

	for _, o := range opts {
		o(&ro)
	}

	return ro
}

// Executor runs an external command to completion and captures its output.
// Implementations must not return until the process has exited.
type Executor interface {
	Run(args []string, opts ...RunOption) *CmdResult
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(args []string, opts ...RunOption) *CmdResult

// Run calls f.
func (f ExecutorFunc) Run(args []string, opts ...RunOption) *CmdResult {
	return f(args, opts...)
}

// Tools holds the absolute paths of every binary the subsystem invokes.
type Tools struct {
	Parted    string `yaml:"parted"`
	MkfsVfat  string `yaml:"mkfs-vfat"`
	MkfsExt4  string `yaml:"mkfs-ext4"`
	Mount     string `yaml:"mount"`
	Umount    string `yaml:"umount"`
	Partprobe string `yaml:"partprobe"`
	Lsblk     string `yaml:"lsblk"`
	Losetup   string `yaml:"losetup"`
	Sync      string `yaml:"sync"`
}

// DefaultTools returns the standard locations of the tools.
func DefaultTools() Tools {
	return Tools{
		Parted:    "/usr/bin/parted",
		MkfsVfat:  "/usr/bin/mkfs.vfat",
		MkfsExt4:  "/usr/bin/mkfs.ext4",
		Mount:     "/usr/bin/mount",
		Umount:    "/usr/bin/umount",
		Partprobe: "/usr/bin/partprobe",
		Lsblk:     "/usr/bin/lsblk",
		Losetup:   "/usr/bin/losetup",
		Sync:      "/usr/bin/sync",
	}
}

// withDefaults fills any empty path from DefaultTools.
func (t Tools) withDefaults() Tools {
	d := DefaultTools()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}

	fill(&t.Parted, d.Parted)
	fill(&t.MkfsVfat, d.MkfsVfat)
	fill(&t.MkfsExt4, d.MkfsExt4)
	fill(&t.Mount, d.Mount)
	fill(&t.Umount, d.Umount)
	fill(&t.Partprobe, d.Partprobe)
	fill(&t.Lsblk, d.Lsblk)
	fill(&t.Losetup, d.Losetup)
	fill(&t.Sync, d.Sync)

	return t
}

// LoopDevice is one entry of the active loop device table.
type LoopDevice struct {
	Name     string `json:"name"`
	BackFile string `json:"back-file"`
}

// LoopLister returns the active loop devices.
type LoopLister interface {
	LoopDevices() ([]LoopDevice, error)
}

// Options wire a Registry (and every device it hands out) to the host.
type Options struct {
	Exec   Executor
	Tools  Tools
	Logger logrus.FieldLogger

	// Loops overrides how the loop table is read. When nil the table is
	// read with losetup through Exec on every lookup.
	Loops LoopLister

	// VerifyTable makes table sessions read the GPT back after every
	// added partition.
	VerifyTable bool
}

// host is the shared plumbing every device and partition of a Registry uses.
type host struct {
	exec   Executor
	tools  Tools
	log    logrus.FieldLogger
	loops  LoopLister
	verify bool
}

func newHost(opts Options) *host {
	h := &host{
		exec:   opts.Exec,
		tools:  opts.Tools.withDefaults(),
		log:    opts.Logger,
		loops:  opts.Loops,
		verify: opts.VerifyTable,
	}

	if h.log == nil {
		h.log = logrus.StandardLogger()
	}

	if h.loops == nil {
		h.loops = &execLoopLister{h: h}
	}

	return h
}

func (h *host) run(args []string, opts ...RunOption) *CmdResult {
	return h.exec.Run(args, opts...)
}
