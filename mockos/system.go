// Package mockos is an in-memory host for diskprov. Its Executor answers the
// lsblk, losetup, parted, mkfs, mount and sync invocations the library makes
// by reading and changing a device model loaded from a JSON layout.
package mockos

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"machinerun.io/diskprov"
)

const (
	rcFail        = 1
	rcMountFail   = 32
	rcNotFound    = 127
	mib           = 1024 * 1024
	notBlockDevRC = 32
)

// Partition is a partition child of a mock Device.
type Partition struct {
	Name       string   `json:"name"`
	Size       uint64   `json:"size"`
	Label      string   `json:"label,omitempty"`
	Filesystem string   `json:"filesystem,omitempty"`
	Mountpoint string   `json:"mountpoint,omitempty"`
	Flags      []string `json:"flags,omitempty"`
}

// Device is a top level block device of the mock host.
type Device struct {
	Path       string       `json:"path"`
	Type       string       `json:"type"`
	Size       uint64       `json:"size"`
	Label      string       `json:"label,omitempty"`
	Mountpoint string       `json:"mountpoint,omitempty"`
	PKName     string       `json:"pkname,omitempty"`
	BackFile   string       `json:"back-file,omitempty"`
	Table      string       `json:"table,omitempty"`
	Partitions []*Partition `json:"partitions,omitempty"`
}

func (d *Device) name() string {
	return path.Base(d.Path)
}

// partName is the kernel name of partition n: sda1, but nvme0n1p1 and loop0p1.
func (d *Device) partName(n int) string {
	base := d.name()
	if last := base[len(base)-1]; last >= '0' && last <= '9' {
		return fmt.Sprintf("%sp%d", base, n)
	}

	return fmt.Sprintf("%s%d", base, n)
}

type failure struct {
	prefix string
	rc     int
	output string
}

// Host is the simulated system. It is safe for concurrent use.
type Host struct {
	Devices []*Device `json:"devices"`

	mu       sync.Mutex
	calls    [][]string
	failures []failure
}

// Executor returns a mock Host loaded from the JSON layout file. It panics
// if the layout cannot be read.
func Executor(layout string) *Host {
	file, err := os.ReadFile(layout)
	if err != nil {
		panic(err)
	}

	h := &Host{}

	if err := json.Unmarshal(file, h); err != nil {
		panic(err)
	}

	return h
}

// NewHost returns a Host with the given devices.
func NewHost(devs ...*Device) *Host {
	return &Host{Devices: devs}
}

// Fail makes every later command whose tool base name and arguments start
// with prefix exit rc with output. For example "parted -s /dev/sda set".
func (h *Host) Fail(prefix string, rc int, output string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures = append(h.failures, failure{prefix: prefix, rc: rc, output: output})
}

// Calls returns every command run so far.
func (h *Host) Calls() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ret := make([][]string, len(h.calls))
	copy(ret, h.calls)

	return ret
}

// CallsTo returns the commands run so far whose binary has the given base
// name.
func (h *Host) CallsTo(tool string) [][]string {
	ret := [][]string{}

	for _, c := range h.Calls() {
		if path.Base(c[0]) == tool {
			ret = append(ret, c)
		}
	}

	return ret
}

// ResetCalls forgets the recorded commands.
func (h *Host) ResetCalls() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls = nil
}

// Device returns the device at devPath.
func (h *Host) Device(devPath string) (*Device, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.device(devPath)
}

func (h *Host) device(devPath string) (*Device, bool) {
	for _, d := range h.Devices {
		if d.Path == devPath {
			return d, true
		}
	}

	return nil, false
}

// tableOwner finds the device whose partition table lives at target, either
// the device node itself or a loop device's back-file.
func (h *Host) tableOwner(target string) (*Device, bool) {
	for _, d := range h.Devices {
		if d.Path == target || (d.BackFile != "" && d.BackFile == target) {
			return d, true
		}
	}

	return nil, false
}

func (h *Host) partition(ppath string) (*Partition, bool) {
	for _, d := range h.Devices {
		for _, p := range d.Partitions {
			if "/dev/"+p.Name == ppath {
				return p, true
			}
		}
	}

	return nil, false
}

func result(args []string, rc int, format string, a ...interface{}) *diskprov.CmdResult {
	return &diskprov.CmdResult{Args: args, ExitCode: rc, Output: []byte(fmt.Sprintf(format, a...))}
}

// Run implements diskprov.Executor.
func (h *Host) Run(args []string, opts ...diskprov.RunOption) *diskprov.CmdResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls = append(h.calls, append([]string{}, args...))

	tool := path.Base(args[0])
	line := strings.Join(append([]string{tool}, args[1:]...), " ")

	for _, f := range h.failures {
		if strings.HasPrefix(line, f.prefix) {
			return result(args, f.rc, "%s", f.output)
		}
	}

	switch tool {
	case "lsblk":
		return h.lsblk(args)
	case "losetup":
		return h.losetup(args)
	case "partprobe":
		return h.partprobe(args)
	case "parted":
		return h.parted(args)
	case "mkfs.vfat":
		return h.mkfs(args, "fat32", "mkfs.fat 4.2 (2021-01-31)\n")
	case "mkfs.ext4":
		return h.mkfs(args, "ext4", "mke2fs 1.47.0 (5-Feb-2023)\nWriting superblocks and filesystem accounting information: done\n")
	case "mount":
		return h.mount(args)
	case "umount":
		return h.umount(args)
	case "sync":
		return result(args, 0, "")
	}

	return result(args, rcNotFound, "%s: command not found\n", args[0])
}

type lsblkRow struct {
	Path       string  `json:"path"`
	Size       uint64  `json:"size"`
	Type       string  `json:"type"`
	Mountpoint *string `json:"mountpoint"`
	Label      *string `json:"label"`
	PKName     *string `json:"pkname"`
}

type lsblkNode struct {
	Name     string      `json:"name"`
	Size     uint64      `json:"size"`
	Children []lsblkNode `json:"children,omitempty"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func (h *Host) lsblk(args []string) *diskprov.CmdResult {
	for _, a := range args[1:] {
		if a == "--list" {
			return h.lsblkList(args)
		}
	}

	dev := args[len(args)-1]

	d, ok := h.device(dev)
	if !ok {
		return result(args, notBlockDevRC, "lsblk: %s: not a block device\n", dev)
	}

	node := lsblkNode{Name: d.name(), Size: d.Size}
	for _, p := range d.Partitions {
		node.Children = append(node.Children, lsblkNode{Name: p.Name, Size: p.Size})
	}

	return marshal(args, map[string]interface{}{"blockdevices": []lsblkNode{node}})
}

func (h *Host) lsblkList(args []string) *diskprov.CmdResult {
	rows := []lsblkRow{}

	for _, d := range h.Devices {
		rows = append(rows, lsblkRow{
			Path:       d.Path,
			Size:       d.Size,
			Type:       d.Type,
			Mountpoint: nullable(d.Mountpoint),
			Label:      nullable(d.Label),
			PKName:     nullable(d.PKName),
		})

		for _, p := range d.Partitions {
			rows = append(rows, lsblkRow{
				Path:       "/dev/" + p.Name,
				Size:       p.Size,
				Type:       "part",
				Mountpoint: nullable(p.Mountpoint),
				Label:      nullable(p.Label),
				PKName:     nullable(d.name()),
			})
		}
	}

	return marshal(args, map[string]interface{}{"blockdevices": rows})
}

func marshal(args []string, v interface{}) *diskprov.CmdResult {
	out, err := json.MarshalIndent(v, "", "   ")
	if err != nil {
		return result(args, rcFail, "%s", err)
	}

	return &diskprov.CmdResult{Args: args, Output: append(out, '\n')}
}

func (h *Host) losetup(args []string) *diskprov.CmdResult {
	loops := []diskprov.LoopDevice{}

	for _, d := range h.Devices {
		if d.Type == "loop" && d.BackFile != "" {
			loops = append(loops, diskprov.LoopDevice{Name: d.Path, BackFile: d.BackFile})
		}
	}

	if len(loops) == 0 {
		return result(args, 0, "")
	}

	return marshal(args, map[string]interface{}{"loopdevices": loops})
}

func (h *Host) partprobe(args []string) *diskprov.CmdResult {
	dev := args[len(args)-1]
	if _, ok := h.device(dev); !ok {
		return result(args, rcFail, "Error: Could not stat device %s - No such file or directory.\n", dev)
	}

	return result(args, 0, "")
}

// parted handles 'parted -s <target> <command...>'.
func (h *Host) parted(args []string) *diskprov.CmdResult {
	if len(args) < 4 || args[1] != "-s" { //nolint:gomnd
		return result(args, rcFail, "Usage: parted [OPTION]... [DEVICE [COMMAND [PARAMETERS]...]...]\n")
	}

	target, cmd := args[2], args[3:]

	d, ok := h.tableOwner(target)
	if !ok {
		return result(args, rcFail, "Error: Could not stat device %s - No such file or directory.\n", target)
	}

	switch cmd[0] {
	case "mklabel":
		d.Table = cmd[1]
		d.Partitions = nil

		return result(args, 0, "")
	case "mkpart":
		return h.mkpart(args, d, cmd[1:])
	case "name":
		p, res := partIndex(args, d, cmd)
		if p == nil {
			return res
		}

		p.Label = strings.Join(cmd[2:], " ")

		return res
	case "set":
		p, res := partIndex(args, d, cmd)
		if p == nil {
			return res
		}

		if len(cmd) > 3 && cmd[3] == "on" { //nolint:gomnd
			p.Flags = append(p.Flags, cmd[2])
		}

		return res
	}

	return result(args, rcFail, "Error: unrecognised command %q\n", cmd[0])
}

func partIndex(args []string, d *Device, cmd []string) (*Partition, *diskprov.CmdResult) {
	if len(cmd) < 3 { //nolint:gomnd
		return nil, result(args, rcFail, "Error: Expecting a partition number.\n")
	}

	n, err := strconv.Atoi(cmd[1])
	if err != nil || n < 1 || n > len(d.Partitions) {
		return nil, result(args, rcFail, "Error: Partition doesn't exist.\n")
	}

	return d.Partitions[n-1], result(args, 0, "")
}

func (h *Host) mkpart(args []string, d *Device, params []string) *diskprov.CmdResult {
	if d.Table == "" {
		return result(args, rcFail, "Error: %s: unrecognised disk label\n", d.Path)
	}

	// ptype [fs-type] start end
	if len(params) < 3 { //nolint:gomnd
		return result(args, rcFail, "Error: Expecting a file system type.\n")
	}

	start, err1 := parseUnit(params[len(params)-2], d.Size)
	end, err2 := parseUnit(params[len(params)-1], d.Size)

	if err1 != nil || err2 != nil || end <= start {
		return result(args, rcFail, "Error: Invalid partition range %s-%s.\n",
			params[len(params)-2], params[len(params)-1])
	}

	d.Partitions = append(d.Partitions, &Partition{
		Name: d.partName(len(d.Partitions) + 1),
		Size: end - start,
	})

	return result(args, 0, "")
}

// parseUnit understands the two units the library uses, MiB and percent.
func parseUnit(s string, size uint64) (uint64, error) {
	if strings.HasSuffix(s, "%") {
		v, err := strconv.ParseUint(strings.TrimSuffix(s, "%"), 10, 64)
		return size * v / 100, err //nolint:gomnd
	}

	if strings.HasSuffix(s, "MiB") {
		v, err := strconv.ParseUint(strings.TrimSuffix(s, "MiB"), 10, 64)
		return v * mib, err
	}

	return 0, fmt.Errorf("unknown unit in %q", s)
}

func (h *Host) mkfs(args []string, fs string, banner string) *diskprov.CmdResult {
	ppath := args[len(args)-1]

	p, ok := h.partition(ppath)
	if !ok {
		return result(args, rcFail, "%s: No such file or directory\n", ppath)
	}

	if p.Mountpoint != "" {
		return result(args, rcFail, "%s is mounted; will not make a filesystem here!\n", ppath)
	}

	p.Filesystem = fs

	return result(args, 0, "%s", banner)
}

// mount handles 'mount -t <type> [-o <opts>] <src> <target>'.
func (h *Host) mount(args []string) *diskprov.CmdResult {
	var fstype string

	pos := []string{}

	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "-t":
			i++
			fstype = args[i]
		case "-o":
			i++
		default:
			pos = append(pos, args[i])
		}
	}

	if len(pos) != 2 { //nolint:gomnd
		return result(args, rcFail, "mount: bad usage\n")
	}

	src, target := pos[0], pos[1]

	p, ok := h.partition(src)
	if !ok {
		return result(args, rcMountFail, "mount: %s: special device %s does not exist.\n", target, src)
	}

	if p.Filesystem == "" || mountType(p.Filesystem) != fstype {
		return result(args, rcMountFail, "mount: %s: wrong fs type, bad option, bad superblock on %s.\n", target, src)
	}

	if p.Mountpoint != "" {
		return result(args, rcMountFail, "mount: %s: %s already mounted on %s.\n", target, src, p.Mountpoint)
	}

	p.Mountpoint = target

	return result(args, 0, "")
}

func mountType(fs string) string {
	if fs == "fat32" {
		return "vfat"
	}

	return fs
}

// umount handles 'umount <dev>' and 'umount -R <target>'.
func (h *Host) umount(args []string) *diskprov.CmdResult {
	if len(args) == 3 && args[1] == "-R" { //nolint:gomnd
		target := args[2]
		found := false

		for _, d := range h.Devices {
			for _, p := range d.Partitions {
				if p.Mountpoint == target || strings.HasPrefix(p.Mountpoint, target+"/") {
					p.Mountpoint = ""
					found = true
				}
			}
		}

		if !found {
			return result(args, rcMountFail, "umount: %s: not mounted.\n", target)
		}

		return result(args, 0, "")
	}

	src := args[len(args)-1]

	p, ok := h.partition(src)
	if !ok || p.Mountpoint == "" {
		return result(args, rcMountFail, "umount: %s: not mounted.\n", src)
	}

	p.Mountpoint = ""

	return result(args, 0, "")
}
