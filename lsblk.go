package diskprov

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// lsblkRecord is one row of 'lsblk --json -l -o path,size,type,mountpoint,label,pkname'.
type lsblkRecord struct {
	Path       string      `json:"path"`
	Size       json.Number `json:"size"`
	Type       string      `json:"type"`
	Mountpoint string      `json:"mountpoint"`
	Label      string      `json:"label"`
	PKName     string      `json:"pkname"`
}

// lsblkNode is one node of 'lsblk --json -o name,size <dev>'.
type lsblkNode struct {
	Name     string      `json:"name"`
	Size     json.Number `json:"size"`
	Children []lsblkNode `json:"children"`
}

type lsblkList struct {
	BlockDevices *[]lsblkRecord `json:"blockdevices"`
}

type lsblkTree struct {
	BlockDevices *[]lsblkNode `json:"blockdevices"`
}

type losetupList struct {
	LoopDevices *[]LoopDevice `json:"loopdevices"`
}

func listDevicesArgs(t Tools) []string {
	return []string{t.Lsblk, "--json", "--list", "--noheadings", "--bytes",
		"--output", "path,size,type,mountpoint,label,pkname"}
}

func treeArgs(t Tools, dev string) []string {
	return []string{t.Lsblk, "--json", "--bytes", "--output", "name,size", dev}
}

// parseSize turns an lsblk size (number, quoted number or null) into bytes.
func parseSize(n json.Number) uint64 {
	if n == "" {
		return 0
	}

	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0
	}

	return v
}

// isJSONObject is the cheap check that tells "not valid output" apart from
// a document that merely lists nothing.
func isJSONObject(out []byte) bool {
	trimmed := bytes.TrimSpace(out)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func parseDeviceList(out []byte) ([]lsblkRecord, error) {
	if !isJSONObject(out) {
		return nil, ErrMalformedOutput
	}

	var l lsblkList
	if err := json.Unmarshal(out, &l); err != nil {
		return nil, errors.Wrap(ErrMalformedOutput, err.Error())
	}

	if l.BlockDevices == nil {
		return nil, errors.Wrap(ErrMalformedOutput, "no blockdevices key")
	}

	return *l.BlockDevices, nil
}

func parseDeviceTree(out []byte) ([]lsblkNode, error) {
	if !isJSONObject(out) {
		return nil, ErrMalformedOutput
	}

	var t lsblkTree
	if err := json.Unmarshal(out, &t); err != nil {
		return nil, errors.Wrap(ErrMalformedOutput, err.Error())
	}

	if t.BlockDevices == nil {
		return nil, errors.Wrap(ErrMalformedOutput, "no blockdevices key")
	}

	return *t.BlockDevices, nil
}

// ParseLoopDevices parses the output of 'losetup --list --json'. An empty
// output means there are no loop devices configured.
func ParseLoopDevices(out []byte) ([]LoopDevice, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return []LoopDevice{}, nil
	}

	if !isJSONObject(out) {
		return nil, ErrMalformedOutput
	}

	var l losetupList
	if err := json.Unmarshal(out, &l); err != nil {
		return nil, errors.Wrap(ErrMalformedOutput, err.Error())
	}

	if l.LoopDevices == nil {
		return []LoopDevice{}, nil
	}

	return *l.LoopDevices, nil
}
