package diskprov

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDeviceList(t *testing.T) {
	ast := assert.New(t)

	out := []byte(`{
   "blockdevices": [
      {"path":"/dev/sda", "size":64424509440, "type":"disk", "mountpoint":null, "label":null, "pkname":null},
      {"path":"/dev/sda1", "size":"536870912", "type":"part", "mountpoint":"/boot", "label":"EFI", "pkname":"sda"}
   ]
}`)

	recs, err := parseDeviceList(out)
	ast.Nil(err)
	ast.Equal([]lsblkRecord{
		{Path: "/dev/sda", Size: "64424509440", Type: "disk"},
		{Path: "/dev/sda1", Size: "536870912", Type: "part", Mountpoint: "/boot", Label: "EFI", PKName: "sda"},
	}, recs)

	ast.Equal(uint64(64424509440), parseSize(recs[0].Size))
	ast.Equal(uint64(536870912), parseSize(recs[1].Size))
}

func TestParseDeviceListEmpty(t *testing.T) {
	recs, err := parseDeviceList([]byte(`{"blockdevices": []}`))
	assert.Nil(t, err)
	assert.Empty(t, recs)
}

func TestParseDeviceListMalformed(t *testing.T) {
	for _, out := range []string{
		"",
		"lsblk: unknown column: pkname\n",
		`{"blockdevices": [`,
		`{"devices": []}`,
	} {
		_, err := parseDeviceList([]byte(out))
		assert.ErrorIs(t, err, ErrMalformedOutput, "output %q", out)
	}
}

func TestParseDeviceTree(t *testing.T) {
	ast := assert.New(t)

	out := []byte(`{
   "blockdevices": [
      {"name":"nvme0n1", "size":512110190592,
         "children": [
            {"name":"nvme0n1p1", "size":536870912},
            {"name":"nvme0n1p2", "size":511572271104}
         ]
      }
   ]
}`)

	nodes, err := parseDeviceTree(out)
	ast.Nil(err)
	ast.Len(nodes, 1)
	ast.Equal("nvme0n1", nodes[0].Name)
	ast.Len(nodes[0].Children, 2)
	ast.Equal("nvme0n1p2", nodes[0].Children[1].Name)

	_, err = parseDeviceTree([]byte("lsblk: /tmp/x: not a block device"))
	ast.ErrorIs(err, ErrMalformedOutput)
}

func TestParseSize(t *testing.T) {
	ast := assert.New(t)

	ast.Equal(uint64(0), parseSize(""))
	ast.Equal(uint64(0), parseSize(json.Number("1.5G")))
	ast.Equal(uint64(4096), parseSize(json.Number("4096")))
}

func TestParseLoopDevices(t *testing.T) {
	ast := assert.New(t)

	devs, err := ParseLoopDevices([]byte(""))
	ast.Nil(err)
	ast.Empty(devs)

	devs, err = ParseLoopDevices([]byte(`{"loopdevices": [
      {"name":"/dev/loop0", "back-file":"/var/lib/images/a.img"},
      {"name":"/dev/loop1", "back-file":"/tmp/b.img (deleted)"}
   ]}`))
	ast.Nil(err)
	ast.Equal([]LoopDevice{
		{Name: "/dev/loop0", BackFile: "/var/lib/images/a.img"},
		{Name: "/dev/loop1", BackFile: "/tmp/b.img (deleted)"},
	}, devs)

	_, err = ParseLoopDevices([]byte("losetup: cannot find"))
	ast.ErrorIs(err, ErrMalformedOutput)
}

func TestSuffixLess(t *testing.T) {
	ast := assert.New(t)

	ast.True(suffixLess("p2", "p10"))
	ast.True(suffixLess("1", "2"))
	ast.False(suffixLess("p10", "p9"))
}
