package diskprov

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/rekby/gpt"
	"github.com/rekby/mbr"
	"github.com/stretchr/testify/assert"
	"machinerun.io/diskprov/partid"
)

func getPartName(s string) [72]byte {
	codes := utf16.Encode([]rune(s))
	b := [72]byte{}

	for i, r := range codes {
		b[i*2] = byte(r)
		b[i*2+1] = byte(r >> 8) //nolint:gomnd
	}

	return b
}

func tempImage(t *testing.T, size int64) string {
	fpath := filepath.Join(t.TempDir(), "disk.img")

	fp, err := os.Create(fpath)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()

	if err := fp.Truncate(size); err != nil {
		t.Fatal(err)
	}

	return fpath
}

// writeNewGPTTable writes a GPT with the given entries, 1-based in order.
func writeNewGPTTable(t *testing.T, fpath string, entries []TableEntry) {
	fp, err := os.OpenFile(fpath, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()

	size, err := fp.Seek(0, io.SeekEnd)
	if err != nil {
		t.Fatal(err)
	}

	table := gpt.NewTable(uint64(size), &gpt.NewTableArgs{
		SectorSize: sectorSize512,
		DiskGuid:   gpt.Guid(GenGUID()),
	})

	for i, e := range entries {
		table.Partitions[i] = gpt.Partition{
			Type:          gpt.PartType(e.Type),
			Id:            gpt.Guid(e.ID),
			FirstLBA:      e.Start / sectorSize512,
			LastLBA:       e.Last / sectorSize512,
			Flags:         gpt.Flags{},
			PartNameUTF16: getPartName(e.Name),
			TrailingBytes: []byte{},
		}
	}

	if err := table.Write(fp); err != nil {
		t.Fatal(err)
	}

	if err := table.CreateOtherSideTable().Write(fp); err != nil {
		t.Fatal(err)
	}
}

func TestReadTableGPT(t *testing.T) {
	ast := assert.New(t)
	fpath := tempImage(t, 100*Mebibyte)

	efi := TableEntry{
		Number: 1,
		Name:   "EFI",
		Type:   GUID(partid.EFI),
		ID:     GenGUID(),
		Start:  Mebibyte,
		Last:   20*Mebibyte - 1,
	}
	data := TableEntry{
		Number: 2,
		Name:   "root",
		Type:   GUID(partid.LinuxFS),
		ID:     GenGUID(),
		Start:  40 * Mebibyte,
		Last:   90*Mebibyte - 1,
	}

	writeNewGPTTable(t, fpath, []TableEntry{efi, data})

	info, err := ReadTable(fpath)
	ast.Nil(err)
	ast.Equal(GPT, info.Mode)
	ast.Equal(uint(sectorSize512), info.SectorSize)
	ast.Equal(uint64(100*Mebibyte), info.Size)
	ast.Equal([]TableEntry{efi, data}, info.Entries)

	e, ok := info.Entry(1)
	ast.True(ok)
	ast.Equal("EFI", e.TypeName())
	ast.Equal(uint64(19*Mebibyte), e.Size())

	_, ok = info.Entry(3)
	ast.False(ok)

	free := info.FreeSpaces(Mebibyte)
	ast.Len(free, 2)
	ast.Equal(FreeSpace{Start: 20 * Mebibyte, End: 40*Mebibyte - 1}, free[0])
	ast.Equal(uint64(90*Mebibyte), free[1].Start)

	ast.Len(info.FreeSpaces(10*Mebibyte), 1)
}

func TestReadTableMBR(t *testing.T) {
	ast := assert.New(t)
	fpath := tempImage(t, 10*Mebibyte)

	buf := make([]byte, sectorSize512)
	buf[0x1FE] = 0x55
	buf[0x1FF] = 0xAA

	m, err := mbr.Read(bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}

	pt := m.GetPartition(1)
	pt.SetType(mbr.PartitionType(0x83)) //nolint:gomnd
	pt.SetLBAStart(2048)                 //nolint:gomnd
	pt.SetLBALen(4096)                   //nolint:gomnd

	fp, err := os.OpenFile(fpath, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}

	ast.Nil(m.Write(fp))
	fp.Close()

	info, err := ReadTable(fpath)
	ast.Nil(err)
	ast.Equal(MBR, info.Mode)
	ast.Len(info.Entries, 1)
	ast.Equal(uint64(Mebibyte), info.Entries[0].Start)
	ast.Equal(uint64(3*Mebibyte-1), info.Entries[0].Last)
}

func TestReadTableNone(t *testing.T) {
	ast := assert.New(t)

	info, err := ReadTable(tempImage(t, 4*Mebibyte))
	ast.Nil(err)
	ast.Equal(TableNone, info.Mode)
	ast.Empty(info.Entries)
	ast.Equal("NONE table, 0 entries, sector size 512", info.String())

	// The first MiB and the backup GPT area stay reserved.
	ast.Len(info.FreeSpaces(0), 1)
}

func TestReadTableMissing(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "nope.img"))
	assert.True(t, os.IsNotExist(err))
}
