package diskprov

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/rekby/gpt"
	"github.com/rekby/mbr"
	"machinerun.io/diskprov/partid"
)

const (
	sectorSize512 = 512
	sectorSize4k  = 4096
)

// ErrNoPartitionTable is returned if there is no partition table.
var ErrNoPartitionTable = errors.New("no Partition Table Found")

// TableEntry is one used slot of an on-disk partition table.
type TableEntry struct {
	Number uint   `json:"number"`
	Name   string `json:"name"`
	Type   GUID   `json:"type"`
	ID     GUID   `json:"id"`
	Start  uint64 `json:"start"`
	Last   uint64 `json:"last"`
}

// Size returns the size of the entry in bytes.
func (e TableEntry) Size() uint64 {
	return e.Last - e.Start + 1
}

// TypeName returns a human name for the partition type, or its GUID.
func (e TableEntry) TypeName() string {
	if t, ok := partid.Text[e.Type]; ok {
		return t
	}

	return e.Type.String()
}

// TableInfo is what ReadTable finds on a device or image.
type TableInfo struct {
	Mode       TableMode    `json:"mode"`
	Size       uint64       `json:"size"`
	SectorSize uint         `json:"sectorSize"`
	Entries    []TableEntry `json:"entries"`
}

// Entry returns the entry with the given table number.
func (t TableInfo) Entry(number uint) (TableEntry, bool) {
	for _, e := range t.Entries {
		if e.Number == number {
			return e, true
		}
	}

	return TableEntry{}, false
}

// FreeSpaces returns the unpartitioned ranges of at least minSize bytes. The
// first MiB and the GPT backup area at the end are never free.
func (t TableInfo) FreeSpaces(minSize uint64) []FreeSpace {
	if t.Size < 2*Mebibyte {
		return []FreeSpace{}
	}

	// Leave 33 sectors at end (for GPT second header) and round 1MiB down.
	end := ((t.Size - uint64(t.SectorSize)*33) / Mebibyte) * Mebibyte
	used := []uRange{{0, Mebibyte - 1}, {end, t.Size - 1}}

	for _, e := range t.Entries {
		used = append(used, uRange{e.Start, e.Last})
	}

	avail := []FreeSpace{}

	for _, g := range findRangeGaps(used, 0, t.Size-1) {
		if g.Size() < minSize {
			continue
		}

		avail = append(avail, FreeSpace(g))
	}

	return avail
}

// ReadTable opens fpath (a device node or an image file) and reads its
// partition table. A device with no table at all is Mode TableNone, not an
// error.
func ReadTable(fpath string) (TableInfo, error) {
	fp, err := os.Open(fpath)
	if err != nil {
		return TableInfo{}, err
	}
	defer fp.Close()

	size, err := fp.Seek(0, io.SeekEnd)
	if err != nil {
		return TableInfo{}, errors.Wrapf(err, "failed to find size of %s", fpath)
	}

	info, err := findPartitions(fp)
	if err != nil {
		return info, errors.Wrapf(err, "failed to read partition table of %s", fpath)
	}

	info.Size = uint64(size)

	return info, nil
}

func readGPTTableSearch(fp io.ReadSeeker, sizes []uint) (gpt.Table, uint, error) {
	const noGptFound = "Bad GPT signature"
	var gptTable gpt.Table
	var err error
	var size uint

	for _, size = range sizes {
		// consider seek failure to be fatal
		if _, err := fp.Seek(int64(size), io.SeekStart); err != nil {
			return gpt.Table{}, size, err
		}

		if gptTable, err = gpt.ReadTable(fp, uint64(size)); err != nil {
			if err.Error() == noGptFound {
				continue
			}

			return gpt.Table{}, size, err
		}

		return gptTable, size, nil
	}

	return gpt.Table{}, size, ErrNoPartitionTable
}

func readMBRTable(fp io.ReadSeeker) ([]TableEntry, error) {
	entries := []TableEntry{}

	if _, err := fp.Seek(0, io.SeekStart); err != nil {
		return entries, err
	}

	mbrTable, err := mbr.Read(fp)
	if err == mbr.ErrorBadMbrSign {
		return entries, ErrNoPartitionTable
	} else if err != nil {
		return entries, err
	}

	for i, p := range mbrTable.GetAllPartitions() {
		if p.IsEmpty() {
			continue
		}

		buf := [16]byte{}
		buf[15] = byte(p.GetType())

		entries = append(entries, TableEntry{
			Start:  uint64(p.GetLBAStart()) * sectorSize512,
			Last:   uint64(p.GetLBALast())*sectorSize512 + sectorSize512 - 1,
			Type:   GUID(buf),
			Number: uint(i + 1),
		})
	}

	return entries, nil
}

func findPartitions(fp io.ReadSeeker) (TableInfo, error) {
	gptTable, ssize, err := readGPTTableSearch(fp, []uint{sectorSize512, sectorSize4k})
	if err == ErrNoPartitionTable {
		entries, err := readMBRTable(fp)
		if err == ErrNoPartitionTable {
			return TableInfo{Mode: TableNone, SectorSize: sectorSize512, Entries: []TableEntry{}}, nil
		}

		return TableInfo{Mode: MBR, SectorSize: sectorSize512, Entries: entries}, err
	}

	if err != nil {
		return TableInfo{Mode: GPT, SectorSize: ssize}, err
	}

	info := TableInfo{Mode: GPT, SectorSize: ssize, Entries: []TableEntry{}}
	ssize64 := uint64(ssize)

	for n, p := range gptTable.Partitions {
		if p.IsEmpty() {
			continue
		}

		info.Entries = append(info.Entries, TableEntry{
			Start:  p.FirstLBA * ssize64,
			Last:   p.LastLBA*ssize64 + ssize64 - 1,
			ID:     GUID(p.Id),
			Type:   GUID(p.Type),
			Name:   p.Name(),
			Number: uint(n + 1),
		})
	}

	sort.Slice(info.Entries, func(i, j int) bool {
		return info.Entries[i].Number < info.Entries[j].Number
	})

	return info, nil
}

func (t TableInfo) String() string {
	return fmt.Sprintf("%s table, %d entries, sector size %d", t.Mode, len(t.Entries), t.SectorSize)
}
