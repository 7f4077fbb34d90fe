// Package partid holds well known GPT partition type GUIDs. GUIDs are stored
// in their on-disk (mixed endian) byte order.
package partid

// Empty is the type of an unused table slot.
var Empty = [16]byte{} //nolint:gochecknoglobals

// EFI is the EFI System Partition, C12A7328-F81F-11D2-BA4B-00A0C93EC93B.
var EFI = [16]byte{ //nolint:gochecknoglobals
	0x28, 0x73, 0x2a, 0xc1, 0x1f, 0xf8, 0xd2, 0x11,
	0xba, 0x4b, 0x00, 0xa0, 0xc9, 0x3e, 0xc9, 0x3b}

// BIOSBoot is the GRUB BIOS boot partition, 21686148-6449-6E6F-744E-656564454649.
var BIOSBoot = [16]byte{ //nolint:gochecknoglobals
	0x48, 0x61, 0x68, 0x21, 0x49, 0x64, 0x6f, 0x6e,
	0x74, 0x4e, 0x65, 0x65, 0x64, 0x45, 0x46, 0x49}

// LinuxFS is Linux filesystem data, 0FC63DAF-8483-4772-8E79-3D69D8477DE4.
var LinuxFS = [16]byte{ //nolint:gochecknoglobals
	0xaf, 0x3d, 0xc6, 0x0f, 0x83, 0x84, 0x72, 0x47,
	0x8e, 0x79, 0x3d, 0x69, 0xd8, 0x47, 0x7d, 0xe4}

// LinuxSwap is Linux swap, 0657FD6D-A4AB-43C4-84E5-0933C84B4F4F.
var LinuxSwap = [16]byte{ //nolint:gochecknoglobals
	0x6d, 0xfd, 0x57, 0x06, 0xab, 0xa4, 0xc4, 0x43,
	0x84, 0xe5, 0x09, 0x33, 0xc8, 0x4b, 0x4f, 0x4f}

// LinuxLVM is Linux LVM, E6D6D379-F507-44C2-A23C-238F2A3DF928.
var LinuxLVM = [16]byte{ //nolint:gochecknoglobals
	0x79, 0xd3, 0xd6, 0xe6, 0x07, 0xf5, 0xc2, 0x44,
	0xa2, 0x3c, 0x23, 0x8f, 0x2a, 0x3d, 0xf9, 0x28}

// LinuxRAID is Linux RAID, A19D880F-05FC-4D3B-A006-743F0F84911E.
var LinuxRAID = [16]byte{ //nolint:gochecknoglobals
	0x0f, 0x88, 0x9d, 0xa1, 0xfc, 0x05, 0x3b, 0x4d,
	0xa0, 0x06, 0x74, 0x3f, 0x0f, 0x84, 0x91, 0x1e}

// MSBasicData is Microsoft basic data, EBD0A0A2-B9E5-4433-87C0-68B6B72699C7.
// parted gives this type to partitions created with a fat32 fs-type hint.
var MSBasicData = [16]byte{ //nolint:gochecknoglobals
	0xa2, 0xa0, 0xd0, 0xeb, 0xe5, 0xb9, 0x33, 0x44,
	0x87, 0xc0, 0x68, 0xb6, 0xb7, 0x26, 0x99, 0xc7}

// Text is a short display name for each known type.
var Text = map[[16]byte]string{ //nolint:gochecknoglobals
	Empty:       "Empty",
	EFI:         "EFI",
	BIOSBoot:    "BIOS-Boot",
	LinuxFS:     "Linux-FS",
	LinuxSwap:   "Swap",
	LinuxLVM:    "LVM",
	LinuxRAID:   "RAID",
	MSBasicData: "MS-Data",
}
