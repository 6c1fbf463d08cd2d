package schema

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openwrt-rk/emmc-install/internal/constants"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/twpayne/go-vfs/v4"
)

// Platform is the board descriptor shipped with the live image.
// e.g. /etc/flippy-openwrt-release
type Platform struct {
	Platform      string `yaml:"platform"`
	SOC           string `yaml:"soc,omitempty"`
	FDTFile       string `yaml:"fdtfile"`
	Family        string `yaml:"family"`
	Bootloader    string `yaml:"bootloader"`
	MainlineUboot string `yaml:"mainline_uboot,omitempty"`
}

// LoadPlatform reads the descriptor and resolves the bootloader paths.
func LoadPlatform(fs vfs.FS, file string) (Platform, error) {
	env, err := internalUtils.ReadEnv(fs, file)
	if err != nil {
		return Platform{}, fmt.Errorf("%w: reading %s: %w", constants.ErrInvalidPlatform, file, err)
	}

	p := Platform{
		Platform:      strings.TrimSpace(env["PLATFORM"]),
		SOC:           strings.TrimSpace(env["SOC"]),
		FDTFile:       strings.TrimSpace(env["FDTFILE"]),
		Family:        strings.TrimSpace(env["FAMILY"]),
		Bootloader:    strings.TrimSpace(env["BOOTLOADER_IMG"]),
		MainlineUboot: strings.TrimSpace(env["MAINLINE_UBOOT"]),
	}
	p.Bootloader = p.ubootPath(p.Bootloader)
	p.MainlineUboot = p.ubootPath(p.MainlineUboot)

	return p, p.Validate()
}

func (p Platform) ubootPath(img string) string {
	if img == "" || filepath.IsAbs(img) {
		return img
	}
	board := p.SOC
	if board == "" {
		board = p.Family
	}
	return filepath.Join(constants.UbootDir, board, img)
}

func (p Platform) Validate() error {
	if p.Platform != constants.ExpectedPlatform {
		return fmt.Errorf("%w: platform %q is not supported, expected %q", constants.ErrInvalidPlatform, p.Platform, constants.ExpectedPlatform)
	}
	for _, f := range [][2]string{{"FDTFILE", p.FDTFile}, {"FAMILY", p.Family}, {"BOOTLOADER_IMG", p.Bootloader}} {
		if f[1] == "" {
			return fmt.Errorf("%w: %s is empty", constants.ErrInvalidPlatform, f[0])
		}
	}
	return nil
}

// Images returns the bootloader images in the order they are written.
func (p Platform) Images() []string {
	return internalUtils.CleanupSlice([]string{p.Bootloader, p.MainlineUboot})
}

// DTBPath is the device tree path relative to the dtb dir.
// input: rk3568-nanopi-r5s.dtb
// output: rockchip/rk3568-nanopi-r5s.dtb
func (p Platform) DTBPath() string {
	if strings.Contains(p.FDTFile, "/") {
		return p.FDTFile
	}
	return p.Platform + "/" + p.FDTFile
}

type Partition struct {
	Number   int    `yaml:"number"`
	Label    string `yaml:"label"`
	FsType   string `yaml:"fstype"`
	StartMiB uint64 `yaml:"start_mib"`
	// SizeMiB 0 means up to the end of the device.
	SizeMiB uint64 `yaml:"size_mib"`
}

// End returns the parted end argument for the partition.
func (p Partition) End() string {
	if p.SizeMiB == 0 {
		return "100%"
	}
	return fmt.Sprintf("%dMiB", p.StartMiB+p.SizeMiB)
}

func (p Partition) Start() string {
	return fmt.Sprintf("%dMiB", p.StartMiB)
}

// PartedType is the filesystem hint given to parted mkpart.
func (p Partition) PartedType() string {
	if p.FsType == constants.BootFsType {
		return "fat32"
	}
	return p.FsType
}

type Layout struct {
	ReservedMiB uint64      `yaml:"reserved_mib"`
	Partitions  []Partition `yaml:"partitions"`
}

// DefaultLayout is the only layout supported: reserved bootloader area, boot, two roots and shared data.
func DefaultLayout() Layout {
	l := Layout{ReservedMiB: constants.ReservedSize}
	start := uint64(constants.ReservedSize)
	for i, p := range []struct {
		label, fs string
		size      uint64
	}{
		{constants.BootLabel, constants.BootFsType, constants.BootSize},
		{constants.RootLabel, constants.RootFsType, constants.RootSize},
		{constants.SpareLabel, constants.RootFsType, constants.RootSize},
		{constants.SharedLabel, constants.RootFsType, 0},
	} {
		l.Partitions = append(l.Partitions, Partition{Number: i + 1, Label: p.label, FsType: p.fs, StartMiB: start, SizeMiB: p.size})
		start += p.size
	}
	return l
}

// UUIDs generated for the btrfs filesystems.
type UUIDs struct {
	Root   string `yaml:"root"`
	Spare  string `yaml:"spare"`
	Shared string `yaml:"shared"`
}
