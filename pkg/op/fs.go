package op

import (
	"fmt"

	"github.com/openwrt-rk/emmc-install/internal/constants"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
)

// FormatOptions contains format parameters.
type FormatOptions struct {
	Label          string
	FileSystemType string
	UUID           string
}

// BootFormat is the FAT32 boot partition.
func BootFormat() FormatOptions {
	return FormatOptions{Label: constants.BootLabel, FileSystemType: constants.BootFsType}
}

// BtrfsFormat is a single device btrfs with a fixed uuid.
func BtrfsFormat(label, uuid string) FormatOptions {
	return FormatOptions{Label: label, FileSystemType: constants.RootFsType, UUID: uuid}
}

// Format creates the filesystem on devname.
func Format(r internalUtils.Runner, devname string, o FormatOptions) error {
	internalUtils.Log.Info().Str("what", devname).Str("type", o.FileSystemType).Str("label", o.Label).Msg("Formatting")

	var err error
	switch o.FileSystemType {
	case constants.BootFsType:
		_, err = r.Run("mkfs.vfat", "-F", "32", "-n", o.Label, devname)
	case constants.RootFsType:
		if o.UUID == "" {
			return fmt.Errorf("formatting %s: empty uuid", devname)
		}
		_, err = r.Run("mkfs.btrfs", "-f", "-U", o.UUID, "-L", o.Label, "-m", "single", "-d", "single", devname)
	default:
		return fmt.Errorf("unsupported filesystem type: %q", o.FileSystemType)
	}
	if err != nil {
		return fmt.Errorf("formatting %s as %s: %w", devname, o.FileSystemType, err)
	}
	return nil
}
