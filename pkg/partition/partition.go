// Package partition lays out the eMMC: wipe, msdos table, four primaries and the bootloader.
package partition

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/openwrt-rk/emmc-install/internal/constants"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/openwrt-rk/emmc-install/pkg/op"
	"github.com/openwrt-rk/emmc-install/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
)

type Manager struct {
	FS         vfs.FS
	Runner     internalUtils.Runner
	Mounter    op.Mounter
	Layout     schema.Layout
	Partitions func(disk string) ([]string, error)
	// WaitAttempts bounds the wait for the kernel to expose the new partition nodes.
	WaitAttempts uint
	WaitDelay    time.Duration
}

// Apply destroys whatever is on disk and leaves it with the layout and bootloader written.
func (m *Manager) Apply(disk string, p schema.Platform) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"delete partitions", func() error { return m.DeletePartitions(disk) }},
		{"wipe bootloader area", func() error { return m.WipeReserved(disk) }},
		{"create partitions", func() error { return m.Create(disk) }},
		{"write bootloader", func() error { return m.WriteBootloader(disk, p) }},
		{"wait partitions", func() error { return m.WaitForPartitions(disk) }},
	}
	for _, s := range steps {
		internalUtils.Log.Info().Str("disk", disk).Msg(s.name)
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s on %s: %w", s.name, disk, err)
		}
	}
	return nil
}

// DeletePartitions unmounts and removes every existing partition.
func (m *Manager) DeletePartitions(disk string) error {
	parts, err := m.Partitions(disk)
	if err != nil {
		return err
	}
	dev := "/dev/" + disk
	for _, part := range parts {
		n, err := partitionNumber(disk, part)
		if err != nil {
			return err
		}
		if err := op.EnsureUnmounted(m.Mounter, "/dev/"+part); err != nil {
			return err
		}
		if _, err := m.Runner.Run("parted", "-s", dev, "rm", strconv.Itoa(n)); err != nil {
			return err
		}
	}
	return nil
}

// WipeReserved zeroes the area in front of the first partition, old table included.
func (m *Manager) WipeReserved(disk string) error {
	_, err := m.Runner.Run("dd", "if=/dev/zero", "of=/dev/"+disk, "bs=1M", fmt.Sprintf("count=%d", m.Layout.ReservedMiB), "conv=fsync")
	return err
}

func (m *Manager) Create(disk string) error {
	dev := "/dev/" + disk
	if _, err := m.Runner.Run("parted", "-s", dev, "mklabel", "msdos"); err != nil {
		return err
	}
	for _, p := range m.Layout.Partitions {
		if _, err := m.Runner.Run("parted", "-s", dev, "mkpart", "primary", p.PartedType(), p.Start(), p.End()); err != nil {
			return err
		}
	}
	return nil
}

// WriteBootloader writes the platform bootloader and, when set, the mainline u-boot after it.
func (m *Manager) WriteBootloader(disk string, p schema.Platform) error {
	seeks := []int{constants.BootloaderSector, constants.MainlineSector}
	for i, img := range []string{p.Bootloader, p.MainlineUboot} {
		if img == "" {
			continue
		}
		internalUtils.Log.Debug().Str("what", img).Int("sector", seeks[i]).Msg("Writing bootloader")
		if _, err := m.Runner.Run("dd", "if="+img, "of=/dev/"+disk, "conv=fsync,notrunc", "bs=512", fmt.Sprintf("seek=%d", seeks[i])); err != nil {
			return err
		}
	}
	internalUtils.Sync()
	return nil
}

// WaitForPartitions re-reads the table and waits for udev to create the nodes.
func (m *Manager) WaitForPartitions(disk string) error {
	if _, err := m.Runner.Run("partprobe", "/dev/"+disk); err != nil {
		return err
	}
	attempts := m.WaitAttempts
	if attempts == 0 {
		attempts = 10
	}
	return retry.Do(
		func() error {
			for _, p := range m.Layout.Partitions {
				if _, err := m.FS.Stat(internalUtils.PartitionDevice(disk, p.Number)); err != nil {
					return err
				}
			}
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(m.WaitDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// input: mmcblk0, mmcblk0p3
// output: 3
func partitionNumber(disk, part string) (int, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(part, disk), "p")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unexpected partition name %q on %s", part, disk)
	}
	return n, nil
}
