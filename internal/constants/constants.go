package constants

import "errors"

// DefaultRootDirs are the top level directories streamed from the live root into the new rootfs.
// Missing ones are skipped.
func DefaultRootDirs() []string {
	return []string{"bin", "etc", "lib", "opt", "root", "sbin", "usr", "www"}
}

// DefaultSkeletonDirs are created empty on the new rootfs, the running system mounts things there.
func DefaultSkeletonDirs() []string {
	return []string{".reserved", ".snapshots", "boot", "dev", "mnt", "overlay", "proc", "rom", "run", "sys", "tmp"}
}

// RequiredTools must be present in PATH before anything destructive happens.
func RequiredTools() []string {
	return []string{"parted", "partprobe", "dd", "tar", "mkfs.vfat", "mkfs.btrfs", "btrfs"}
}

// RootMountCandidates are inspected in order to find the device the live system runs from.
func RootMountCandidates() []string {
	return []string{"/", "/overlay", "/rom"}
}

var (
	ErrAlreadyMounted    = errors.New("already mounted")
	ErrMissingDependency = errors.New("missing dependency")
	ErrInvalidPlatform   = errors.New("invalid platform descriptor")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrRunningFromEMMC   = errors.New("system is running from emmc")
	ErrUUIDUnavailable   = errors.New("uuid generation unavailable")
	ErrPreviousStep      = errors.New("previous step failed")
)

const (
	OpCheckDeps   = "check-dependencies"
	OpInit        = "init-environment"
	OpPartition   = "partition-device"
	OpCopyBoot    = "copy-boot"
	OpCopyRoot    = "copy-root"
	OpFormatSpare = "format-spare"

	PlatformFile     = "/etc/flippy-openwrt-release"
	ExpectedPlatform = "rockchip"
	UbootDir         = "/lib/u-boot"
	KernelUUIDSource = "/proc/sys/kernel/random/uuid"
	ScratchPrefix    = "emmc-install-"

	BootLabel   = "EMMC_BOOT"
	RootLabel   = "EMMC_ROOTFS1"
	SpareLabel  = "EMMC_ROOTFS2"
	SharedLabel = "EMMC_SHARED"

	RootFsType    = "btrfs"
	BootFsType    = "vfat"
	RootMountOpts = "compress=zstd:6"

	// Sizes in MiB.
	ReservedSize = 16
	BootSize     = 256
	RootSize     = 960

	// Sectors of 512 bytes.
	BootloaderSector = 64
	MainlineSector   = 16384

	EtcSubvolume    = "etc"
	EtcSnapshot     = ".snapshots/etc-000"
	WindowsArtifact = "System Volume Information"
	DockerDir       = "docker"
)
