package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/twpayne/go-vfs/v4"
	"golang.org/x/sys/unix"
)

// ReadEnv parses a KEY='value' file from the given filesystem.
func ReadEnv(fs vfs.FS, file string) (map[string]string, error) {
	f, err := fs.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return godotenv.Parse(f)
}

func CreateIfNotExists(fs vfs.FS, path string) error {
	if _, err := fs.Stat(path); os.IsNotExist(err) {
		return vfs.MkdirAll(fs, path, 0o755)
	}

	return nil
}

// CleanupSlice removes empty and whitespace only values.
func CleanupSlice(slice []string) []string {
	var cleanSlice []string
	for _, item := range slice {
		if strings.Trim(item, " ") == "" {
			continue
		}
		cleanSlice = append(cleanSlice, item)
	}
	return cleanSlice
}

func AppendSlash(path string) string {
	if !strings.HasSuffix(path, "/") {
		return fmt.Sprintf("%s/", path)
	}

	return path
}

// Sync flushes filesystem buffers, dd and mkfs leave a lot in flight.
func Sync() {
	unix.Sync()
}

var partitionedDisk = regexp.MustCompile(`^(mmcblk\d+|nvme\d+n\d+|loop\d+)(p\d+)?$`)

// DiskName returns the disk a partition belongs to.
// input: /dev/mmcblk1p2
// output: mmcblk1
func DiskName(dev string) string {
	name := filepath.Base(dev)
	if m := partitionedDisk.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return strings.TrimRight(name, "0123456789")
}

// PartitionDevice returns the device node of the given partition number.
// input: mmcblk0, 2
// output: /dev/mmcblk0p2
func PartitionDevice(disk string, index int) string {
	name := strings.TrimPrefix(disk, "/dev/")
	if partitionedDisk.MatchString(name) {
		return fmt.Sprintf("/dev/%sp%d", name, index)
	}
	return fmt.Sprintf("/dev/%s%d", name, index)
}
