package mocks

import (
	"fmt"

	"github.com/containerd/containerd/mount"
)

// FakeMounter keeps a target -> source table in memory.
type FakeMounter struct {
	Mounts      map[string]string
	History     []string
	FailUnmount bool
}

func NewFakeMounter() *FakeMounter {
	return &FakeMounter{Mounts: map[string]string{}}
}

func (m *FakeMounter) Mount(mnt mount.Mount, target string) error {
	m.History = append(m.History, fmt.Sprintf("mount %s %s %s", mnt.Source, target, mnt.Type))
	m.Mounts[target] = mnt.Source
	return nil
}

func (m *FakeMounter) Unmount(target string) error {
	m.History = append(m.History, fmt.Sprintf("umount %s", target))
	if m.FailUnmount {
		return fmt.Errorf("target is busy")
	}
	delete(m.Mounts, target)
	return nil
}

func (m *FakeMounter) Mounted(target string) (bool, error) {
	_, ok := m.Mounts[target]
	return ok, nil
}

func (m *FakeMounter) MountPoints(source string) ([]string, error) {
	var points []string
	for target, src := range m.Mounts {
		if src == source {
			points = append(points, target)
		}
	}
	return points, nil
}
