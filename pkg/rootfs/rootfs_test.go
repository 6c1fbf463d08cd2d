package rootfs_test

import (
	"errors"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/openwrt-rk/emmc-install/internal/constants"
	"github.com/openwrt-rk/emmc-install/internal/mocks"
	"github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/openwrt-rk/emmc-install/pkg/op"
	"github.com/openwrt-rk/emmc-install/pkg/rootfs"
	"github.com/openwrt-rk/emmc-install/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
	"github.com/twpayne/go-vfs/v4/vfst"
)

// vanishingRunner deletes a source dir right before running the copy pipe for real.
type vanishingRunner struct {
	*mocks.FakeRunner
	vanish string
}

func (r vanishingRunner) Pipe(src, dst []string) (string, error) {
	if err := os.RemoveAll(r.vanish); err != nil {
		return "", err
	}
	return utils.Console{}.Pipe(src, dst)
}

const dockerd = `config globals 'globals'
	option data_root '/opt/docker/'
	option log_level 'warn'
`

var _ = Describe("fstab", func() {
	var fs vfs.FS
	var cleanup func()

	BeforeEach(func() {
		var err error
		fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{"/root": &vfst.Dir{Perm: 0o755}})
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	It("Generates root and boot entries only", func() {
		m := rootfs.Fstab("1234")
		Expect(m).To(HaveLen(2))
		Expect(m[0].String()).To(Equal("UUID=1234 / btrfs compress=zstd:6 0 1"))
		Expect(m[1].String()).To(Equal("LABEL=EMMC_BOOT /boot vfat defaults 0 2"))
	})

	It("Writes the fstab with the tmpfs entry commented", func() {
		Expect(rootfs.WriteFstab(fs, "/root", "1234")).To(Succeed())
		b, err := fs.ReadFile("/root/etc/fstab")
		Expect(err).ToNot(HaveOccurred())

		var active []string
		for _, l := range strings.Split(strings.TrimSpace(string(b)), "\n") {
			if !strings.HasPrefix(l, "#") {
				active = append(active, l)
			}
		}
		Expect(active).To(HaveLen(2))
		Expect(string(b)).To(ContainSubstring("#tmpfs /tmp tmpfs defaults,nosuid 0 0\n"))
	})

	It("Writes the mount config", func() {
		Expect(rootfs.WriteUCIFstab(fs, "/root", "1234")).To(Succeed())
		b, err := fs.ReadFile("/root/etc/config/fstab")
		Expect(err).ToNot(HaveOccurred())
		Expect(string(b)).To(ContainSubstring("option uuid '1234'"))
		Expect(string(b)).To(ContainSubstring("option options 'compress=zstd:6'"))
		Expect(string(b)).To(ContainSubstring("option label 'EMMC_BOOT'"))
		Expect(string(b)).To(ContainSubstring("option target '/overlay'"))
	})

	It("Leaves a system without docker alone", func() {
		Expect(rootfs.RewriteDockerd(fs, "/root", "/mnt/mmcblk1p4/docker/")).To(Succeed())
		_, err := fs.Stat("/root/etc/config/dockerd")
		Expect(err).To(HaveOccurred())
	})

	It("Fails when the docker config cannot be read", func() {
		Expect(vfs.MkdirAll(fs, "/root/etc/config/dockerd", 0o755)).To(Succeed())
		Expect(rootfs.RewriteDockerd(fs, "/root", "/mnt/mmcblk1p4/docker/")).ToNot(Succeed())
	})
})

var _ = Describe("Populator", func() {
	var fs vfs.FS
	var cleanup func()
	var runner *mocks.FakeRunner
	var mounter *mocks.FakeMounter
	var populator *rootfs.Populator
	uuids := schema.UUIDs{Root: "1111", Spare: "2222", Shared: "3333"}

	BeforeEach(func() {
		var err error
		fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{
			"/live/bin/sh":                    "",
			"/live/etc/banner":                "openwrt",
			"/live/usr/bin/true":              "",
			"/live/lib64":                     &vfst.Symlink{Target: "lib"},
			"/live/lib/libc.so":               "",
			"/tmp/scratch/etc/config/dockerd": dockerd,
			"/tmp/scratch/opt/docker":         &vfst.Dir{Perm: 0o755},
		})
		Expect(err).ToNot(HaveOccurred())
		runner = &mocks.FakeRunner{}
		mounter = mocks.NewFakeMounter()
		populator = &rootfs.Populator{
			FS:       fs,
			Runner:   runner,
			Mounter:  mounter,
			Scratch:  op.NewScratch(fs, "/tmp/scratch", mounter),
			Source:   "/live",
			Dirs:     constants.DefaultRootDirs(),
			Skeleton: constants.DefaultSkeletonDirs(),
		}
	})

	AfterEach(func() {
		cleanup()
	})

	raw := func(p string) string {
		r, err := fs.RawPath(p)
		Expect(err).ToNot(HaveOccurred())
		return r
	}

	It("Builds the root filesystem", func() {
		Expect(populator.Populate("mmcblk1", uuids)).To(Succeed())
		Expect(mounter.Mounts).To(BeEmpty())
		Expect(mounter.History[0]).To(Equal("mount /dev/mmcblk1p2 /tmp/scratch btrfs"))

		Expect(runner.CmdLines()).To(Equal([]string{
			"mkfs.btrfs -f -U 1111 -L EMMC_ROOTFS1 -m single -d single /dev/mmcblk1p2",
			"btrfs subvolume create " + raw("/tmp/scratch/etc"),
			"tar --help",
			"tar -C " + raw("/live") + " -cf - bin etc lib usr | tar -C " + raw("/tmp/scratch") + " -xpf -",
			"btrfs subvolume snapshot -r " + raw("/tmp/scratch/etc") + " " + raw("/tmp/scratch/.snapshots/etc-000"),
		}))

		for _, d := range constants.DefaultSkeletonDirs() {
			info, err := fs.Stat("/tmp/scratch/" + d)
			Expect(err).ToNot(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		}

		target, err := fs.Readlink("/tmp/scratch/var")
		Expect(err).ToNot(HaveOccurred())
		Expect(target).To(Equal(raw("/tmp")))
		target, err = fs.Readlink("/tmp/scratch/lib64")
		Expect(err).ToNot(HaveOccurred())
		Expect(target).To(Equal("lib"))
		target, err = fs.Readlink("/tmp/scratch/opt/docker")
		Expect(err).ToNot(HaveOccurred())
		Expect(target).To(Equal(raw("/mnt/mmcblk1p4/docker/")))

		for _, d := range []string{"/tmp/scratch/mnt/mmcblk1p3", "/tmp/scratch/mnt/mmcblk1p4"} {
			_, err := fs.Stat(d)
			Expect(err).ToNot(HaveOccurred())
		}

		b, err := fs.ReadFile("/tmp/scratch/etc/config/dockerd")
		Expect(err).ToNot(HaveOccurred())
		Expect(string(b)).To(ContainSubstring("option data_root '/mnt/mmcblk1p4/docker/'\n"))
		Expect(string(b)).To(ContainSubstring("option log_level 'warn'"))

		b, err = fs.ReadFile("/tmp/scratch/etc/fstab")
		Expect(err).ToNot(HaveOccurred())
		Expect(string(b)).To(HavePrefix("UUID=1111 / btrfs compress=zstd:6 0 1\n"))
	})

	It("Stops and keeps the partition mounted for inspection on failure", func() {
		runner.FailOn = []string{"tar -C"}
		err := populator.Populate("mmcblk1", uuids)
		Expect(err).To(MatchError(ContainSubstring("copy live root")))
		Expect(runner.Called("btrfs subvolume snapshot")).To(BeFalse())
		Expect(populator.Scratch.Device()).To(Equal("/dev/mmcblk1p2"))
	})

	It("Keeps extended attributes when tar supports them", func() {
		runner.Output = map[string]string{"tar --help": "  --xattrs                Enable extended attributes support\n  --xattrs-include=MASK\n"}
		Expect(populator.Populate("mmcblk1", uuids)).To(Succeed())
		Expect(runner.CmdLines()).To(ContainElement(
			"tar -C " + raw("/live") + " --xattrs -cf - bin etc lib usr | tar -C " + raw("/tmp/scratch") + " --xattrs --xattrs-include=* -xpf -",
		))
	})

	Context("copying with tar", func() {
		It("Copies the live root", func() {
			populator.Runner = vanishingRunner{FakeRunner: runner}
			Expect(populator.Populate("mmcblk1", uuids)).To(Succeed())
			b, err := fs.ReadFile("/tmp/scratch/etc/banner")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(Equal("openwrt"))
			_, err = fs.Stat("/tmp/scratch/usr/bin/true")
			Expect(err).ToNot(HaveOccurred())
		})

		It("Fails when the reading side of the copy fails", func() {
			populator.Runner = vanishingRunner{FakeRunner: runner, vanish: raw("/live/usr")}
			err := populator.Populate("mmcblk1", uuids)
			Expect(err).To(MatchError(ContainSubstring("copy live root")))

			var cmdErr *utils.CommandError
			Expect(errors.As(err, &cmdErr)).To(BeTrue())
			Expect(cmdErr.Args).To(ContainElement("-cf"))
			Expect(runner.Called("btrfs subvolume snapshot")).To(BeFalse())
		})
	})

	It("Formats the spare partitions", func() {
		Expect(populator.FormatSpare("mmcblk1", uuids)).To(Succeed())
		Expect(runner.CmdLines()).To(Equal([]string{
			"mkfs.btrfs -f -U 2222 -L EMMC_ROOTFS2 -m single -d single /dev/mmcblk1p3",
			"mkfs.btrfs -f -U 3333 -L EMMC_SHARED -m single -d single /dev/mmcblk1p4",
		}))
		Expect(mounter.History).To(BeEmpty())
	})
})
