package bootfs_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/openwrt-rk/emmc-install/internal/mocks"
	"github.com/openwrt-rk/emmc-install/pkg/bootfs"
	"github.com/openwrt-rk/emmc-install/pkg/op"
	"github.com/twpayne/go-vfs/v4"
	"github.com/twpayne/go-vfs/v4/vfst"
)

const armbianEnv = `verbosity=7
fdtfile=rockchip/rk3568-old.dtb
rootdev=/dev/mmcblk0p2
rootfstype=ext4
extraargs=usbcore.autosuspend=-1
`

const uEnv = `LINUX=/zImage
INITRD=/uInitrd
FDT=/dtb/rockchip/rk3568-old.dtb
APPEND=root=/dev/mmcblk0p2 rootfstype=ext4 console=ttyS2,1500000 net.ifnames=0
`

const extlinux = `label OpenWrt
    kernel /zImage
    initrd /uInitrd
    fdt /dtb/rockchip/rk3568-old.dtb
    append root=LABEL=ROOTFS rootflags=compress=zstd console=ttyS2,1500000
`

var _ = Describe("bootfs", func() {
	var fs vfs.FS
	var cleanup func()
	params := bootfs.Params{
		RootUUID: "1234",
		FsType:   "btrfs",
		Flags:    "compress=zstd:6",
		DTB:      "rockchip/rk3568-nanopi-r5s.dtb",
	}

	AfterEach(func() {
		cleanup()
	})

	Context("RewriteConfigs", func() {
		BeforeEach(func() {
			var err error
			fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{
				"/boot/armbianEnv.txt":          armbianEnv,
				"/boot/uEnv.txt":                uEnv,
				"/boot/extlinux/extlinux.conf":  extlinux,
				"/boot/dtb/rockchip/rk3568.dtb": "",
			})
			Expect(err).ToNot(HaveOccurred())
		})

		It("Rewrites every config present", func() {
			done, err := bootfs.RewriteConfigs(fs, "/boot", params)
			Expect(err).ToNot(HaveOccurred())
			Expect(done).To(HaveLen(3))
		})

		It("Updates armbianEnv.txt keys and adds the missing ones", func() {
			_, err := bootfs.RewriteConfigs(fs, "/boot", params)
			Expect(err).ToNot(HaveOccurred())
			b, err := fs.ReadFile("/boot/armbianEnv.txt")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(Equal(`verbosity=7
fdtfile=rockchip/rk3568-nanopi-r5s.dtb
rootdev=UUID=1234
rootfstype=btrfs
extraargs=usbcore.autosuspend=-1
rootflags=compress=zstd:6
`))
		})

		It("Updates the uEnv.txt kernel arguments and dtb", func() {
			_, err := bootfs.RewriteConfigs(fs, "/boot", params)
			Expect(err).ToNot(HaveOccurred())
			b, err := fs.ReadFile("/boot/uEnv.txt")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(ContainSubstring("FDT=/dtb/rockchip/rk3568-nanopi-r5s.dtb\n"))
			Expect(string(b)).To(ContainSubstring("APPEND=root=UUID=1234 rootfstype=btrfs console=ttyS2,1500000 net.ifnames=0 rootflags=compress=zstd:6\n"))
			Expect(string(b)).To(ContainSubstring("LINUX=/zImage\n"))
		})

		It("Updates extlinux.conf", func() {
			_, err := bootfs.RewriteConfigs(fs, "/boot", params)
			Expect(err).ToNot(HaveOccurred())
			b, err := fs.ReadFile("/boot/extlinux/extlinux.conf")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(ContainSubstring("    fdt /dtb/rockchip/rk3568-nanopi-r5s.dtb\n"))
			Expect(string(b)).To(ContainSubstring("    append root=UUID=1234 rootflags=compress=zstd:6 console=ttyS2,1500000 rootfstype=btrfs\n"))
		})
	})

	Context("Populate", func() {
		var runner *mocks.FakeRunner
		var mounter *mocks.FakeMounter
		var populator *bootfs.Populator

		BeforeEach(func() {
			var err error
			fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{
				"/boot/Image":                          "kernel",
				"/tmp/scratch":                         &vfst.Dir{Perm: 0o755},
				"/boot/boot.scr":                       "sd script",
				"/boot/uEnv.txt":                       uEnv,
				"/boot/boot-emmc.scr":                  "emmc script",
				"/boot/System Volume Information/guid": "x",
			})
			Expect(err).ToNot(HaveOccurred())
			runner = &mocks.FakeRunner{}
			mounter = mocks.NewFakeMounter()
			populator = &bootfs.Populator{
				FS:      fs,
				Runner:  runner,
				Mounter: mounter,
				Scratch: op.NewScratch(fs, "/tmp/scratch", mounter),
				Source:  "/boot",
			}
		})

		It("Formats, copies and leaves the scratch dir unmounted", func() {
			Expect(populator.Populate("/dev/mmcblk1p1", params)).To(Succeed())
			Expect(runner.CmdLines()).To(Equal([]string{"mkfs.vfat -F 32 -n EMMC_BOOT /dev/mmcblk1p1"}))
			Expect(mounter.Mounts).To(BeEmpty())
			Expect(mounter.History).To(Equal([]string{
				"mount /dev/mmcblk1p1 /tmp/scratch vfat",
				"umount /tmp/scratch",
			}))

			b, err := fs.ReadFile("/tmp/scratch/Image")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(Equal("kernel"))

			b, err = fs.ReadFile("/tmp/scratch/boot.scr")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(Equal("emmc script"))
			_, err = fs.Stat("/tmp/scratch/boot-emmc.scr")
			Expect(err).To(HaveOccurred())

			_, err = fs.Stat("/tmp/scratch/System Volume Information")
			Expect(err).To(HaveOccurred())

			b, err = fs.ReadFile("/tmp/scratch/uEnv.txt")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(ContainSubstring("root=UUID=1234"))

			b, err = fs.ReadFile("/boot/uEnv.txt")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(Equal(uEnv))
		})

		It("Does not mount when format fails", func() {
			runner.FailOn = []string{"mkfs.vfat"}
			Expect(populator.Populate("/dev/mmcblk1p1", params)).ToNot(Succeed())
			Expect(mounter.History).To(BeEmpty())
		})
	})
})
