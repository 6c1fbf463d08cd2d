package dag

import (
	cnst "github.com/openwrt-rk/emmc-install/internal/constants"
	"github.com/openwrt-rk/emmc-install/pkg/state"
	"github.com/spectrocloud-labs/herd"
)

// RegisterInstall registers the install pipeline. It is a straight line:
// check -> init -> partition -> boot copy -> root copy -> spare format
// Every step depends on the previous one, a failure stops everything after it.
func RegisterInstall(s *state.State, g *herd.Graph) error {
	var err error

	if err = s.LogIfErrorAndReturn(s.CheckDependenciesDagStep(g), "check dependencies"); err != nil {
		return err
	}
	if err = s.LogIfErrorAndReturn(s.InitDagStep(g, cnst.OpCheckDeps), "init"); err != nil {
		return err
	}
	if err = s.LogIfErrorAndReturn(s.PartitionDagStep(g, cnst.OpInit), "partition"); err != nil {
		return err
	}
	if err = s.LogIfErrorAndReturn(s.CopyBootDagStep(g, cnst.OpPartition), "boot copy"); err != nil {
		return err
	}
	if err = s.LogIfErrorAndReturn(s.CopyRootDagStep(g, cnst.OpCopyBoot), "root copy"); err != nil {
		return err
	}
	return s.LogIfErrorAndReturn(s.FormatSpareDagStep(g, cnst.OpCopyRoot), "spare format")
}
