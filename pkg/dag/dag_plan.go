package dag

import (
	cnst "github.com/openwrt-rk/emmc-install/internal/constants"
	"github.com/openwrt-rk/emmc-install/pkg/state"
	"github.com/spectrocloud-labs/herd"
)

// RegisterPlan registers the read only steps, used to show what an install would do.
func RegisterPlan(s *state.State, g *herd.Graph) error {
	err := s.LogIfErrorAndReturn(s.CheckDependenciesDagStep(g), "check dependencies")
	if err != nil {
		return err
	}
	return s.LogIfErrorAndReturn(s.DiscoverDagStep(g, cnst.OpCheckDeps), "discover")
}
