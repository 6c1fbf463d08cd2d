package device

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/openwrt-rk/emmc-install/internal/constants"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/openwrt-rk/emmc-install/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
)

// UUIDSource produces a textual uuid.
type UUIDSource func() (string, error)

// KernelUUID reads the kernel random uuid source.
func KernelUUID(fs vfs.FS) UUIDSource {
	return func() (string, error) {
		b, err := fs.ReadFile(constants.KernelUUIDSource)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// LibraryUUID is the user space generator.
func LibraryUUID() (string, error) {
	u, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// DefaultUUIDSources tries the kernel first.
func DefaultUUIDSources(fs vfs.FS) []UUIDSource {
	return []UUIDSource{KernelUUID(fs), LibraryUUID}
}

// NewUUID returns the first valid uuid given by the sources.
func NewUUID(sources ...UUIDSource) (string, error) {
	var errs error
	for _, src := range sources {
		s, err := src()
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		u, err := uuid.FromString(strings.TrimSpace(s))
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if u == uuid.Nil {
			errs = multierror.Append(errs, fmt.Errorf("nil uuid"))
			continue
		}
		return u.String(), nil
	}
	if errs == nil {
		errs = fmt.Errorf("no source configured")
	}
	return "", fmt.Errorf("%w: %w", constants.ErrUUIDUnavailable, errs)
}

// NewUUIDs generates the uuids of the three btrfs filesystems.
func NewUUIDs(sources ...UUIDSource) (schema.UUIDs, error) {
	var ids []string
	for range 3 {
		id, err := NewUUID(sources...)
		if err != nil {
			return schema.UUIDs{}, err
		}
		ids = append(ids, id)
	}
	u := schema.UUIDs{Root: ids[0], Spare: ids[1], Shared: ids[2]}
	internalUtils.Log.Debug().Str("root", u.Root).Str("spare", u.Spare).Str("shared", u.Shared).Msg("Generated uuids")
	return u, nil
}
