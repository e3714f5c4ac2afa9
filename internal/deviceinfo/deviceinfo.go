// Package deviceinfo builds the host snapshot the agent reports to the hub.
package deviceinfo

import (
	"context"
	"errors"
	"math"
	"os"
	"runtime"
	"strings"

	"github.com/danmuck/agentctl/internal/platform"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

var ErrUnavailable = errors.New("deviceinfo: value unavailable on this platform")

const gib = 1024 * 1024 * 1024

// CPUSource reports the latest CPU utilization ratio.
type CPUSource interface {
	Current() float64
}

// Options are shared by every generator.
type Options struct {
	CPU          CPUSource
	Elevation    platform.ElevationDetector
	AgentVersion string
	Logger       zerolog.Logger
}

// sources are the host readers behind a snapshot.
type sources struct {
	info   func(ctx context.Context) (*host.InfoStat, error)
	memory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	disk   func(ctx context.Context, path string) (*disk.UsageStat, error)
	users  func(ctx context.Context) ([]host.UserStat, error)
}

func hostSources() sources {
	return sources{
		info:   host.InfoWithContext,
		memory: mem.VirtualMemoryWithContext,
		disk:   disk.UsageWithContext,
		users:  host.UsersWithContext,
	}
}

type base struct {
	sources
	kind     platform.Kind
	opts     Options
	diskRoot string
}

func newBase(kind platform.Kind, root string, opts Options) base {
	return base{
		sources:  hostSources(),
		kind:     kind,
		opts:     opts,
		diskRoot: root,
	}
}

// fill sets the platform-neutral fields and returns the host info for the
// OS description. Missing values are logged and left zero; a snapshot is
// always produced.
func (b base) fill(ctx context.Context, deviceID, orgID string) (platform.Device, *host.InfoStat) {
	d := platform.Device{
		ID:             deviceID,
		OrganizationID: orgID,
		Platform:       b.kind.String(),
		OSArchitecture: runtime.GOARCH,
		ProcessorCount: runtime.NumCPU(),
		AgentVersion:   b.opts.AgentVersion,
	}
	if b.opts.CPU != nil {
		d.CPUUtilization = round2(b.opts.CPU.Current())
	}
	if b.opts.Elevation != nil {
		d.IsAdministrator = b.opts.Elevation.IsElevated()
	}

	info, err := b.info(ctx)
	if err != nil || info == nil {
		b.opts.Logger.Debug().Err(err).Msg("deviceinfo host info unavailable")
		info = &host.InfoStat{}
	}
	d.DeviceName = info.Hostname
	if d.DeviceName == "" {
		d.DeviceName, _ = os.Hostname()
	}

	if vm, err := b.memory(ctx); err == nil && vm != nil && vm.Total > 0 {
		d.TotalMemoryGB = toGB(vm.Total)
		if vm.Available <= vm.Total {
			d.UsedMemoryGB = toGB(vm.Total - vm.Available)
		}
	} else {
		b.opts.Logger.Debug().Err(err).Msg("deviceinfo memory unavailable")
	}

	if du, err := b.disk(ctx, b.diskRoot); err == nil && du != nil && du.Free <= du.Total {
		d.TotalStorageGB = toGB(du.Total)
		d.UsedStorageGB = toGB(du.Total - du.Free)
	} else {
		b.opts.Logger.Debug().Err(err).Str("path", b.diskRoot).Msg("deviceinfo disk unavailable")
	}
	return d, info
}

// sessionUser returns the user on the preferred terminal, else the first
// logged-in user.
func (b base) sessionUser(ctx context.Context, preferred string) string {
	users, err := b.users(ctx)
	if err != nil {
		b.opts.Logger.Debug().Err(err).Msg("deviceinfo users unavailable")
		return ""
	}
	for _, u := range users {
		if preferred != "" && u.Terminal == preferred {
			return u.User
		}
	}
	for _, u := range users {
		if u.User != "" {
			return u.User
		}
	}
	return ""
}

func toGB(bytes uint64) float64 {
	return round2(float64(bytes) / gib)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func describe(prefix string, parts ...string) string {
	var words []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			words = append(words, p)
		}
	}
	if len(words) == 0 {
		return prefix
	}
	return strings.Join(words, " ")
}
