package profile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/util"
	"github.com/cuemby/refit/pkg/log"
	"github.com/cuemby/refit/pkg/types"
)

// Host is the view of the machine the profiler inspects
type Host interface {
	Stat(path string) (os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	Getenv(key string) string
	Getwd() (string, error)
	// SystemdRunning reports whether systemd is the init system
	SystemdRunning() bool
}

// OSHost is the Host backed by the real filesystem and process environment
type OSHost struct{}

func (OSHost) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }
func (OSHost) ReadFile(path string) ([]byte, error)  { return os.ReadFile(path) }
func (OSHost) Getenv(key string) string              { return os.Getenv(key) }
func (OSHost) Getwd() (string, error)                { return os.Getwd() }
func (OSHost) SystemdRunning() bool                  { return util.IsRunningSystemd() }

// Options tune detection
type Options struct {
	// InstallRoot is an explicit override; it wins over every other source
	InstallRoot string
	// ServiceName is used to build conventional install paths
	ServiceName string
	// SystemdUnit is the unit restarted for host-service deployments
	SystemdUnit string
	// ConventionalPaths replaces the default candidate install roots
	ConventionalPaths []string
}

// rule is one row of the detection table
type rule struct {
	name        string
	match       func(p *Profiler, root string) bool
	environment types.Environment
	restart     types.RestartStrategy
}

// Profiler classifies the runtime environment
type Profiler struct {
	host  Host
	opts  Options
	rules []rule
}

// NewProfiler creates a profiler over the given host
func NewProfiler(host Host, opts Options) *Profiler {
	if host == nil {
		host = OSHost{}
	}
	p := &Profiler{host: host, opts: opts}
	p.rules = []rule{
		{"container", (*Profiler).isContainer, types.EnvironmentContainer, types.RestartContainerRestart},
		{"user-namespace", (*Profiler).isRestrictedContainer, types.EnvironmentRestrictedContainer, types.RestartSignalSelf},
		{"service-manager", (*Profiler).isHostService, types.EnvironmentHostService, types.RestartServiceManager},
		{"source-checkout", (*Profiler).isDeveloperCheckout, types.EnvironmentDeveloperCheckout, types.RestartSignalSelf},
	}
	return p
}

// Detect classifies the host. It never fails: ambiguity yields an Unknown
// profile with a best-effort install root.
func (p *Profiler) Detect() types.DeploymentProfile {
	root := p.InstallRoot()

	profile := types.DeploymentProfile{
		Environment:     types.EnvironmentUnknown,
		InstallRoot:     root,
		RestartStrategy: types.RestartManualOnly,
		Reason:          "no rule matched",
	}

	for _, r := range p.rules {
		if r.match(p, root) {
			profile.Environment = r.environment
			profile.RestartStrategy = r.restart
			profile.Reason = r.name
			break
		}
	}

	if profile.RestartStrategy == types.RestartServiceManager {
		profile.ServiceName = p.unitName()
	}

	logger := log.WithComponent("profile")
	logger.Debug().
		Str("environment", string(profile.Environment)).
		Str("install_root", profile.InstallRoot).
		Str("restart", string(profile.RestartStrategy)).
		Str("rule", profile.Reason).
		Msg("Deployment profile detected")

	return profile
}

// InstallRoot resolves the installation root: explicit override, then the
// enclosing git checkout, then conventional paths, then the working directory
func (p *Profiler) InstallRoot() string {
	if p.opts.InstallRoot != "" {
		return filepath.Clean(p.opts.InstallRoot)
	}

	cwd, err := p.host.Getwd()
	if err != nil {
		cwd = "/"
	}

	if root, ok := p.gitRoot(cwd); ok {
		return root
	}

	for _, candidate := range p.conventionalPaths() {
		if info, err := p.host.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}

	return cwd
}

func (p *Profiler) conventionalPaths() []string {
	if len(p.opts.ConventionalPaths) > 0 {
		return p.opts.ConventionalPaths
	}
	name := p.opts.ServiceName
	if name == "" {
		name = "app"
	}
	return []string{
		"/app",
		filepath.Join("/opt", name),
		filepath.Join("/srv", name),
		filepath.Join("/usr/local", name),
	}
}

func (p *Profiler) gitRoot(start string) (string, bool) {
	dir := filepath.Clean(start)
	for {
		if p.exists(filepath.Join(dir, ".git")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func (p *Profiler) isContainer(string) bool {
	if p.exists("/.dockerenv") || p.exists("/run/.containerenv") {
		return true
	}
	if v := p.host.Getenv("container"); v != "" && v != "lxc-libvirt" {
		return true
	}
	data, err := p.host.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	content := string(data)
	for _, marker := range []string{"docker", "kubepods", "containerd", "libpod", "/lxc/"} {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

// isRestrictedContainer detects an unprivileged user namespace: the uid map
// does not cover the full host range starting at root
func (p *Profiler) isRestrictedContainer(string) bool {
	data, err := p.host.ReadFile("/proc/self/uid_map")
	if err != nil {
		return false
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return false
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		if fields[0] == "0" && fields[1] == "0" && fields[2] == "4294967295" {
			return false
		}
	}
	return true
}

func (p *Profiler) isHostService(string) bool {
	if p.host.Getenv("INVOCATION_ID") != "" || p.host.Getenv("NOTIFY_SOCKET") != "" {
		return true
	}
	return p.opts.SystemdUnit != "" && p.host.SystemdRunning()
}

func (p *Profiler) isDeveloperCheckout(root string) bool {
	return p.exists(filepath.Join(root, ".git"))
}

func (p *Profiler) unitName() string {
	if p.opts.SystemdUnit != "" {
		return p.opts.SystemdUnit
	}
	name := p.opts.ServiceName
	if name == "" {
		name = "app"
	}
	return name + ".service"
}

func (p *Profiler) exists(path string) bool {
	_, err := p.host.Stat(path)
	return err == nil
}
