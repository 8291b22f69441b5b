package maintenance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/refit/pkg/fsutil"
	"github.com/cuemby/refit/pkg/log"
	"github.com/cuemby/refit/pkg/metrics"
	"github.com/cuemby/refit/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultAllowList is used when no allow list is configured
var DefaultAllowList = []string{"127.0.0.1", "::1"}

// Options configures a Gate
type Options struct {
	// Title and Message are used when Enable does not supply them
	Title   string
	Message string
	// AllowList seeds the allow list of a gate with no persisted record
	AllowList []string
	// TrustProxy takes the client address from the first X-Forwarded-For hop
	TrustProxy bool
	// BypassPaths are URL path prefixes never gated
	BypassPaths []string
}

// EnableOptions are the arguments of Enable. Zero values keep the current
// record's values.
type EnableOptions struct {
	Message          string
	Title            string
	IPAllowList      []string
	AutoMode         bool
	EstimatedMinutes int
}

// snapshot is the immutable state read by the request path
type snapshot struct {
	cfg   types.MaintenanceConfig
	allow *allowList
}

// Gate is the maintenance flag, IP allow list and request interceptor
type Gate struct {
	path string
	opts Options

	// mu serializes writers; readers use current
	mu      sync.Mutex
	current atomic.Pointer[snapshot]

	now    func() time.Time
	logger zerolog.Logger
}

// NewGate loads the record at path, creating an initial disabled state when
// it does not exist. An unreadable record is logged and replaced by a
// disabled one so the gate can never be stuck on.
func NewGate(path string, opts Options) (*Gate, error) {
	if path == "" {
		return nil, fmt.Errorf("maintenance record path is required")
	}
	if len(opts.AllowList) == 0 {
		opts.AllowList = DefaultAllowList
	}
	if err := ValidateAllowList(opts.AllowList); err != nil {
		return nil, err
	}
	if opts.Title == "" {
		opts.Title = "Under maintenance"
	}
	if opts.Message == "" {
		opts.Message = "The service is being updated and will be back shortly."
	}

	g := &Gate{
		path:   path,
		opts:   opts,
		now:    time.Now,
		logger: log.WithComponent("maintenance"),
	}

	cfg, err := g.read()
	if err != nil {
		g.logger.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable maintenance record")
		cfg = g.initial()
	}
	if err := g.publish(cfg); err != nil {
		g.logger.Warn().Err(err).Msg("Invalid persisted allow list, using defaults")
		cfg.IPAllowList = append([]string(nil), opts.AllowList...)
		if err := g.publish(cfg); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Path returns the location of the persisted record
func (g *Gate) Path() string {
	return g.path
}

// Enable turns the gate on, rewriting the whole record. It returns true when
// the gate was previously off.
func (g *Gate) Enable(opts EnableOptions) (bool, error) {
	if len(opts.IPAllowList) > 0 {
		if err := ValidateAllowList(opts.IPAllowList); err != nil {
			return false, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.current.Load().cfg
	now := g.now().UTC()

	cfg := types.MaintenanceConfig{
		Enabled:     true,
		Title:       firstNonEmpty(opts.Title, prev.Title, g.opts.Title),
		Message:     firstNonEmpty(opts.Message, prev.Message, g.opts.Message),
		IPAllowList: prev.IPAllowList,
		StartedAt:   &now,
		AutoMode:    opts.AutoMode,
	}
	if len(opts.IPAllowList) > 0 {
		cfg.IPAllowList = append([]string(nil), opts.IPAllowList...)
	}
	if prev.Enabled && prev.StartedAt != nil {
		cfg.StartedAt = prev.StartedAt
	}
	if opts.EstimatedMinutes > 0 {
		end := now.Add(time.Duration(opts.EstimatedMinutes) * time.Minute)
		cfg.EstimatedEnd = &end
	}

	if err := g.commit(cfg); err != nil {
		return false, err
	}

	g.logger.Info().
		Bool("auto", cfg.AutoMode).
		Strs("allow", cfg.IPAllowList).
		Msg("Maintenance mode enabled")
	return !prev.Enabled, nil
}

// Disable turns the gate off. It returns true when the gate was on.
func (g *Gate) Disable() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.current.Load().cfg
	cfg := prev
	cfg.Enabled = false
	cfg.StartedAt = nil
	cfg.EstimatedEnd = nil
	cfg.AutoMode = false

	if err := g.commit(cfg); err != nil {
		return false, err
	}

	if prev.Enabled {
		g.logger.Info().Msg("Maintenance mode disabled")
	}
	return prev.Enabled, nil
}

// IsActive reports whether the gate is on
func (g *Gate) IsActive() bool {
	return g.current.Load().cfg.Enabled
}

// ShouldGate reports whether a request from clientIP gets the degraded
// response. It never blocks on writers.
func (g *Gate) ShouldGate(clientIP string) bool {
	s := g.current.Load()
	if !s.cfg.Enabled {
		return false
	}
	return !s.allow.contains(clientIP)
}

// Config returns a copy of the current record
func (g *Gate) Config() types.MaintenanceConfig {
	cfg := g.current.Load().cfg
	cfg.IPAllowList = append([]string(nil), cfg.IPAllowList...)
	return cfg
}

// Reload re-reads the persisted record, picking up changes made by another
// process
func (g *Gate) Reload() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cfg, err := g.read()
	if err != nil {
		return err
	}
	return g.publish(cfg)
}

// commit persists cfg and then publishes it. Callers hold mu.
func (g *Gate) commit(cfg types.MaintenanceConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode maintenance record: %w", err)
	}
	if err := fsutil.WriteFileAtomic(g.path, data, 0644); err != nil {
		return fmt.Errorf("failed to persist maintenance record: %w", err)
	}
	return g.publish(cfg)
}

func (g *Gate) publish(cfg types.MaintenanceConfig) error {
	allow, err := parseAllowList(cfg.IPAllowList)
	if err != nil {
		return err
	}
	g.current.Store(&snapshot{cfg: cfg, allow: allow})

	if cfg.Enabled {
		metrics.MaintenanceEnabled.Set(1)
	} else {
		metrics.MaintenanceEnabled.Set(0)
	}
	return nil
}

func (g *Gate) read() (types.MaintenanceConfig, error) {
	data, err := os.ReadFile(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		return g.initial(), nil
	}
	if err != nil {
		return types.MaintenanceConfig{}, fmt.Errorf("failed to read maintenance record: %w", err)
	}

	var cfg types.MaintenanceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return types.MaintenanceConfig{}, fmt.Errorf("failed to parse maintenance record: %w", err)
	}
	if !cfg.Enabled {
		cfg.StartedAt = nil
		cfg.EstimatedEnd = nil
	}
	if len(cfg.IPAllowList) == 0 {
		cfg.IPAllowList = append([]string(nil), g.opts.AllowList...)
	}
	return cfg, nil
}

func (g *Gate) initial() types.MaintenanceConfig {
	return types.MaintenanceConfig{
		Title:       g.opts.Title,
		Message:     g.opts.Message,
		IPAllowList: append([]string(nil), g.opts.AllowList...),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
