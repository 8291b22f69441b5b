package compat

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuemby/refit/pkg/log"
	"github.com/cuemby/refit/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/mod/modfile"
)

// Verdict classifies a single dependency against a target version
type Verdict int

const (
	Compatible Verdict = iota
	Incompatible
	Unknown
)

// Rule classifies a dependency name for a target version
type Rule func(name, target string) Verdict

// AllCompatible is the default rule
func AllCompatible(string, string) Verdict {
	return Compatible
}

// Config configures a Checker
type Config struct {
	InstallRoot string
	// DependencyManifest is a requirements.txt style list or a go.mod file,
	// relative to InstallRoot
	DependencyManifest string
	// ExtensionsDir holds one sub-directory per local extension module
	ExtensionsDir string
	Rule          Rule
}

// Checker enumerates declared dependencies and local extension modules
type Checker struct {
	cfg    Config
	logger zerolog.Logger
}

// NewChecker creates a compatibility checker
func NewChecker(cfg Config) *Checker {
	if cfg.Rule == nil {
		cfg.Rule = AllCompatible
	}
	return &Checker{
		cfg:    cfg,
		logger: log.WithComponent("compat"),
	}
}

// Check classifies every enumerated name. Unreadable manifests are skipped.
func (c *Checker) Check(ctx context.Context, target string) types.CompatibilityReport {
	report := types.CompatibilityReport{
		TargetVersion: target,
		Compatible:    []string{},
		Incompatible:  []string{},
		Unknown:       []string{},
	}

	seen := make(map[string]bool)
	for _, name := range append(c.dependencies(), c.extensions()...) {
		if ctx.Err() != nil {
			break
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		switch c.cfg.Rule(name, target) {
		case Compatible:
			report.Compatible = append(report.Compatible, name)
		case Incompatible:
			report.Incompatible = append(report.Incompatible, name)
		default:
			report.Unknown = append(report.Unknown, name)
		}
	}

	c.logger.Debug().
		Str("target", target).
		Int("compatible", len(report.Compatible)).
		Int("incompatible", len(report.Incompatible)).
		Int("unknown", len(report.Unknown)).
		Msg("Compatibility check complete")

	return report
}

func (c *Checker) dependencies() []string {
	if c.cfg.DependencyManifest == "" {
		return nil
	}
	path := filepath.Join(c.cfg.InstallRoot, c.cfg.DependencyManifest)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	if filepath.Base(path) == "go.mod" {
		return goModules(path, data)
	}
	return requirements(data)
}

// goModules lists the required module paths of a go.mod file
func goModules(path string, data []byte) []string {
	f, err := modfile.ParseLax(path, data, nil)
	if err != nil {
		return nil
	}
	var names []string
	for _, r := range f.Require {
		names = append(names, r.Mod.Path)
	}
	return names
}

// requirements lists package names of a requirements.txt style manifest
func requirements(data []byte) []string {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		if i := strings.IndexAny(line, "<>=!~;[ @"); i >= 0 {
			line = line[:i]
		}
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}

func (c *Checker) extensions() []string {
	if c.cfg.ExtensionsDir == "" {
		return nil
	}
	entries, err := os.ReadDir(filepath.Join(c.cfg.InstallRoot, c.cfg.ExtensionsDir))
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") && !strings.HasPrefix(e.Name(), "_") {
			names = append(names, c.cfg.ExtensionsDir+"/"+e.Name())
		}
	}
	sort.Strings(names)
	return names
}
