package i2c

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Default filesystem roots for enumeration. Overridable for tests.
const (
	defaultSysRoot  = "/sys"
	defaultDevRoot  = "/dev"
	defaultFallback = "/dev/i2c-1"
)

// Enumerator lists candidate bus nodes in preference order.
//
// The primary class is the set of i2c-dev nodes the DRM subsystem has
// bound to a display connector (the `ddc` link under each connector in
// sysfs) — these are the buses most likely to reach a monitor. The
// secondary class is every remaining /dev/i2c-* node, probed blind.
// When both classes are empty a single configured fallback node is
// the last resort.
type Enumerator struct {
	// SysRoot is the sysfs mount point. Empty means /sys.
	SysRoot string

	// DevRoot is the device filesystem root. Empty means /dev.
	DevRoot string

	// FallbackPath is the last-resort bus node. Empty means
	// /dev/i2c-1.
	FallbackPath string
}

// Candidates returns the primary and secondary bus node paths, each
// in deterministic order (connector name order for primary, bus
// number order for secondary). A node never appears in both classes.
func (e *Enumerator) Candidates() (primary, secondary []string) {
	sysRoot := e.SysRoot
	if sysRoot == "" {
		sysRoot = defaultSysRoot
	}
	devRoot := e.DevRoot
	if devRoot == "" {
		devRoot = defaultDevRoot
	}

	primary = e.drmBound(sysRoot, devRoot)

	seen := make(map[string]bool, len(primary))
	for _, p := range primary {
		seen[p] = true
	}

	for _, p := range e.devNodes(devRoot) {
		if !seen[p] {
			secondary = append(secondary, p)
		}
	}

	return primary, secondary
}

// Fallback returns the configured last-resort bus node path.
func (e *Enumerator) Fallback() string {
	if e.FallbackPath != "" {
		return e.FallbackPath
	}
	return defaultFallback
}

// drmBound resolves each DRM connector's ddc link to its /dev node.
// Connectors without a ddc link (or whose node is absent) are skipped.
func (e *Enumerator) drmBound(sysRoot, devRoot string) []string {
	links, err := filepath.Glob(filepath.Join(sysRoot, "class", "drm", "card*-*", "ddc"))
	if err != nil {
		return nil
	}
	sort.Strings(links)

	var paths []string
	seen := make(map[string]bool)
	for _, link := range links {
		resolved, err := filepath.EvalSymlinks(link)
		if err != nil {
			continue
		}
		name := filepath.Base(resolved)
		if !strings.HasPrefix(name, "i2c-") {
			continue
		}
		node := filepath.Join(devRoot, name)
		if seen[node] {
			continue
		}
		if _, err := os.Stat(node); err != nil {
			continue
		}
		seen[node] = true
		paths = append(paths, node)
	}
	return paths
}

// devNodes lists every i2c-dev node under devRoot in bus number order.
func (e *Enumerator) devNodes(devRoot string) []string {
	entries, err := os.ReadDir(devRoot)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "i2c-") {
			names = append(names, entry.Name())
		}
	}

	sort.Slice(names, func(i, j int) bool {
		ni, erri := strconv.Atoi(strings.TrimPrefix(names[i], "i2c-"))
		nj, errj := strconv.Atoi(strings.TrimPrefix(names[j], "i2c-"))
		if erri != nil || errj != nil {
			return names[i] < names[j]
		}
		return ni < nj
	})

	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, filepath.Join(devRoot, name))
	}
	return paths
}
