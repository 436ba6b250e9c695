package fleet

import (
	"context"

	"github.com/displaybus/monitord/internal/ddc"
	"github.com/displaybus/monitord/internal/display"
	"github.com/displaybus/monitord/internal/i2c"
)

// DisplayEnumerator lists the connected external displays.
// Implemented by *display.Enumerator.
type DisplayEnumerator interface {
	Displays() []display.Identity
}

// BusEnumerator lists candidate bus node paths.
// Implemented by *i2c.Enumerator.
type BusEnumerator interface {
	Candidates() (primary, secondary []string)
	Fallback() string
}

// HandleOpener opens one bus node. i2c.Open in production; faked in
// tests.
type HandleOpener func(path string) (i2c.Handle, error)

// Pairing is one discovery result: a display identity bound to a
// controller over some bus handle.
type Pairing struct {
	Identity   display.Identity
	Controller BusController

	// WriteOnly marks a pairing adopted without a successful probe.
	WriteOnly bool

	// SharedBus marks a controller also owned by an earlier pairing.
	SharedBus bool
}

// Discoverer pairs bus handles to displays by live probing.
//
// Bus handles carry no identity correlated with a display, so probing
// is the only correlation signal available. The greedy first-probe-
// wins matching is a heuristic and deliberately stays one; with two
// identical monitors the pairing can swap between runs.
type Discoverer struct {
	displays DisplayEnumerator
	buses    BusEnumerator
	timing   ddc.TimingConfig
	open     HandleOpener
	logger   Logger
}

// DiscovererOptions configures a Discoverer.
type DiscovererOptions struct {
	Displays DisplayEnumerator
	Buses    BusEnumerator
	Timing   ddc.TimingConfig

	// Open defaults to i2c.Open.
	Open HandleOpener

	Logger Logger
}

// NewDiscoverer creates a discoverer.
func NewDiscoverer(opts DiscovererOptions) *Discoverer {
	open := opts.Open
	if open == nil {
		open = func(path string) (i2c.Handle, error) { return i2c.Open(path) }
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Discoverer{
		displays: opts.Displays,
		buses:    opts.Buses,
		timing:   opts.Timing,
		open:     open,
		logger:   logger,
	}
}

// candidate is one opened bus node during a discovery pass.
type candidate struct {
	path string
	ctrl *ddc.Controller
	used bool
}

// Discover enumerates displays and bus nodes and computes a pairing.
//
// For each display in enumeration order, unused bus nodes are probed
// in order (a Brightness read) and the first responder is adopted.
// Displays left unmatched get the next unused node — or the first
// node again — without a probe, in write-only mode: every display
// gets some handle whenever at least one exists, trading read
// accuracy for write availability. Zero displays or zero usable nodes
// yields an empty result; that is a normal steady state, not an
// error.
func (d *Discoverer) Discover(ctx context.Context) []Pairing {
	displays := d.displays.Displays()
	if len(displays) == 0 {
		d.logger.Info("discovery found no external displays")
		return nil
	}

	candidates := d.openCandidates()
	defer closeUnused(candidates)

	pairings := make([]Pairing, 0, len(displays))
	for _, identity := range displays {
		if pairing, ok := d.probePair(ctx, identity, candidates); ok {
			pairings = append(pairings, pairing)
			continue
		}
		if pairing, ok := d.fallbackPair(identity, candidates); ok {
			pairings = append(pairings, pairing)
			continue
		}
		// No handle available at all: the display is dropped.
		d.logger.Warn("no bus handle available, dropping display",
			"display", identity.String())
	}

	d.logger.Info("discovery complete",
		"displays", len(displays), "buses", len(candidates), "paired", len(pairings))
	return pairings
}

// openCandidates opens the candidate bus nodes, one class at a time:
// the connector-bound primary class, then the blind secondary class
// only when the primary yields no usable node, then the single global
// fallback. Mixing classes is deliberately avoided so a blind
// secondary node can never shadow a probed primary one.
func (d *Discoverer) openCandidates() []*candidate {
	primary, secondary := d.buses.Candidates()

	if candidates := d.openAll(primary); len(candidates) > 0 {
		return candidates
	}
	if candidates := d.openAll(secondary); len(candidates) > 0 {
		d.logger.Info("no usable primary bus nodes, using secondary class",
			"nodes", len(candidates))
		return candidates
	}

	fallback := d.buses.Fallback()
	d.logger.Info("no bus nodes enumerated, trying fallback", "path", fallback)
	return d.openAll([]string{fallback})
}

// openAll opens every candidate path, skipping nodes that fail.
func (d *Discoverer) openAll(paths []string) []*candidate {
	candidates := make([]*candidate, 0, len(paths))
	for _, path := range paths {
		handle, err := d.open(path)
		if err != nil {
			d.logger.Debug("bus node unavailable", "path", path, "error", err)
			continue
		}
		ctrl := ddc.NewController(handle, d.timing)
		candidates = append(candidates, &candidate{path: path, ctrl: ctrl})
	}
	return candidates
}

// probePair adopts the first unused candidate whose Brightness probe
// succeeds.
func (d *Discoverer) probePair(ctx context.Context, identity display.Identity, candidates []*candidate) (Pairing, bool) {
	for _, c := range candidates {
		if c.used {
			continue
		}
		if _, err := c.ctrl.Read(ctx, ddc.Brightness); err != nil {
			d.logger.Debug("probe failed",
				"display", identity.String(), "bus", c.path, "error", err)
			continue
		}
		c.used = true
		d.logger.Info("paired display to bus",
			"display", identity.String(), "bus", c.path)
		return Pairing{Identity: identity, Controller: c.ctrl}, true
	}
	return Pairing{}, false
}

// fallbackPair assigns the next unused candidate, or reuses the first
// one, without requiring a probe.
func (d *Discoverer) fallbackPair(identity display.Identity, candidates []*candidate) (Pairing, bool) {
	for _, c := range candidates {
		if c.used {
			continue
		}
		c.used = true
		d.logger.Info("paired display to bus without probe (write-only)",
			"display", identity.String(), "bus", c.path)
		return Pairing{Identity: identity, Controller: c.ctrl, WriteOnly: true}, true
	}
	if len(candidates) > 0 {
		c := candidates[0]
		d.logger.Info("sharing bus for unmatched display (write-only)",
			"display", identity.String(), "bus", c.path)
		return Pairing{Identity: identity, Controller: c.ctrl, WriteOnly: true, SharedBus: true}, true
	}
	return Pairing{}, false
}

// closeUnused releases candidates no pairing adopted.
func closeUnused(candidates []*candidate) {
	for _, c := range candidates {
		if !c.used {
			//nolint:errcheck // Best-effort release of an unpaired node
			c.ctrl.Close()
		}
	}
}
