// Package diagnostics aggregates live state from the load pipeline into
// point-in-time health reports. Reporting is pure aggregation with no side
// effects and is callable at any moment during or after orchestration.
package diagnostics

import (
	"sort"
	"time"

	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/registry"
)

// SlowModule identifies a module whose load took longer than the configured
// threshold.
type SlowModule struct {
	ID         string `json:"id"`
	DurationMs int64  `json:"duration_ms"`
}

// RegistryEntry is the diagnostic view of one installed registry slot.
type RegistryEntry struct {
	ID       string `json:"id"`
	Fallback bool   `json:"fallback"`
}

// HealthReport is a derived, read-only snapshot of the whole load process.
type HealthReport struct {
	RunID       string `json:"run_id"`
	GeneratedAt string `json:"generated_at"`
	ElapsedMs   int64  `json:"elapsed_ms"`

	CurrentPhase string `json:"current_phase"`
	PhaseIndex   int    `json:"phase_index"`
	PhaseCount   int    `json:"phase_count"`
	RecoveryMode bool   `json:"recovery_mode"`

	Counts      map[string]int  `json:"counts"`
	Loaded      []string        `json:"loaded"`
	Failed      []string        `json:"failed"`
	Fallback    []string        `json:"fallback"`
	InFlight    []string        `json:"in_flight"`
	SlowModules []SlowModule    `json:"slow_modules"`
	Registry    []RegistryEntry `json:"registry"`
	Unresolved  []string        `json:"unresolved,omitempty"`
}

// PhaseInfo describes where the orchestrator currently is in its sequence.
type PhaseInfo struct {
	Name  string
	Index int
	Count int
}

// Reporter builds health reports from injected views of the live components.
// Every field is a read-only accessor; the reporter itself holds no state
// beyond identity and timing.
type Reporter struct {
	RunID         string
	StartedAt     time.Time
	SlowThreshold time.Duration

	Descriptors  func() []*module.Descriptor
	Registry     *registry.Registry
	CurrentPhase func() PhaseInfo
	Unresolved   func() []string
	InRecovery   func() bool
}

// Report assembles a snapshot of the current state of all module
// descriptors, the registry, and the phase sequence.
func (r *Reporter) Report() *HealthReport {
	now := time.Now()
	report := &HealthReport{
		RunID:       r.RunID,
		GeneratedAt: now.UTC().Format(time.RFC3339Nano),
		ElapsedMs:   now.Sub(r.StartedAt).Milliseconds(),
		Counts:      make(map[string]int),
	}

	if r.CurrentPhase != nil {
		info := r.CurrentPhase()
		report.CurrentPhase = info.Name
		report.PhaseIndex = info.Index
		report.PhaseCount = info.Count
	}
	if r.InRecovery != nil {
		report.RecoveryMode = r.InRecovery()
	}
	if r.Unresolved != nil {
		report.Unresolved = r.Unresolved()
	}

	if r.Descriptors != nil {
		for _, desc := range r.Descriptors() {
			state := desc.State()
			report.Counts[state.String()]++
			switch state {
			case module.StateLoaded:
				report.Loaded = append(report.Loaded, desc.ID)
			case module.StateFailed:
				report.Failed = append(report.Failed, desc.ID)
			case module.StateFallback:
				report.Fallback = append(report.Fallback, desc.ID)
			case module.StatePending, module.StateLoading:
				report.InFlight = append(report.InFlight, desc.ID)
			}
			if r.SlowThreshold > 0 && desc.LoadDuration() > r.SlowThreshold {
				report.SlowModules = append(report.SlowModules, SlowModule{
					ID:         desc.ID,
					DurationMs: desc.LoadDuration().Milliseconds(),
				})
			}
		}
		sort.Strings(report.Loaded)
		sort.Strings(report.Failed)
		sort.Strings(report.Fallback)
		sort.Strings(report.InFlight)
		sort.Slice(report.SlowModules, func(i, j int) bool {
			return report.SlowModules[i].ID < report.SlowModules[j].ID
		})
	}

	if r.Registry != nil {
		for id, entry := range r.Registry.Snapshot() {
			report.Registry = append(report.Registry, RegistryEntry{ID: id, Fallback: entry.Fallback})
		}
		sort.Slice(report.Registry, func(i, j int) bool {
			return report.Registry[i].ID < report.Registry[j].ID
		})
	}

	return report
}
