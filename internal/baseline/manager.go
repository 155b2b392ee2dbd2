package baseline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/pkg/shared/files"
)

var (
	ErrNoLegacyBaseline = errors.New("no legacy baseline found")
	ErrAlreadyMigrated  = errors.New("module baseline already exists, use --force to overwrite")
)

// Manager reads and writes both baseline layouts.
type Manager struct {
	dir        string
	legacyPath string
	modules    map[string]string // path prefix -> module name
	logger     hclog.Logger
	now        func() time.Time
}

func NewManager(cfg *config.Config, logger hclog.Logger) *Manager {
	var modules map[string]string
	if cfg != nil {
		modules = cfg.Baseline.Modules
	}
	return &Manager{
		dir:        config.GetBaselineDir(cfg),
		legacyPath: config.GetLegacyBaselinePath(cfg),
		modules:    modules,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ModuleFor assigns a file to a module: longest configured prefix, then the
// top-level folder, then "root".
func (m *Manager) ModuleFor(filePath string) string {
	p := strings.TrimPrefix(filepath.ToSlash(filePath), "./")

	best, bestLen := "", -1
	for prefix, name := range m.modules {
		prefix = strings.TrimPrefix(filepath.ToSlash(prefix), "./")
		if !strings.HasPrefix(p, prefix) || len(prefix) <= bestLen {
			continue
		}
		best, bestLen = name, len(prefix)
	}
	if best != "" {
		return best
	}
	if idx := strings.Index(p, "/"); idx > 0 {
		return p[:idx]
	}
	return rootModule
}

func moduleFileName(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name) + ".json"
}

func (m *Manager) modulePath(name string) string {
	return filepath.Join(m.dir, moduleFileName(name))
}

// LoadModule returns the stored baseline of a module, or nil when there is none.
func (m *Manager) LoadModule(name string) (*ModuleBaseline, error) {
	var mb ModuleBaseline
	if err := files.LoadJSON(m.modulePath(name), &mb); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load baseline of module %q: %w", name, err)
	}
	return &mb, nil
}

func (m *Manager) saveModule(mb *ModuleBaseline) error {
	return files.SaveJSON(m.modulePath(mb.ModuleName), mb)
}

// ModuleNames lists modules present on disk.
func (m *Manager) ModuleNames() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == metaFile || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// LoadMeta returns _meta.json, or nil when the module layout does not exist.
func (m *Manager) LoadMeta() (*Meta, error) {
	var meta Meta
	if err := files.LoadJSON(filepath.Join(m.dir, metaFile), &meta); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load baseline meta: %w", err)
	}
	return &meta, nil
}

// rebuildMeta recomputes totals from the module files.
func (m *Manager) rebuildMeta(migrated bool) (*Meta, error) {
	previous, err := m.LoadMeta()
	if err != nil {
		return nil, err
	}
	now := m.now()
	meta := &Meta{Version: MetaVersion, CreatedAt: now, UpdatedAt: now, Modules: []string{}}
	if previous != nil {
		meta.CreatedAt = previous.CreatedAt
		meta.MigratedFromLegacy = previous.MigratedFromLegacy
	}
	meta.MigratedFromLegacy = meta.MigratedFromLegacy || migrated

	names, err := m.ModuleNames()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		mb, err := m.LoadModule(name)
		if err != nil {
			return nil, err
		}
		if mb == nil {
			continue
		}
		meta.Modules = append(meta.Modules, mb.ModuleName)
		meta.TotalFindings += len(mb.Findings)
		meta.TotalDebt += mb.DebtCount()
	}
	if err := files.SaveJSON(filepath.Join(m.dir, metaFile), meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// UpdateDebt reconciles a module with the current findings. New fingerprints
// become debt, missing ones are resolved and pruned. Running it twice with the
// same findings reports no new debt the second time.
func (m *Manager) UpdateDebt(module string, current []findings.Finding) (DebtUpdate, error) {
	update := DebtUpdate{Module: module}
	if err := m.updateModule(module, current, &update); err != nil {
		return update, err
	}
	if _, err := m.rebuildMeta(false); err != nil {
		return update, fmt.Errorf("failed to rebuild baseline meta: %w", err)
	}
	return update, nil
}

func (m *Manager) updateModule(module string, current []findings.Finding, update *DebtUpdate) error {
	mb, err := m.LoadModule(module)
	if err != nil {
		return err
	}
	now := m.now()
	if mb == nil {
		mb = &ModuleBaseline{ModuleName: module, CreatedAt: now}
	}

	current = findings.Dedupe(current)
	currentFPs := make(map[string]findings.Finding, len(current))
	for _, f := range current {
		currentFPs[f.Fingerprint()] = f
	}

	tracked := make(map[string]bool, len(mb.DebtItems))
	kept := make([]DebtItem, 0, len(mb.DebtItems))
	for _, item := range mb.DebtItems {
		if _, ok := currentFPs[item.Fingerprint]; !ok {
			update.ResolvedDebt++
			continue
		}
		tracked[item.Fingerprint] = true
		kept = append(kept, item)
	}
	for _, f := range current {
		fp := f.Fingerprint()
		if tracked[fp] {
			continue
		}
		kept = append(kept, debtItemFor(f, now))
		tracked[fp] = true
		update.NewDebt++
	}

	mb.Findings = current
	mb.DebtItems = kept
	mb.UpdatedAt = now
	update.TotalDebt = len(kept)

	if err := m.saveModule(mb); err != nil {
		return fmt.Errorf("failed to save baseline of module %q: %w", module, err)
	}
	m.logger.Debug("module debt updated", "module", module, "new", update.NewDebt, "resolved", update.ResolvedDebt, "total", update.TotalDebt)
	return nil
}

// UpdateAll groups findings by module and updates every module seen now or on
// disk, so modules whose findings all disappeared get their debt resolved.
func (m *Manager) UpdateAll(current []findings.Finding) ([]DebtUpdate, error) {
	grouped := m.GroupByModule(current)
	existing, err := m.ModuleNames()
	if err != nil {
		return nil, err
	}
	for _, name := range existing {
		mb, err := m.LoadModule(name)
		if err != nil {
			return nil, err
		}
		if mb != nil {
			if _, ok := grouped[mb.ModuleName]; !ok {
				grouped[mb.ModuleName] = nil
			}
		}
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	updates := make([]DebtUpdate, 0, len(names))
	for _, name := range names {
		update := DebtUpdate{Module: name}
		if err := m.updateModule(name, grouped[name], &update); err != nil {
			return updates, err
		}
		updates = append(updates, update)
	}
	if _, err := m.rebuildMeta(false); err != nil {
		return updates, fmt.Errorf("failed to rebuild baseline meta: %w", err)
	}
	return updates, nil
}

// GroupByModule splits findings by module.
func (m *Manager) GroupByModule(list []findings.Finding) map[string][]findings.Finding {
	out := make(map[string][]findings.Finding)
	for _, f := range list {
		mod := m.ModuleFor(f.FilePath())
		out[mod] = append(out[mod], f)
	}
	return out
}

// DebtLevel maps a debt age to a report level, "" below a week.
func DebtLevel(ageDays int) string {
	switch {
	case ageDays >= 30:
		return LevelCritical
	case ageDays >= 14:
		return LevelWarning
	case ageDays >= 7:
		return LevelInfo
	default:
		return ""
	}
}

// DebtReport summarizes debt per module. An empty module name reports every module.
func (m *Manager) DebtReport(module string) (DebtReport, error) {
	report := DebtReport{Modules: make(map[string]ModuleDebt), Warnings: []DebtWarning{}}

	names, err := m.ModuleNames()
	if err != nil {
		return report, err
	}
	now := m.now()
	for _, name := range names {
		mb, err := m.LoadModule(name)
		if err != nil {
			return report, err
		}
		if mb == nil || (module != "" && mb.ModuleName != module) {
			continue
		}

		md := ModuleDebt{DebtCount: mb.DebtCount(), DebtItems: mb.DebtItems}
		for _, item := range mb.DebtItems {
			age := int(now.Sub(item.FirstSeen).Hours() / 24)
			if age > md.OldestDebtAgeDays {
				md.OldestDebtAgeDays = age
			}
		}
		report.Modules[mb.ModuleName] = md
		report.TotalDebt += md.DebtCount

		if level := DebtLevel(md.OldestDebtAgeDays); level != "" && md.DebtCount > 0 {
			report.Warnings = append(report.Warnings, DebtWarning{
				Module:  mb.ModuleName,
				Level:   level,
				AgeDays: md.OldestDebtAgeDays,
				Message: fmt.Sprintf("module %s has %d debt item(s), oldest is %d days old", mb.ModuleName, md.DebtCount, md.OldestDebtAgeDays),
			})
		}
	}
	return report, nil
}

// LoadLegacy reads the single-file baseline.
func (m *Manager) LoadLegacy() (*Legacy, error) {
	var l Legacy
	if err := files.LoadJSON(m.legacyPath, &l); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoLegacyBaseline
		}
		return nil, fmt.Errorf("failed to load legacy baseline: %w", err)
	}
	return &l, nil
}

// Migrate converts the legacy baseline into the module layout. Every legacy
// finding becomes debt first seen now.
func (m *Manager) Migrate(force bool) (*Meta, error) {
	legacy, err := m.LoadLegacy()
	if err != nil {
		return nil, err
	}
	meta, err := m.LoadMeta()
	if err != nil {
		return nil, err
	}
	if meta != nil && !force {
		return nil, ErrAlreadyMigrated
	}
	if force {
		names, err := m.ModuleNames()
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if err := os.Remove(filepath.Join(m.dir, name+".json")); err != nil {
				return nil, fmt.Errorf("failed to remove module baseline %q: %w", name, err)
			}
		}
	}

	for name, list := range m.GroupByModule(legacy.AllFindings()) {
		var update DebtUpdate
		if err := m.updateModule(name, list, &update); err != nil {
			return nil, err
		}
	}
	meta, err = m.rebuildMeta(true)
	if err != nil {
		return nil, err
	}
	m.logger.Info("legacy baseline migrated", "modules", len(meta.Modules), "findings", meta.TotalFindings)
	return meta, nil
}

// Status reports the layout on disk.
func (m *Manager) Status() (Status, error) {
	st := Status{Layout: "none"}
	if _, err := os.Stat(m.legacyPath); err == nil {
		st.LegacyPresent = true
		st.Layout = "legacy"
	}
	meta, err := m.LoadMeta()
	if err != nil {
		return st, err
	}
	if meta == nil {
		return st, nil
	}
	st.Layout = "module"
	st.Meta = meta
	for _, name := range meta.Modules {
		mb, err := m.LoadModule(name)
		if err != nil {
			return st, err
		}
		if mb == nil {
			continue
		}
		st.Modules = append(st.Modules, ModuleStatus{Name: name, Findings: len(mb.Findings), Debt: mb.DebtCount()})
	}
	return st, nil
}

// KnownFingerprints collects every baseline fingerprint, from the module
// layout when present, else from the legacy file.
func (m *Manager) KnownFingerprints() (map[string]bool, error) {
	known := make(map[string]bool)
	meta, err := m.LoadMeta()
	if err != nil {
		return nil, err
	}
	if meta != nil {
		names, err := m.ModuleNames()
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			mb, err := m.LoadModule(name)
			if err != nil {
				return nil, err
			}
			if mb == nil {
				continue
			}
			for _, f := range mb.Findings {
				known[f.Fingerprint()] = true
			}
		}
		return known, nil
	}

	legacy, err := m.LoadLegacy()
	if errors.Is(err, ErrNoLegacyBaseline) {
		return known, nil
	}
	if err != nil {
		return nil, err
	}
	for _, f := range legacy.AllFindings() {
		known[f.Fingerprint()] = true
	}
	return known, nil
}

// FilterKnown splits current findings into new ones and ones already in the baseline.
func (m *Manager) FilterKnown(current []findings.Finding) (fresh, known []findings.Finding, err error) {
	fps, err := m.KnownFingerprints()
	if err != nil {
		return nil, nil, err
	}
	for _, f := range current {
		if fps[f.Fingerprint()] {
			known = append(known, f)
		} else {
			fresh = append(fresh, f)
		}
	}
	return fresh, known, nil
}
