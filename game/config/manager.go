package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/wricardo/uno-server/game/engine"
	"github.com/wricardo/uno-server/game/service"
)

var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrInvalidPreset  = errors.New("invalid preset")
)

// DefaultPresetID names the preset used when a session asks for none.
const DefaultPresetID = "classic"

// KnownOptions are the advisory house-rule flags a preset may carry. The
// server records them for clients; it does not enforce them.
var KnownOptions = []string{
	"stack_draws",
	"jump_in",
	"seven_zero",
	"draw_to_match",
	"force_play",
	"no_bluffing",
}

// Manager handles house-rule preset loading and caching
type Manager struct {
	presetDir     string
	defaultPreset *service.Preset
	presets       map[string]*service.Preset
	mu            sync.RWMutex
}

var _ service.PresetManager = (*Manager)(nil)

// NewManager creates a preset manager reading presetDir. An empty presetDir
// serves only the built-in classic preset.
func NewManager(presetDir string) (*Manager, error) {
	if presetDir != "" {
		info, err := os.Stat(presetDir)
		if err != nil {
			return nil, fmt.Errorf("preset directory does not exist: %s", presetDir)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("preset path is not a directory: %s", presetDir)
		}
	}

	m := &Manager{
		presetDir: presetDir,
		presets:   make(map[string]*service.Preset),
	}
	m.defaultPreset = m.resolveDefault()
	return m, nil
}

// LoadPreset loads a preset by ID (its file name without .json)
func (m *Manager) LoadPreset(name string) (*service.Preset, error) {
	id := strings.TrimSuffix(strings.TrimSpace(name), ".json")
	if id == "" || id != filepath.Base(id) {
		return nil, fmt.Errorf("%w: %q", ErrPresetNotFound, name)
	}

	m.mu.RLock()
	if preset, exists := m.presets[id]; exists {
		m.mu.RUnlock()
		return preset, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if preset, exists := m.presets[id]; exists {
		return preset, nil
	}

	preset, err := m.readPreset(id)
	if err != nil {
		if errors.Is(err, ErrPresetNotFound) && id == DefaultPresetID {
			preset = builtinClassic()
		} else {
			return nil, err
		}
	}

	m.presets[id] = preset
	return preset, nil
}

func (m *Manager) readPreset(id string) (*service.Preset, error) {
	if m.presetDir == "" {
		return nil, fmt.Errorf("%w: %q", ErrPresetNotFound, id)
	}
	data, err := os.ReadFile(filepath.Join(m.presetDir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrPresetNotFound, id)
		}
		return nil, fmt.Errorf("failed to read preset file: %w", err)
	}
	return ParsePreset(data)
}

// ParsePreset decodes and validates one preset document
func ParsePreset(data []byte) (*service.Preset, error) {
	var preset service.Preset
	if err := json.Unmarshal(data, &preset); err != nil {
		return nil, fmt.Errorf("failed to parse preset: %w", err)
	}
	if err := ValidatePreset(&preset); err != nil {
		return nil, err
	}
	return &preset, nil
}

// ValidatePreset checks a preset against the same limits applied to
// session rules text
func ValidatePreset(p *service.Preset) error {
	var problems []string
	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is required")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(p.Rules)); n > engine.MaxRulesLength {
		problems = append(problems, fmt.Sprintf("rules are %d characters, maximum is %d", n, engine.MaxRulesLength))
	}
	var unknown []string
	for opt := range p.Options {
		if !slices.Contains(KnownOptions, opt) {
			unknown = append(unknown, opt)
		}
	}
	sort.Strings(unknown)
	for _, opt := range unknown {
		problems = append(problems, fmt.Sprintf("unknown option %q", opt))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPreset, strings.Join(problems, "; "))
	}
	return nil
}

// ListPresets returns information about all available presets. Invalid
// files are skipped.
func (m *Manager) ListPresets() ([]*service.PresetInfo, error) {
	ids := []string{}
	if m.presetDir != "" {
		entries, err := os.ReadDir(m.presetDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read preset directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	if !slices.Contains(ids, DefaultPresetID) {
		ids = append(ids, DefaultPresetID)
	}
	sort.Strings(ids)

	presets := make([]*service.PresetInfo, 0, len(ids))
	for _, id := range ids {
		preset, err := m.LoadPreset(id)
		if err != nil {
			continue
		}
		presets = append(presets, &service.PresetInfo{
			Filename:    id + ".json",
			PresetID:    id,
			Name:        preset.Name,
			Description: preset.Description,
		})
	}
	return presets, nil
}

// GetDefault returns the default preset
func (m *Manager) GetDefault() *service.Preset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultPreset
}

// SetDefault sets the default preset by ID
func (m *Manager) SetDefault(name string) error {
	preset, err := m.LoadPreset(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPreset = preset
	return nil
}

// RefreshCache drops cached presets so the next load rereads the files
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	m.presets = make(map[string]*service.Preset)
	m.mu.Unlock()

	def := m.resolveDefault()
	m.mu.Lock()
	m.defaultPreset = def
	m.mu.Unlock()
}

// resolveDefault prefers classic (from disk or built in), then the first
// valid preset on disk when classic.json is broken.
func (m *Manager) resolveDefault() *service.Preset {
	if preset, err := m.LoadPreset(DefaultPresetID); err == nil {
		return preset
	}
	if presets, err := m.ListPresets(); err == nil && len(presets) > 0 {
		if preset, err := m.LoadPreset(presets[0].PresetID); err == nil {
			return preset
		}
	}
	return builtinClassic()
}

// FileResult is the outcome of validating one preset file.
type FileResult struct {
	Filename string
	Preset   *service.Preset
	Err      error
}

// ValidateDir validates every .json preset in dir without caching anything
func ValidateDir(dir string) ([]FileResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset directory: %w", err)
	}

	var results []FileResult
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		result := FileResult{Filename: entry.Name()}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			result.Err = fmt.Errorf("failed to read preset file: %w", err)
		} else {
			result.Preset, result.Err = ParsePreset(data)
		}
		results = append(results, result)
	}
	return results, nil
}

func builtinClassic() *service.Preset {
	return &service.Preset{
		Name:        "Classic",
		Description: "Standard UNO rules",
		Rules: "Match the top card by color, number or symbol. Wild cards may be played on anything. " +
			"Draw one card when you cannot play. Call UNO with one card left.",
		Options: map[string]bool{},
	}
}
