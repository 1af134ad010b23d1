// Package config provides house-rule preset management for the UNO server.
//
// The config package handles:
//   - Loading presets from JSON files
//   - Preset validation
//   - Default preset management
//   - Preset discovery and listing
//
// Preset Format:
//
// Presets are stored as JSON files in the presets directory. The file name
// without .json is the preset ID clients pass when creating a session.
// Each preset defines:
//   - A display name and description
//   - Rules text copied into sessions created with the preset
//   - Advisory option flags such as stack_draws or seven_zero
//
// The server records a session's rules text; it does not enforce it.
//
// Usage:
//
//	manager, err := config.NewManager("presets")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	preset, err := manager.LoadPreset("stacking")
//	defaultPreset := manager.GetDefault()
//	presets, err := manager.ListPresets()
//
// Validation:
//
// Every preset must have a name, rules text within the session rules limit,
// and only known option flags. A classic preset is always available, built
// in when no classic.json exists.
package config
