// Package project classifies a project directory's persistence generation
// and performs the one-shot, idempotent upgrade into the configured layout.
package project

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/taskbridgehq/taskbridge/internal/config"
)

// State is the derived persistence generation of a project. It is never
// persisted; it is recomputed from the presence and shape of on-disk files.
type State string

const (
	// StateLegacy has a pre-migration task file and no configuration.
	StateLegacy State = "legacy"
	// StateNeedsMigration has configuration without a remote-integration
	// section.
	StateNeedsMigration State = "needs-migration"
	// StateConfiguredLocal through StateConfiguredHybrid are fully
	// configured projects, split by persistence mode.
	StateConfiguredLocal  State = "configured-local"
	StateConfiguredRemote State = "configured-remote"
	StateConfiguredHybrid State = "configured-hybrid"
	// StateUnconfigured has neither tasks nor configuration.
	StateUnconfigured State = "unconfigured"
)

// Configured reports whether the state needs no migration.
func (s State) Configured() bool {
	switch s {
	case StateConfiguredLocal, StateConfiguredRemote, StateConfiguredHybrid:
		return true
	default:
		return false
	}
}

// Classify derives the project state from a decision table over two
// observations: a legacy task file without configuration, and a
// configuration without a remote-integration section.
func Classify(fsys afero.Fs, root string) (State, error) {
	cfgPath := config.Path(root)
	hasConfig, err := afero.Exists(fsys, cfgPath)
	if err != nil {
		return "", fmt.Errorf("probing %s: %w", cfgPath, err)
	}

	if !hasConfig {
		hasLegacy, err := afero.Exists(fsys, filepath.Join(root, config.LegacyTasksFileName))
		if err != nil {
			return "", err
		}
		if hasLegacy {
			return StateLegacy, nil
		}
		return StateUnconfigured, nil
	}

	raw, err := afero.ReadFile(fsys, cfgPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", cfgPath, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("parsing %s: %w", cfgPath, err)
	}

	if _, ok := doc["remote"]; !ok {
		return StateNeedsMigration, nil
	}

	mode, _ := doc["persistenceMode"].(string)
	switch config.Mode(mode) {
	case config.ModeRemote:
		return StateConfiguredRemote, nil
	case config.ModeHybrid:
		return StateConfiguredHybrid, nil
	case config.ModeLocal:
		return StateConfiguredLocal, nil
	default:
		// A remote section with no usable mode still needs the migrator to
		// fill in defaults.
		return StateNeedsMigration, nil
	}
}
