package project

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/taskbridgehq/taskbridge/internal/config"
)

// MigrateOptions controls a migration run.
type MigrateOptions struct {
	// DryRun reports the changes without writing anything.
	DryRun bool
	// Backup takes a timestamped copy of the config and task files first.
	Backup bool
}

// MigrateResult reports what a migration did (or would do, under DryRun).
type MigrateResult struct {
	Success   bool     `json:"success"`
	State     State    `json:"state"`
	Changes   []string `json:"changes"`
	BackupDir string   `json:"backupDir,omitempty"`
}

// Migrate upgrades a project to the configured layout. It is additive-only:
// task content is never rewritten or reinterpreted, and the configuration it
// writes defaults to local mode with remote integration disabled, so
// migrating never changes observable behavior until the operator opts in.
// Re-running on an already configured project is a safe no-op.
func Migrate(fsys afero.Fs, root string, opts MigrateOptions) (MigrateResult, error) {
	state, err := Classify(fsys, root)
	if err != nil {
		return MigrateResult{}, err
	}
	if state.Configured() {
		return MigrateResult{Success: true, State: state}, nil
	}

	result := MigrateResult{State: state}
	cfgPath := config.Path(root)

	doc, err := supersedingConfig(fsys, cfgPath)
	if err != nil {
		return MigrateResult{}, err
	}
	result.Changes = append(result.Changes, fmt.Sprintf("write %s (mode local, remote disabled, autoSync off)", cfgPath))

	if opts.DryRun {
		result.Success = true
		return result, nil
	}

	if opts.Backup {
		backupDir, err := takeBackup(fsys, root)
		if err != nil {
			return MigrateResult{}, err
		}
		if backupDir != "" {
			result.BackupDir = backupDir
			result.Changes = append([]string{"backup to " + backupDir}, result.Changes...)
		}
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return MigrateResult{}, fmt.Errorf("marshaling configuration: %w", err)
	}
	if err := fsys.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return MigrateResult{}, err
	}
	if err := afero.WriteFile(fsys, cfgPath, out, 0o644); err != nil {
		return MigrateResult{}, fmt.Errorf("writing %s: %w", cfgPath, err)
	}

	result.Success = true
	return result, nil
}

// supersedingConfig merges zero-impact defaults under any existing
// configuration keys. Existing keys always win; the merge only adds.
func supersedingConfig(fsys afero.Fs, cfgPath string) (map[string]any, error) {
	defaults, err := configAsMap(config.Default())
	if err != nil {
		return nil, err
	}

	existing := map[string]any{}
	if raw, err := afero.ReadFile(fsys, cfgPath); err == nil {
		if err := yaml.Unmarshal(raw, &existing); err != nil {
			return nil, fmt.Errorf("parsing existing %s: %w", cfgPath, err)
		}
	}

	for key, val := range defaults {
		if _, ok := existing[key]; !ok {
			existing[key] = val
		}
	}
	return existing, nil
}

func configAsMap(cfg config.Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// takeBackup copies the config and task documents into a timestamped
// directory under the project config dir. Returns "" when there was nothing
// to back up.
func takeBackup(fsys afero.Fs, root string) (string, error) {
	stamp := time.Now().UTC().Format("20060102-150405")
	backupDir := filepath.Join(root, config.DirName, "backup", stamp)

	sources := map[string]string{
		config.Path(root): "config.yaml",
		filepath.Join(root, config.DirName, config.TasksFileName): "tasks.json",
		filepath.Join(root, config.LegacyTasksFileName):           "tasks.legacy.json",
	}

	copied := false
	for src, name := range sources {
		data, err := afero.ReadFile(fsys, src)
		if err != nil {
			continue
		}
		if !copied {
			if err := fsys.MkdirAll(backupDir, 0o755); err != nil {
				return "", err
			}
			copied = true
		}
		if err := afero.WriteFile(fsys, filepath.Join(backupDir, name), data, 0o644); err != nil {
			return "", fmt.Errorf("backing up %s: %w", src, err)
		}
	}

	if !copied {
		return "", nil
	}
	return backupDir, nil
}
