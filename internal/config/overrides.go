package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	pelletiertoml "github.com/pelletier/go-toml/v2"
)

// Overrides captures project-level corrections for names static evidence
// alone can't classify. External names are forced external (never
// renamed). LikelyLocal names are marked likely-local for ownership
// resolution; this affects only names that are already in the rename map
// and does not add a name to it.
type Overrides struct {
	External    []string `toml:"external"`
	LikelyLocal []string `toml:"likely_local"`
}

// LoadOverrides reads .obfuscator/overrides.toml under repoRoot. A missing
// file is not an error; it returns an empty Overrides.
func LoadOverrides(repoRoot string) (*Overrides, error) {
	path := filepath.Join(repoRoot, ".obfuscator", "overrides.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Overrides{}, nil
		}
		return nil, err
	}

	var out Overrides
	if _, err := toml.Decode(string(data), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// KnownExternal lists root module names that must resolve as external even
// when a same-named file exists somewhere in the project tree, resolving
// the Project Indexer's "name collides with both a project path and a
// third-party package" ambiguity.
type KnownExternal struct {
	Modules []string `toml:"modules"`
}

// LoadKnownExternal reads .obfuscator/known_external.toml under repoRoot. A
// missing file is not an error; it returns an empty KnownExternal.
func LoadKnownExternal(repoRoot string) (*KnownExternal, error) {
	path := filepath.Join(repoRoot, ".obfuscator", "known_external.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &KnownExternal{}, nil
		}
		return nil, err
	}

	var out KnownExternal
	if err := pelletiertoml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
