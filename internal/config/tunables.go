package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

type Tunables struct {
	Dedup          domain.DeduplicationConfig  `yaml:"dedup"`
	ResultSetMerge domain.ResultSetMergeConfig `yaml:"result_set_merge"`
	SkipGains      domain.SkipGainTable        `yaml:"skip_gains"`
}

func DefaultTunables() Tunables {
	return Tunables{}.Normalize()
}

func (t Tunables) Normalize() Tunables {
	out := t
	out.Dedup = out.Dedup.Normalize()
	out.ResultSetMerge = out.ResultSetMerge.Normalize()
	out.SkipGains = out.SkipGains.Normalize()
	return out
}

func LoadTunables(path string) (Tunables, error) {
	if path == "" {
		return DefaultTunables(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Tunables{}, fmt.Errorf("read tunables file: %w", err)
	}

	var t Tunables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tunables{}, fmt.Errorf("parse tunables file %s: %w", path, err)
	}
	return t.Normalize(), nil
}
