package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"

	"github.com/cuemby/cephdeploy/pkg/log"
	"gopkg.in/ini.v1"
)

//go:embed seed.conf
var seedTemplate []byte

// SeedConfig renders the bootstrap ceph.conf: the built-in template, the
// cluster fsid, then the job's conf overrides.
func (j *Job) SeedConfig(fsid string) ([]byte, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		PreserveSurroundedQuote: true,
	}, seedTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed template: %w", err)
	}

	cfg.Section("global").Key("fsid").SetValue(fsid)

	logger := log.WithCluster(j.Cluster)
	sections := make([]string, 0, len(j.Conf))
	for section := range j.Conf {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	for _, section := range sections {
		keys := make([]string, 0, len(j.Conf[section]))
		for key := range j.Conf[section] {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			value := fmt.Sprint(j.Conf[section][key])
			logger.Info().Msgf(" override: [%s] %s = %s", section, key, value)
			cfg.Section(section).Key(key).SetValue(value)
		}
	}

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render seed config: %w", err)
	}
	return buf.Bytes(), nil
}
