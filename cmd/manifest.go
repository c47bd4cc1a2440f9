package main

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Manifest lists the result pages a batch scrapes, grouped by event. Kept
// in a checked-in YAML file so reruns hit the same pages.
type Manifest struct {
	Year   int             `yaml:"year"`
	Events []ManifestEvent `yaml:"events"`
}

type ManifestEvent struct {
	Name string   `yaml:"name"`
	URLs []string `yaml:"urls"`
}

// AllURLs flattens the manifest in declaration order, dropping duplicates.
func (m Manifest) AllURLs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ev := range m.Events {
		for _, u := range ev.URLs {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

func loadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, eris.Wrapf(err, "read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, eris.Wrapf(err, "parse manifest %s", path)
	}
	if len(m.Events) == 0 {
		return Manifest{}, eris.Errorf("manifest %s lists no events", path)
	}
	return m, nil
}
