package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"connect4/network"

	"golang.org/x/exp/slices"
)

const (
	CatalogFile = "catalog.json"
	networkDir  = "networks"
)

type catalogEntry struct {
	Generation  int     `json:"generation"`
	Lineage     string  `json:"lineage,omitempty"`
	Exploration float64 `json:"exploration"`
	Policy      string  `json:"policy"`
	Value       string  `json:"value"`
}

// SaveCatalog writes every agent's functions under dir and records them in
// dir/catalog.json. Network paths are stored relative to dir.
func SaveCatalog(dir string, agents []*Agent) error {
	catalog := make(map[string]catalogEntry, len(agents))
	for _, a := range agents {
		entry := catalogEntry{
			Generation:  a.Generation,
			Lineage:     a.Lineage,
			Exploration: a.Exploration,
			Policy:      filepath.Join(networkDir, a.ID+"-policy.json"),
			Value:       filepath.Join(networkDir, a.ID+"-value.json"),
		}
		if err := a.Policy.Save(filepath.Join(dir, entry.Policy)); err != nil {
			return fmt.Errorf("failed to save policy of agent %s: %w", a.ID, err)
		}
		if err := a.Value.Save(filepath.Join(dir, entry.Value)); err != nil {
			return fmt.Errorf("failed to save value of agent %s: %w", a.ID, err)
		}
		catalog[a.ID] = entry
	}

	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	path := filepath.Join(dir, CatalogFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace catalog: %w", err)
	}
	return nil
}

// LoadCatalog reads dir/catalog.json and loads every listed network. Agents
// come back ordered by generation, oldest first. A missing catalog yields no
// agents and no error; a listed network that is missing is an error.
func LoadCatalog(dir string) ([]*Agent, error) {
	data, err := os.ReadFile(filepath.Join(dir, CatalogFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var catalog map[string]catalogEntry
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	agents := make([]*Agent, 0, len(catalog))
	for id, entry := range catalog {
		policy, err := loadNetwork(dir, entry.Policy)
		if err != nil {
			return nil, fmt.Errorf("agent %s policy: %w", id, err)
		}
		value, err := loadNetwork(dir, entry.Value)
		if err != nil {
			return nil, fmt.Errorf("agent %s value: %w", id, err)
		}
		agents = append(agents, &Agent{
			ID:          id,
			Generation:  entry.Generation,
			Lineage:     entry.Lineage,
			Exploration: entry.Exploration,
			Policy:      policy,
			Value:       value,
		})
	}

	slices.SortFunc(agents, func(a, b *Agent) int {
		if a.Generation != b.Generation {
			return a.Generation - b.Generation
		}
		return strings.Compare(a.ID, b.ID)
	})
	return agents, nil
}

func loadNetwork(dir, path string) (network.Function, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	fn, err := network.Load(path)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("network file %s: %w", path, fs.ErrNotExist)
	}
	return fn, nil
}
