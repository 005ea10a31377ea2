package ledger

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Contracts are the deployed addresses the app talks to on one chain.
type Contracts struct {
	LensHub           string `yaml:"lensHub"`
	FreeCollectModule string `yaml:"freeCollectModule"`
}

// DefaultContracts is used when no contracts file is configured.
var DefaultContracts = map[string]Contracts{
	"Polygon Mumbai": {
		LensHub:           "0x60Ae865ee4C725cd04353b5AAb364553f56ceF82",
		FreeCollectModule: "0x0BE6bD7092ee83D44a6eC1D949626FeE48caB30c",
	},
}

// LoadContracts resolves the addresses for chain. An empty path uses
// DefaultContracts; otherwise the YAML file maps chain names to addresses.
func LoadContracts(path, chain string) (Contracts, error) {
	table := DefaultContracts
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Contracts{}, fmt.Errorf("read contracts file: %w", err)
		}
		table = map[string]Contracts{}
		if err := yaml.Unmarshal(raw, &table); err != nil {
			return Contracts{}, fmt.Errorf("parse contracts file %s: %w", path, err)
		}
	}
	c, ok := table[chain]
	if !ok || c.LensHub == "" {
		return Contracts{}, fmt.Errorf("chain %q: %w", chain, ErrUnresolvedContract)
	}
	return c, nil
}
