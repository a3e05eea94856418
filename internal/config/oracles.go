package config

import (
	"encoding/json"
	"os"
	"slices"

	"github.com/rickgao/oracle-monitor/internal/model"
)

// oracleFileEntry is the per-address record in the oracles file.
type oracleFileEntry struct {
	OracleName string `json:"oracleName"`
}

// LoadOracles returns the monitored oracles: the inline list first, then
// the oracles file sorted by address. An address listed twice keeps its
// first definition.
func (c *MonitorConfig) LoadOracles() ([]*model.Oracle, error) {
	var oracles []*model.Oracle
	seen := make(map[string]bool)

	add := func(address, name string) {
		if seen[address] {
			return
		}
		seen[address] = true
		if name == "" {
			name = address
		}
		oracles = append(oracles, &model.Oracle{
			Address: address,
			Name:    name,
			Feeds:   make(map[string]string),
		})
	}

	for _, o := range c.Oracles.List {
		add(o.Address, o.Name)
	}

	if c.Oracles.File != "" {
		entries, err := readOracleFile(c.Oracles.File)
		if err != nil {
			return nil, err
		}

		addrs := make([]string, 0, len(entries))
		for addr := range entries {
			addrs = append(addrs, addr)
		}
		slices.Sort(addrs)

		for _, addr := range addrs {
			add(addr, entries[addr].OracleName)
		}
	}

	if len(oracles) == 0 {
		return nil, invalid("oracles", "no oracles configured")
	}
	return oracles, nil
}

func readOracleFile(path string) (map[string]oracleFileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "oracles.file", Message: "read", Err: err}
	}

	var entries map[string]oracleFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &ConfigError{Field: "oracles.file", Message: "parse", Err: err}
	}
	return entries, nil
}
