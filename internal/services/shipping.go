package services

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RateTable maps pincode prefixes to shipping rates. Loaded once at startup
// from a yaml file; lookups pick the longest matching prefix.
type RateTable struct {
	zones       []rateZone
	defaultRate int
	hasDefault  bool
}

type rateZone struct {
	Name      string
	Prefix    string
	RatePaise int
}

type rateTableFile struct {
	Zones []struct {
		Name     string   `yaml:"name"`
		Prefixes []string `yaml:"prefixes"`
		Rate     int      `yaml:"rate"`
	} `yaml:"zones"`
	DefaultRate *int `yaml:"default_rate"`
}

func LoadRateTable(path string) (*RateTable, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shipping rates: %w", err)
	}
	return ParseRateTable(content)
}

func ParseRateTable(content []byte) (*RateTable, error) {
	var file rateTableFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse shipping rates: %w", err)
	}
	if len(file.Zones) == 0 {
		return nil, fmt.Errorf("shipping rates define no zones")
	}

	table := &RateTable{}
	for _, zone := range file.Zones {
		if zone.Rate < 0 {
			return nil, fmt.Errorf("zone %q has negative rate %d", zone.Name, zone.Rate)
		}
		for _, prefix := range zone.Prefixes {
			prefix = strings.TrimSpace(prefix)
			if prefix == "" {
				continue
			}
			if !isDigits(prefix) {
				return nil, fmt.Errorf("zone %q has non-numeric prefix %q", zone.Name, prefix)
			}
			table.zones = append(table.zones, rateZone{
				Name:      zone.Name,
				Prefix:    prefix,
				RatePaise: zone.Rate,
			})
		}
	}
	if len(table.zones) == 0 {
		return nil, fmt.Errorf("shipping rates define no usable prefixes")
	}

	// Longest prefix first so "5600" beats "56".
	sort.SliceStable(table.zones, func(i, j int) bool {
		return len(table.zones[i].Prefix) > len(table.zones[j].Prefix)
	})

	if file.DefaultRate != nil {
		if *file.DefaultRate < 0 {
			return nil, fmt.Errorf("default rate is negative")
		}
		table.defaultRate = *file.DefaultRate
		table.hasDefault = true
	}

	return table, nil
}

// Lookup returns the rate in paise for a six-digit pincode. Unknown pincodes
// fall back to the default rate when one is configured.
func (t *RateTable) Lookup(pincode string) (int, error) {
	pincode = strings.TrimSpace(pincode)
	if len(pincode) != 6 || !isDigits(pincode) {
		return 0, fmt.Errorf("invalid pincode %q", pincode)
	}

	for _, zone := range t.zones {
		if strings.HasPrefix(pincode, zone.Prefix) {
			return zone.RatePaise, nil
		}
	}
	if t.hasDefault {
		return t.defaultRate, nil
	}
	return 0, fmt.Errorf("no shipping zone matches pincode %s", pincode)
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(value) > 0
}
