// Package catalog serves the read-only case and raffle catalogs. The catalog
// is decoded from TOML, either from a file or from the embedded default.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed catalog.toml
var defaultCatalog []byte

// CaseItem is a possible drop of a case.
type CaseItem struct {
	Name   string  `toml:"name"   json:"name"`
	Price  string  `toml:"price"  json:"price"`
	Image  string  `toml:"image"  json:"image"`
	Rarity string  `toml:"rarity" json:"rarity"`
	Chance float64 `toml:"chance" json:"chance"`
}

// Case is an openable case.
type Case struct {
	ID    string     `toml:"id"    json:"id"`
	Name  string     `toml:"name"  json:"name"`
	Price int64      `toml:"price" json:"price"`
	Image string     `toml:"image" json:"image"`
	Items []CaseItem `toml:"items" json:"items"`
}

// Raffle is a prize draw.
type Raffle struct {
	ID          string    `toml:"id"           json:"id"`
	Title       string    `toml:"title"        json:"title"`
	Prize       string    `toml:"prize"        json:"prize"`
	Image       string    `toml:"image"        json:"image"`
	TicketPrice int64     `toml:"ticket_price" json:"ticket_price"`
	EndsAt      time.Time `toml:"ends_at"      json:"ends_at"`
}

// Catalog is the full static catalog.
type Catalog struct {
	Cases   []Case   `toml:"cases"   json:"cases"`
	Raffles []Raffle `toml:"raffles" json:"raffles"`

	cases map[string]int
}

// Load reads the catalog from path, or the embedded default when path is
// empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes and validates a TOML catalog. Unknown keys are rejected.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Cases == nil {
		c.Cases = []Case{}
	}
	if c.Raffles == nil {
		c.Raffles = []Raffle{}
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	c.cases = make(map[string]int, len(c.Cases))
	for i, cs := range c.Cases {
		if cs.ID == "" {
			return fmt.Errorf("catalog: case #%d has no id", i)
		}
		if _, dup := c.cases[cs.ID]; dup {
			return fmt.Errorf("catalog: duplicate case id %q", cs.ID)
		}
		if cs.Price < 0 {
			return fmt.Errorf("catalog: case %q has negative price", cs.ID)
		}
		if len(cs.Items) > 0 {
			var total float64
			for _, it := range cs.Items {
				if it.Chance < 0 {
					return fmt.Errorf("catalog: case %q item %q has negative chance", cs.ID, it.Name)
				}
				total += it.Chance
			}
			if math.Abs(total-1) > 1e-6 {
				return fmt.Errorf("catalog: case %q chances sum to %.4f, want 1", cs.ID, total)
			}
		}
		c.cases[cs.ID] = i
	}

	seen := make(map[string]bool, len(c.Raffles))
	for i, r := range c.Raffles {
		if r.ID == "" {
			return fmt.Errorf("catalog: raffle #%d has no id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("catalog: duplicate raffle id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// ErrCaseNotFound is returned by Case for unknown ids.
var ErrCaseNotFound = errors.New("case not found")

// Case returns the case with the given id.
func (c *Catalog) Case(id string) (Case, error) {
	i, ok := c.cases[id]
	if !ok {
		return Case{}, ErrCaseNotFound
	}
	return c.Cases[i], nil
}
