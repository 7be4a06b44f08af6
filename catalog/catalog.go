/*
Package catalog provides static reference data about rated places.
*/
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed places.yaml
var builtin []byte

// Place is a rated place.
type Place struct {
	ID    uint64 `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	Short string `yaml:"short" json:"short"`
	Long  string `yaml:"long,omitempty" json:"long,omitempty"`
	Image string `yaml:"image" json:"image"`
}

// Description returns long place description if any, short otherwise.
func (p Place) Description() string {
	if p.Long != "" {
		return p.Long
	}
	return p.Short
}

// Catalog is an immutable ordered list of places.
type Catalog struct {
	places []Place
	index  map[uint64]int
}

// Builtin returns catalog of places embedded into the program.
func Builtin() (*Catalog, error) {
	return parse(builtin)
}

// Load reads catalog in YAML format.
func Load(r io.Reader) (*Catalog, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parse(b)
}

// LoadFile reads catalog from the YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

func parse(b []byte) (*Catalog, error) {
	var places []Place

	err := yaml.Unmarshal(b, &places)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	return New(places)
}

// New checks places and returns Catalog with them in the given order. IDs
// must be positive and unique, titles must be non-empty.
func New(places []Place) (*Catalog, error) {
	if len(places) == 0 {
		return nil, errors.New("empty catalog")
	}

	c := &Catalog{
		places: slices.Clone(places),
		index:  make(map[uint64]int, len(places)),
	}

	for i := range c.places {
		p := c.places[i]
		switch {
		case p.ID == 0:
			return nil, fmt.Errorf("place #%d: zero ID", i)
		case p.Title == "":
			return nil, fmt.Errorf("place %d: empty title", p.ID)
		}

		if _, ok := c.index[p.ID]; ok {
			return nil, fmt.Errorf("duplicated place %d", p.ID)
		}

		c.index[p.ID] = i
	}

	return c, nil
}

// Len returns number of places.
func (c *Catalog) Len() int {
	return len(c.places)
}

// Get returns place by ID.
func (c *Catalog) Get(id uint64) (Place, bool) {
	i, ok := c.index[id]
	if !ok {
		return Place{}, false
	}
	return c.places[i], true
}

// First returns up to n first places.
func (c *Catalog) First(n int) []Place {
	n = max(0, min(n, len(c.places)))
	return slices.Clone(c.places[:n])
}

// All returns all places.
func (c *Catalog) All() []Place {
	return slices.Clone(c.places)
}

// IDs returns IDs of the given places.
func IDs(places []Place) []uint64 {
	res := make([]uint64, len(places))
	for i := range places {
		res[i] = places[i].ID
	}
	return res
}
