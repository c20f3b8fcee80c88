// Package market holds the static catalog of prediction markets and the two
// addresses that receive YES and NO stakes.
package market

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

//go:embed markets.yaml
var defaultCatalog []byte

var (
	ErrUnknownMarket = errors.New("unknown market")
	ErrUnknownSide   = errors.New("unknown side")
)

type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(raw))) {
	case SideYes:
		return SideYes, nil
	case SideNo:
		return SideNo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSide, raw)
}

// Label is the upper-case form used in notices.
func (s Side) Label() string {
	return strings.ToUpper(string(s))
}

type Odds struct {
	Yes int `yaml:"yes" json:"yes"`
	No  int `yaml:"no" json:"no"`
}

type Market struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Category    string `yaml:"category" json:"category"`
	ClosesOn    string `yaml:"closesOn" json:"closesOn"`
	Odds        Odds   `yaml:"odds" json:"odds"`
	Volume      string `yaml:"volume" json:"volume"`
	Sentiment   string `yaml:"sentiment" json:"sentiment"`
	Highlight   string `yaml:"highlight,omitempty" json:"highlight,omitempty"`
}

// Catalog is read-only after Parse.
type Catalog struct {
	yes     common.Address
	no      common.Address
	markets []Market
	byID    map[string]int
}

type catalogFile struct {
	YesAddress string   `yaml:"yesAddress"`
	NoAddress  string   `yaml:"noAddress"`
	Markets    []Market `yaml:"markets"`
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markets: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}
	if !common.IsHexAddress(file.YesAddress) || !common.IsHexAddress(file.NoAddress) {
		return nil, errors.New("yesAddress and noAddress must be hex addresses")
	}
	c := &Catalog{
		yes:     common.HexToAddress(file.YesAddress),
		no:      common.HexToAddress(file.NoAddress),
		markets: file.Markets,
		byID:    make(map[string]int, len(file.Markets)),
	}
	if c.yes == c.no {
		return nil, errors.New("yesAddress and noAddress must differ")
	}
	for i, m := range file.Markets {
		if m.ID == "" || m.Title == "" {
			return nil, fmt.Errorf("market %d: id and title are required", i)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate market id %q", m.ID)
		}
		c.byID[m.ID] = i
	}
	return c, nil
}

func (c *Catalog) Get(id string) (Market, error) {
	i, ok := c.byID[id]
	if !ok {
		return Market{}, fmt.Errorf("%w: %q", ErrUnknownMarket, id)
	}
	return c.markets[i], nil
}

// All returns a copy of the markets in catalog order.
func (c *Catalog) All() []Market {
	out := make([]Market, len(c.markets))
	copy(out, c.markets)
	return out
}

// Recipient is the address that collects stakes on side.
func (c *Catalog) Recipient(side Side) common.Address {
	if side == SideNo {
		return c.no
	}
	return c.yes
}
