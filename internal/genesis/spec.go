package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/inventory"
	"github.com/roach88/escrow/internal/registry"
)

// Spec is a complete genesis definition.
type Spec struct {
	Parties []Party `yaml:"parties" json:"parties"`
	Assets  []Asset `yaml:"assets" json:"assets"`
}

// Party is one ledger to initialize.
type Party struct {
	ID   domain.PartyID  `yaml:"id" json:"id"`
	Name string          `yaml:"name" json:"name"`
	Cash decimal.Decimal `yaml:"cash" json:"cash"`
}

// Asset is one asset to register and grant to its owner.
type Asset struct {
	ID        domain.AssetID    `yaml:"id" json:"id"`
	Class     domain.AssetClass `yaml:"class" json:"class"`
	Owner     domain.PartyID    `yaml:"owner" json:"owner"`
	Valuation decimal.Decimal   `yaml:"valuation" json:"valuation"`
}

// ValidationError describes one problem in a Spec.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks s for duplicate ids, unknown owners, unsupported
// asset classes and negative amounts. All problems are reported, joined.
func Validate(s *Spec) error {
	var errs []error
	add := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	parties := make(map[domain.PartyID]bool, len(s.Parties))
	for i, p := range s.Parties {
		path := fmt.Sprintf("parties[%d]", i)
		if p.ID == "" {
			add(path, "id is required")
			continue
		}
		if parties[p.ID] {
			add(path, "duplicate party %q", p.ID)
		}
		parties[p.ID] = true
		if p.Cash.IsNegative() {
			add(path, "cash %s is negative", p.Cash)
		}
	}

	assets := make(map[domain.AssetKey]bool, len(s.Assets))
	for i, a := range s.Assets {
		path := fmt.Sprintf("assets[%d]", i)
		if a.ID == "" {
			add(path, "id is required")
			continue
		}
		if !a.Class.Valid() {
			add(path, "unsupported asset class %q", a.Class)
		}
		key := domain.AssetKey{Class: a.Class, ID: a.ID}
		if assets[key] {
			add(path, "duplicate asset %s", key)
		}
		assets[key] = true
		if !parties[a.Owner] {
			add(path, "owner %q is not a party", a.Owner)
		}
		if a.Valuation.IsNegative() {
			add(path, "valuation %s is negative", a.Valuation)
		}
	}
	return errors.Join(errs...)
}

// Apply validates s, then initializes every party ledger and registers and
// grants every asset. Collisions with parties or assets already present in
// inv or reg are checked before anything is written, so a refused spec
// leaves both stores untouched.
func Apply(s *Spec, inv *inventory.Store, reg *registry.Registry) error {
	if err := Validate(s); err != nil {
		return fmt.Errorf("invalid genesis: %w", err)
	}
	if err := checkVacant(s, inv, reg); err != nil {
		return fmt.Errorf("genesis conflicts with existing state: %w", err)
	}
	for _, p := range s.Parties {
		name := p.Name
		if name == "" {
			name = string(p.ID)
		}
		if err := inv.Initialize(p.ID, name, p.Cash); err != nil {
			return fmt.Errorf("initialize %s: %w", p.ID, err)
		}
	}
	for _, a := range s.Assets {
		if err := reg.Register(registry.Asset{ID: a.ID, Class: a.Class, Owner: a.Owner, Valuation: a.Valuation}); err != nil {
			return err
		}
		if err := inv.GrantAsset(a.Owner, a.ID, a.Class); err != nil {
			return fmt.Errorf("grant %s/%s: %w", a.Class, a.ID, err)
		}
	}
	return nil
}

func checkVacant(s *Spec, inv *inventory.Store, reg *registry.Registry) error {
	var errs []error
	for _, p := range s.Parties {
		if inv.Exists(p.ID) {
			errs = append(errs, fmt.Errorf("party %s: %w", p.ID, inventory.ErrAlreadyExists))
		}
	}
	for _, a := range s.Assets {
		key := domain.AssetKey{Class: a.Class, ID: a.ID}
		if _, ok := reg.Get(a.Class, a.ID); ok {
			errs = append(errs, fmt.Errorf("asset %s: %w", key, registry.ErrAssetExists))
		}
		if holder, ok := inv.Holder(a.Class, a.ID); ok {
			errs = append(errs, fmt.Errorf("asset %s held by %s: %w", key, holder, inventory.ErrAssetExists))
		}
	}
	return errors.Join(errs...)
}

// ParseYAML decodes a Spec, rejecting unknown fields.
func ParseYAML(data []byte) (*Spec, error) {
	var s Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse genesis yaml: %w", err)
	}
	return &s, nil
}

// sortSpec orders parties and assets by id so CUE's field order does not
// leak into ledger creation order.
func sortSpec(s *Spec) {
	sort.Slice(s.Parties, func(i, j int) bool { return s.Parties[i].ID < s.Parties[j].ID })
	sort.Slice(s.Assets, func(i, j int) bool {
		if s.Assets[i].Class != s.Assets[j].Class {
			return s.Assets[i].Class < s.Assets[j].Class
		}
		return s.Assets[i].ID < s.Assets[j].ID
	})
}
