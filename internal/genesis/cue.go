package genesis

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/shopspring/decimal"

	"github.com/roach88/escrow/internal/domain"
)

// CompileError is a genesis error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadCUE compiles a genesis definition from a .cue file or from a
// directory holding one CUE package.
func LoadCUE(path string) (*Spec, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	ctx := cuecontext.New()
	var v cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, fmt.Errorf("genesis: no CUE instances in %s", path)
		}
		inst := instances[0]
		if inst.Err != nil {
			return nil, formatCUEError(inst.Err)
		}
		v = ctx.BuildInstance(inst)
	} else {
		if filepath.Ext(path) != ".cue" {
			return nil, fmt.Errorf("genesis: %s is not a .cue file", path)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("genesis: %w", err)
		}
		v = ctx.CompileBytes(src, cue.Filename(path))
	}
	return Compile(v)
}

// CompileString compiles genesis CUE source. Used by tests and inline definitions.
func CompileString(src string) (*Spec, error) {
	return Compile(cuecontext.New().CompileString(src, cue.Filename("genesis.cue")))
}

// Compile extracts a Spec from a built CUE value.
func Compile(v cue.Value) (*Spec, error) {
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Spec{}

	if partiesVal := v.LookupPath(cue.ParsePath("party")); partiesVal.Exists() {
		iter, err := partiesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			p, err := compileParty(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			s.Parties = append(s.Parties, p)
		}
	}

	if assetsVal := v.LookupPath(cue.ParsePath("asset")); assetsVal.Exists() {
		classes, err := assetsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for classes.Next() {
			className := classes.Selector().Unquoted()
			class, err := domain.ParseAssetClass(className)
			if err != nil {
				return nil, &CompileError{Field: "asset." + className, Message: err.Error(), Pos: classes.Value().Pos()}
			}
			ids, err := classes.Value().Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for ids.Next() {
				a, err := compileAsset(class, ids.Selector().Unquoted(), ids.Value())
				if err != nil {
					return nil, err
				}
				s.Assets = append(s.Assets, a)
			}
		}
	}

	if len(s.Parties) == 0 {
		return nil, &CompileError{Field: "party", Message: "at least one party is required", Pos: v.Pos()}
	}
	sortSpec(s)
	return s, nil
}

func compileParty(id string, v cue.Value) (Party, error) {
	p := Party{ID: domain.PartyID(id), Name: id, Cash: decimal.Zero}
	field := "party." + id

	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return p, &CompileError{Field: field + ".name", Message: "must be a string", Pos: nameVal.Pos()}
		}
		p.Name = name
	}
	if cashVal := v.LookupPath(cue.ParsePath("cash")); cashVal.Exists() {
		cash, err := decimalValue(cashVal, field+".cash")
		if err != nil {
			return p, err
		}
		p.Cash = cash
	}
	return p, nil
}

func compileAsset(class domain.AssetClass, id string, v cue.Value) (Asset, error) {
	a := Asset{ID: domain.AssetID(id), Class: class, Valuation: decimal.Zero}
	field := fmt.Sprintf("asset.%s.%s", class, id)

	ownerVal := v.LookupPath(cue.ParsePath("owner"))
	if !ownerVal.Exists() {
		return a, &CompileError{Field: field + ".owner", Message: "owner is required", Pos: v.Pos()}
	}
	owner, err := ownerVal.String()
	if err != nil {
		return a, &CompileError{Field: field + ".owner", Message: "must be a string", Pos: ownerVal.Pos()}
	}
	a.Owner = domain.PartyID(owner)

	if valVal := v.LookupPath(cue.ParsePath("valuation")); valVal.Exists() {
		val, err := decimalValue(valVal, field+".valuation")
		if err != nil {
			return a, err
		}
		a.Valuation = val
	}
	return a, nil
}

// decimalValue accepts a CUE number or a decimal string. Numbers are read
// through their JSON text so no precision is lost to float64.
func decimalValue(v cue.Value, field string) (decimal.Decimal, error) {
	var text string
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return decimal.Zero, formatCUEError(err)
		}
		text = s
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		raw, err := v.MarshalJSON()
		if err != nil {
			return decimal.Zero, formatCUEError(err)
		}
		text = string(raw)
	default:
		return decimal.Zero, &CompileError{Field: field, Message: fmt.Sprintf("must be a number or decimal string, got %v", v.IncompleteKind()), Pos: v.Pos()}
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, &CompileError{Field: field, Message: fmt.Sprintf("invalid amount %q", text), Pos: v.Pos()}
	}
	return d, nil
}

// formatCUEError keeps the position of the first CUE error.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
