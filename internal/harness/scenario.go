package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/escrow/internal/domain"
	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/genesis"
)

// Scenario is one conformance test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Genesis is the inline starting state. Exactly one of Genesis and
	// GenesisFile is set.
	Genesis *genesis.Spec `yaml:"genesis,omitempty"`

	// GenesisFile is a CUE genesis definition, relative to the scenario file.
	GenesisFile string `yaml:"genesis_file,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpCreate   = "create"
	OpAccept   = "accept"
	OpCancel   = "cancel"
	OpReject   = "reject"
	OpDeposit  = "deposit"
	OpWithdraw = "withdraw"
)

// Step is one engine call.
type Step struct {
	Op string `yaml:"op"`

	// Ref names the exchange. A create step binds it to the generated id;
	// later steps look it up. An unbound ref is used as a literal id.
	Ref string `yaml:"ref,omitempty"`

	From        domain.PartyID    `yaml:"from,omitempty"`
	To          domain.PartyID    `yaml:"to,omitempty"`
	Offering    *domain.OfferJSON `yaml:"offering,omitempty"`
	Requesting  *domain.OfferJSON `yaml:"requesting,omitempty"`
	Description string            `yaml:"description,omitempty"`

	// Party acts on accept, cancel, reject, deposit and withdraw.
	Party  domain.PartyID   `yaml:"party,omitempty"`
	Amount *decimal.Decimal `yaml:"amount,omitempty"`

	// FailAt injects a failure before the named settlement step of an accept.
	FailAt engine.Step `yaml:"fail_at,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Error is the expected engine error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Status is the exchange status after the step.
	Status domain.Status `yaml:"status,omitempty"`

	// Result is the expected return of cancel and reject.
	Result *bool `yaml:"result,omitempty"`
}

// Assertion types.
const (
	AssertInventory    = "inventory"
	AssertOwner        = "owner"
	AssertStatus       = "status"
	AssertHistoryCount = "history_count"
	AssertConservation = "conservation"
)

// Assertion validates the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// inventory
	Party           domain.PartyID                         `yaml:"party,omitempty"`
	CashAvailable   *decimal.Decimal                       `yaml:"cash_available,omitempty"`
	CashEscrowed    *decimal.Decimal                       `yaml:"cash_escrowed,omitempty"`
	AssetsAvailable map[domain.AssetClass][]domain.AssetID `yaml:"assets_available,omitempty"`
	AssetsEscrowed  map[domain.AssetClass][]domain.AssetID `yaml:"assets_escrowed,omitempty"`

	// owner, history_count
	AssetClass domain.AssetClass `yaml:"asset_class,omitempty"`
	AssetID    domain.AssetID    `yaml:"asset_id,omitempty"`
	Owner      domain.PartyID    `yaml:"owner,omitempty"`
	Count      *int              `yaml:"count,omitempty"`

	// status
	Exchange string        `yaml:"exchange,omitempty"`
	Status   domain.Status `yaml:"status,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected and a genesis_file is resolved relative to
// the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.GenesisFile != "" && !filepath.IsAbs(s.GenesisFile) {
		s.GenesisFile = filepath.Join(filepath.Dir(path), s.GenesisFile)
	}
	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// ParseScenario decodes scenario YAML without validating file references.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &s, nil
}

// Validate checks that required fields are present and consistent.
func (s *Scenario) Validate() error {
	return validateScenario(s)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch {
	case s.Genesis == nil && s.GenesisFile == "":
		return fmt.Errorf("genesis or genesis_file is required")
	case s.Genesis != nil && s.GenesisFile != "":
		return fmt.Errorf("genesis and genesis_file are mutually exclusive")
	case s.GenesisFile != "":
		if _, err := os.Stat(s.GenesisFile); err != nil {
			return fmt.Errorf("genesis file not found: %s", s.GenesisFile)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, st *Step) error {
	switch st.Op {
	case OpCreate:
		if st.From == "" || st.To == "" {
			return fmt.Errorf("steps[%d]: create requires from and to", i)
		}
		if st.Offering == nil || st.Requesting == nil {
			return fmt.Errorf("steps[%d]: create requires offering and requesting", i)
		}
	case OpAccept, OpCancel, OpReject:
		if st.Ref == "" || st.Party == "" {
			return fmt.Errorf("steps[%d]: %s requires ref and party", i, st.Op)
		}
	case OpDeposit, OpWithdraw:
		if st.Party == "" || st.Amount == nil {
			return fmt.Errorf("steps[%d]: %s requires party and amount", i, st.Op)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, st.Op)
	}

	if st.FailAt != "" {
		if st.Op != OpAccept {
			return fmt.Errorf("steps[%d]: fail_at only applies to accept", i)
		}
		if !slices.Contains(engine.Steps, st.FailAt) {
			return fmt.Errorf("steps[%d]: unknown settlement step %q", i, st.FailAt)
		}
	}
	if st.Expect != nil && st.Expect.Result != nil && st.Op != OpCancel && st.Op != OpReject {
		return fmt.Errorf("steps[%d]: expect.result only applies to cancel and reject", i)
	}
	return nil
}

func validateAssertion(i int, a *Assertion) error {
	switch a.Type {
	case AssertInventory:
		if a.Party == "" {
			return fmt.Errorf("assertions[%d]: party is required for inventory", i)
		}
	case AssertOwner:
		if a.AssetClass == "" || a.AssetID == "" || a.Owner == "" {
			return fmt.Errorf("assertions[%d]: asset_class, asset_id and owner are required for owner", i)
		}
	case AssertStatus:
		if a.Exchange == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: exchange and status are required for status", i)
		}
	case AssertHistoryCount:
		if a.AssetClass == "" || a.AssetID == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: asset_class, asset_id and count are required for history_count", i)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", i)
		}
	case AssertConservation:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
