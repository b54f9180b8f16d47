package calculator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmynk/scopewise/internal/formula"
	"github.com/mmynk/scopewise/internal/models"
)

var (
	ErrConfigNotFound     = errors.New("scope type not found")
	ErrInvalidScopeType   = errors.New("invalid scope type")
	ErrInvalidFieldName   = errors.New("invalid field name")
	ErrDuplicateFieldName = errors.New("duplicate field name")
	ErrUnknownField       = errors.New("unknown field")
)

// Registry looks up the field registry of a scope type. Implementations
// return an error wrapping ErrConfigNotFound for unknown names.
type Registry interface {
	LookupScopeType(ctx context.Context, name string) (*models.ScopeType, error)
}

var validate = validator.New()

// ValidateScopeType checks the integrity of a scope type: struct constraints,
// identifier names, uniqueness, formula syntax, references and the absence of
// dependency cycles.
func ValidateScopeType(st *models.ScopeType) error {
	_, err := NewPlan(st)
	return err
}

// checkStructure runs the struct-level constraints and the naming rules.
func checkStructure(st *models.ScopeType) error {
	if st == nil {
		return fmt.Errorf("%w: nil scope type", ErrInvalidScopeType)
	}
	if err := validate.Struct(st); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidScopeType, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidScopeType, err)
	}

	if err := uniqueIdentifiers("field", len(st.Fields), func(i int) string { return st.Fields[i].Name }); err != nil {
		return err
	}
	if err := uniqueIdentifiers("formula", len(st.Formulas), func(i int) string { return st.Formulas[i].Name }); err != nil {
		return err
	}
	return uniqueIdentifiers("constant", len(st.Constants), func(i int) string { return st.Constants[i].Name })
}

func uniqueIdentifiers(kind string, n int, name func(int) string) error {
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		nm := name(i)
		if !formula.IsIdentifier(nm) {
			return fmt.Errorf("%w: %s %q", ErrInvalidFieldName, kind, nm)
		}
		if seen[nm] {
			return fmt.Errorf("%w: %s %q", ErrDuplicateFieldName, kind, nm)
		}
		seen[nm] = true
	}
	return nil
}

// MissingMandatoryError lists the mandatory fields an item leaves empty.
type MissingMandatoryError struct {
	RowID  string
	Fields []string
}

func (e *MissingMandatoryError) Error() string {
	return fmt.Sprintf("item %s: missing mandatory fields: %s", e.RowID, strings.Join(e.Fields, ", "))
}

// ValidateMandatory checks that item carries a value for every mandatory
// input field of st. Calculated and Check fields are exempt.
func ValidateMandatory(st *models.ScopeType, item models.ItemRecord) error {
	var missing []string
	for _, f := range st.Fields {
		if !f.Mandatory || f.Calculated() || f.Type == models.FieldCheck {
			continue
		}
		v, ok := item.Variables[f.Name]
		if !ok || v.IsNull() || (v.Kind() == models.KindText && strings.TrimSpace(v.String()) == "") {
			missing = append(missing, f.DisplayName())
		}
	}
	if len(missing) > 0 {
		return &MissingMandatoryError{RowID: item.RowID, Fields: missing}
	}
	return nil
}
