package decl

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Validation error codes (E100-E199)
const (
	ErrDuplicatePriority = "E101" // two reactions share a priority
	ErrDuplicateName     = "E102" // names collide after normalization
	ErrInvalidGuard      = "E103" // guard expression does not compile
	ErrEmptyTypeName     = "E104" // slot type is blank
)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a parsed file for semantic problems.
// Returns all errors found (does not fail-fast).
func Validate(f *File) []ValidationError {
	var errs []ValidationError

	byPriority := make(map[int]string)
	byName := make(map[string]bool)
	for _, d := range f.Declarations {
		line := d.Pos.Line()

		// E101
		if other, ok := byPriority[d.Priority]; ok {
			errs = append(errs, ValidationError{
				Field:   reactionField(d.Name, "priority"),
				Message: fmt.Sprintf("priority %d already used by reaction %q", d.Priority, other),
				Code:    ErrDuplicatePriority,
				Line:    line,
			})
		} else {
			byPriority[d.Priority] = d.Name
		}

		// E102. Parse already normalizes, so this only fires for files
		// assembled in code; CUE itself merges NFC-equal labels.
		name := norm.NFC.String(d.Name)
		if byName[name] {
			errs = append(errs, ValidationError{
				Field:   reactionField(d.Name, ""),
				Message: "reaction name is declared more than once",
				Code:    ErrDuplicateName,
				Line:    line,
			})
		}
		byName[name] = true

		for i, s := range d.Slots {
			field := reactionField(d.Name, fmt.Sprintf("slots[%d]", i))
			if slotTypeBlank(s.Type) {
				errs = append(errs, ValidationError{
					Field:   field + ".type",
					Message: "type name is blank",
					Code:    ErrEmptyTypeName,
					Line:    line,
				})
			}
			if err := checkGuard(s.Guard); err != nil {
				errs = append(errs, ValidationError{
					Field:   field + ".guard",
					Message: err.Error(),
					Code:    ErrInvalidGuard,
					Line:    line,
				})
			}
		}

		if err := checkGuard(d.Guard); err != nil {
			errs = append(errs, ValidationError{
				Field:   reactionField(d.Name, "guard"),
				Message: err.Error(),
				Code:    ErrInvalidGuard,
				Line:    line,
			})
		}
	}

	return errs
}

// ShadowWarning reports a reaction that can never be selected.
type ShadowWarning struct {
	Reaction string `json:"reaction"`
	Priority int    `json:"priority"`
	By       string `json:"by"`
	ByPrio   int    `json:"by_priority"`
}

func (w ShadowWarning) String() string {
	return fmt.Sprintf("reaction %q (priority %d) can never fire: %q (priority %d) is satisfied whenever it is",
		w.Reaction, w.Priority, w.By, w.ByPrio)
}

// Shadowed finds reactions that are dominated by a higher-priority one.
//
// A higher reaction H dominates a lower reaction L when H has no reaction
// guard and each of H's slots is unguarded and matched by some slot of L
// with the same type and at least the same minimum authority. Values are
// offered highest priority first, so any value L binds was already
// accepted by H.
func Shadowed(f *File) []ShadowWarning {
	decls := slices.Clone(f.Declarations)
	slices.SortStableFunc(decls, func(a, b Declaration) int {
		return b.Priority - a.Priority
	})

	var warnings []ShadowWarning
	for i, low := range decls {
		for _, high := range decls[:i] {
			if high.Priority == low.Priority {
				continue
			}
			if dominates(high, low) {
				warnings = append(warnings, ShadowWarning{
					Reaction: low.Name,
					Priority: low.Priority,
					By:       high.Name,
					ByPrio:   high.Priority,
				})
				break
			}
		}
	}
	return warnings
}

func dominates(high, low Declaration) bool {
	if high.Guard != nil {
		return false
	}
	for _, hs := range high.Slots {
		if hs.Guard != nil {
			return false
		}
		covered := slices.ContainsFunc(low.Slots, func(ls SlotDecl) bool {
			return ls.Type == hs.Type && ls.MinAuthority >= hs.MinAuthority
		})
		if !covered {
			return false
		}
	}
	return true
}

func checkGuard(g *GuardDecl) error {
	if g == nil {
		return nil
	}
	compiled, err := compileGuard(g)
	if err != nil {
		return err
	}
	if c, ok := compiled.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

func reactionField(name, field string) string {
	if field == "" {
		return fmt.Sprintf("reaction.%s", name)
	}
	return fmt.Sprintf("reaction.%s.%s", name, field)
}

func slotTypeBlank(name string) bool {
	return strings.TrimSpace(name) == ""
}
