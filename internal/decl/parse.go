package decl

import (
	_ "embed"
	"fmt"
	"math"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"
)

//go:embed schema.cue
var schemaSource string

// GuardLang identifies a guard expression backend.
type GuardLang string

const (
	GuardLua GuardLang = "lua"
	GuardCUE GuardLang = "cue"
)

// GuardDecl is a guard expression as written.
type GuardDecl struct {
	Lang GuardLang `json:"lang"`
	Expr string    `json:"expr"`
}

// SlotDecl declares one reaction parameter.
type SlotDecl struct {
	Type         string     `json:"type"`
	Gather       bool       `json:"gather,omitempty"`
	MinAuthority int        `json:"min_authority,omitempty"`
	Guard        *GuardDecl `json:"guard,omitempty"`
}

// Declaration is one reaction as written in a declaration file.
type Declaration struct {
	Name     string     `json:"name"`
	Priority int        `json:"priority"`
	Slots    []SlotDecl `json:"slots"`
	Guard    *GuardDecl `json:"guard,omitempty"`

	// Body names the handler to run. Defaults to Name.
	Body string `json:"body"`

	Pos token.Pos `json:"-"`
}

// File is a parsed declaration file. Declarations keep source order.
type File struct {
	Filename     string
	Declarations []Declaration
}

// Parse checks src against the declaration schema and extracts every
// reaction. It fails on the first structural problem; semantic checks
// that can report several problems at once live in Validate.
func Parse(src []byte, filename string) (*File, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("decl: schema: %w", err)
	}

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	reactions := v.LookupPath(cue.ParsePath("reaction"))
	if !reactions.Exists() {
		return nil, &CompileError{
			Field:   "reaction",
			Message: "at least one reaction is required",
			Pos:     user.Pos(),
		}
	}

	iter, err := reactions.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	f := &File{Filename: filename}
	for iter.Next() {
		d, err := parseDeclaration(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		f.Declarations = append(f.Declarations, d)
	}
	if len(f.Declarations) == 0 {
		return nil, &CompileError{
			Field:   "reaction",
			Message: "at least one reaction is required",
			Pos:     reactions.Pos(),
		}
	}
	return f, nil
}

func parseDeclaration(name string, v cue.Value) (Declaration, error) {
	d := Declaration{
		Name: norm.NFC.String(name),
		Pos:  v.Pos(),
	}

	prio, err := intField(v, "priority")
	if err != nil {
		return d, err
	}
	d.Priority = prio

	slots, err := defaulted(v.LookupPath(cue.ParsePath("slots"))).List()
	if err != nil {
		return d, formatCUEError(err)
	}
	for slots.Next() {
		s, err := parseSlot(slots.Value())
		if err != nil {
			return d, err
		}
		d.Slots = append(d.Slots, s)
	}

	if gv := v.LookupPath(cue.ParsePath("guard")); gv.Exists() {
		g, err := parseGuard(gv)
		if err != nil {
			return d, err
		}
		d.Guard = g
	}

	d.Body = d.Name
	if bv := v.LookupPath(cue.ParsePath("body")); bv.Exists() {
		body, err := bv.String()
		if err != nil {
			return d, formatCUEError(err)
		}
		d.Body = norm.NFC.String(body)
	}
	return d, nil
}

func parseSlot(v cue.Value) (SlotDecl, error) {
	var s SlotDecl

	typ, err := v.LookupPath(cue.ParsePath("type")).String()
	if err != nil {
		return s, formatCUEError(err)
	}
	s.Type = norm.NFC.String(typ)

	s.Gather, err = defaulted(v.LookupPath(cue.ParsePath("gather"))).Bool()
	if err != nil {
		return s, formatCUEError(err)
	}

	s.MinAuthority, err = intField(v, "minAuthority")
	if err != nil {
		return s, err
	}

	if gv := v.LookupPath(cue.ParsePath("guard")); gv.Exists() {
		s.Guard, err = parseGuard(gv)
		if err != nil {
			return s, err
		}
	}
	return s, nil
}

func parseGuard(v cue.Value) (*GuardDecl, error) {
	for _, lang := range []GuardLang{GuardLua, GuardCUE} {
		ev := v.LookupPath(cue.MakePath(cue.Str(string(lang))))
		if !ev.Exists() {
			continue
		}
		expr, err := ev.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return &GuardDecl{Lang: lang, Expr: expr}, nil
	}
	return nil, &CompileError{
		Field:   "guard",
		Message: "guard must set exactly one of lua or cue",
		Pos:     v.Pos(),
	}
}

func intField(v cue.Value, field string) (int, error) {
	fv := defaulted(v.LookupPath(cue.ParsePath(field)))
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%d is out of range", n),
			Pos:     fv.Pos(),
		}
	}
	return int(n), nil
}

// defaulted resolves a value to its marked default, if any.
func defaulted(v cue.Value) cue.Value {
	if d, ok := v.Default(); ok {
		return d
	}
	return v
}
