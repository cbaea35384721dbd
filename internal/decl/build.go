package decl

import (
	"fmt"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/timebox/internal/guard"
	"github.com/roach88/timebox/internal/guard/cueguard"
	"github.com/roach88/timebox/internal/guard/luaguard"
	"github.com/roach88/timebox/internal/timebox"
)

// Resolver maps declared names onto runtime types and reaction bodies.
type Resolver[T any] interface {
	ResolveType(name string) (timebox.Type, bool)
	ResolveBody(name string) (timebox.Body[T], bool)
}

// Registry is a map-backed Resolver.
type Registry[T any] struct {
	types  map[string]timebox.Type
	bodies map[string]timebox.Body[T]
}

// NewRegistry returns an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		types:  make(map[string]timebox.Type),
		bodies: make(map[string]timebox.Body[T]),
	}
}

// RegisterType binds a declared type name.
func (r *Registry[T]) RegisterType(name string, t timebox.Type) *Registry[T] {
	r.types[norm.NFC.String(name)] = t
	return r
}

// RegisterBody binds a body name.
func (r *Registry[T]) RegisterBody(name string, b timebox.Body[T]) *Registry[T] {
	r.bodies[norm.NFC.String(name)] = b
	return r
}

// ResolveType implements Resolver.
func (r *Registry[T]) ResolveType(name string) (timebox.Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// ResolveBody implements Resolver.
func (r *Registry[T]) ResolveBody(name string) (timebox.Body[T], bool) {
	b, ok := r.bodies[name]
	return b, ok
}

// Compile parses src and builds its reactions.
func Compile[T any](src []byte, filename string, r Resolver[T]) ([]timebox.ReactionSpec[T], error) {
	f, err := Parse(src, filename)
	if err != nil {
		return nil, err
	}
	return Build(f, r)
}

// Build turns declarations into reaction specs, highest priority first.
//
// A duplicate priority is reported as a *timebox.ConfigError, the same
// error timebox.New would return. Unresolvable names and guards that do
// not compile are reported as *CompileError.
func Build[T any](f *File, r Resolver[T]) ([]timebox.ReactionSpec[T], error) {
	seen := make(map[int]string, len(f.Declarations))
	for _, d := range f.Declarations {
		if other, ok := seen[d.Priority]; ok {
			return nil, &timebox.ConfigError{
				Code:     timebox.ErrCodeDuplicatePriority,
				Message:  fmt.Sprintf("priority %d already used by reaction %q", d.Priority, other),
				Reaction: d.Name,
				Priority: d.Priority,
				Slot:     -1,
			}
		}
		seen[d.Priority] = d.Name
	}

	specs := make([]timebox.ReactionSpec[T], 0, len(f.Declarations))
	for _, d := range f.Declarations {
		spec, err := buildReaction(d, r)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	slices.SortFunc(specs, func(a, b timebox.ReactionSpec[T]) int {
		return b.Priority - a.Priority
	})
	return specs, nil
}

func buildReaction[T any](d Declaration, r Resolver[T]) (timebox.ReactionSpec[T], error) {
	spec := timebox.ReactionSpec[T]{
		Name:     d.Name,
		Priority: d.Priority,
	}

	body, ok := r.ResolveBody(d.Body)
	if !ok {
		return spec, &CompileError{
			Field:   reactionField(d.Name, "body"),
			Message: fmt.Sprintf("no body named %q", d.Body),
			Pos:     d.Pos,
		}
	}
	spec.Body = body

	for i, s := range d.Slots {
		field := reactionField(d.Name, fmt.Sprintf("slots[%d]", i))

		t, ok := r.ResolveType(s.Type)
		if !ok {
			return spec, &CompileError{
				Field:   field + ".type",
				Message: fmt.Sprintf("unknown type %q", s.Type),
				Pos:     d.Pos,
			}
		}

		ss := timebox.SlotSpec{Type: t, MinAuthority: s.MinAuthority, Gather: s.Gather}
		if s.Guard != nil {
			g, err := compileGuard(s.Guard)
			if err != nil {
				return spec, &CompileError{Field: field + ".guard", Message: err.Error(), Pos: d.Pos}
			}
			ss.Guard = g
		}
		spec.Slots = append(spec.Slots, ss)
	}

	if d.Guard != nil {
		g, err := compileGuard(d.Guard)
		if err != nil {
			return spec, &CompileError{Field: reactionField(d.Name, "guard"), Message: err.Error(), Pos: d.Pos}
		}
		spec.Guard = g
	}
	return spec, nil
}

func compileGuard(g *GuardDecl) (guard.Guard, error) {
	switch g.Lang {
	case GuardLua:
		lg, err := luaguard.Compile(g.Expr)
		if err != nil {
			return nil, err
		}
		return lg, nil
	case GuardCUE:
		cg, err := cueguard.Compile(g.Expr)
		if err != nil {
			return nil, err
		}
		return cg, nil
	default:
		return nil, fmt.Errorf("unknown guard language %q", g.Lang)
	}
}
