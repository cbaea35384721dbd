// Package cueguard evaluates guards written as CUE constraints.
//
// At slot placement the constraint is unified with the candidate value;
// at reaction placement it is unified with the list of bound arguments.
// A candidate is allowed when the unification is concrete and free of
// conflicts, for example:
//
//	{age: >5, name: =~"^B"}
//	[{name: string}, {lives: >0}]
//
// Go values are encoded with cue.Context.Encode, so struct fields are
// addressed by their json tags.
package cueguard

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/timebox/internal/guard"
)

// Guard is a compiled CUE constraint.
//
// A cue.Context is not safe for concurrent use; evaluations are
// serialized on an internal mutex.
type Guard struct {
	mu         sync.Mutex
	src        string
	ctx        *cue.Context
	constraint cue.Value
}

// Compile parses constraint into a Guard.
func Compile(constraint string) (*Guard, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(constraint, cue.Filename("guard.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("cueguard: compile %q: %w", constraint, err)
	}
	return &Guard{src: constraint, ctx: ctx, constraint: v}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(constraint string) *Guard {
	g, err := Compile(constraint)
	if err != nil {
		panic(err)
	}
	return g
}

// String returns the source constraint.
func (g *Guard) String() string {
	return g.src
}

// Allows implements guard.Guard. A conflict rejects; a value that cannot
// be encoded is an evaluation error.
func (g *Guard) Allows(c guard.Candidate) (bool, error) {
	var subject any
	if c.Bound != nil {
		bound := make([]any, len(c.Bound))
		for i, b := range c.Bound {
			bound[i] = guard.Subject(b)
		}
		subject = bound
	} else {
		subject = guard.Subject(c.Value)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	v := g.ctx.Encode(subject)
	if err := v.Err(); err != nil {
		return false, fmt.Errorf("cueguard: %q: encode %T: %w", g.src, subject, err)
	}
	if err := g.constraint.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return false, nil
	}
	return true, nil
}
