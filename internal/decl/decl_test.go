package decl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timebox/internal/timebox"
)

type Dog struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type Cat struct {
	Lives int `json:"lives"`
}

const petReactions = `
reaction: {
	stuff: {
		priority: 3
		slots: [{type: "Dog"}, {type: "Cat"}]
	}
	old: {
		priority: 2
		slots: [{type: "Dog", guard: {lua: "value.age > 5"}}]
	}
	pack: {
		priority: 1
		slots: [{type: "Dog", gather: true, minAuthority: 2, guard: {cue: "{name: =~\"^B\"}"}}]
		body: "record"
	}
	fallback: priority: 0
}
`

func record(name string) timebox.Body[string] {
	return func(_ context.Context, _ timebox.Args, r *timebox.ResultBox[string]) error {
		r.Set(name)
		return nil
	}
}

func petRegistry() *Registry[string] {
	return NewRegistry[string]().
		RegisterType("Dog", timebox.TypeOf[Dog]()).
		RegisterType("Cat", timebox.TypeOf[Cat]()).
		RegisterBody("stuff", record("stuff")).
		RegisterBody("old", record("old")).
		RegisterBody("record", record("record")).
		RegisterBody("fallback", record("fallback"))
}

func TestParseBasic(t *testing.T) {
	f, err := Parse([]byte(petReactions), "pets.cue")
	require.NoError(t, err)
	require.Len(t, f.Declarations, 4)

	stuff := f.Declarations[0]
	assert.Equal(t, "stuff", stuff.Name)
	assert.Equal(t, 3, stuff.Priority)
	assert.Equal(t, "stuff", stuff.Body, "body defaults to the reaction name")
	require.Len(t, stuff.Slots, 2)
	assert.Equal(t, "Cat", stuff.Slots[1].Type)
	assert.False(t, stuff.Slots[0].Gather)
	assert.Zero(t, stuff.Slots[0].MinAuthority)

	old := f.Declarations[1]
	require.NotNil(t, old.Slots[0].Guard)
	assert.Equal(t, GuardDecl{Lang: GuardLua, Expr: "value.age > 5"}, *old.Slots[0].Guard)

	pack := f.Declarations[2]
	assert.Equal(t, "record", pack.Body)
	assert.True(t, pack.Slots[0].Gather)
	assert.Equal(t, 2, pack.Slots[0].MinAuthority)
	assert.Equal(t, GuardCUE, pack.Slots[0].Guard.Lang)

	fallback := f.Declarations[3]
	assert.Empty(t, fallback.Slots)
}

func TestParseSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "syntax", src: `reaction: { a: { priority: `},
		{name: "missing priority", src: `reaction: a: slots: []`},
		{name: "priority not int", src: `reaction: a: priority: "high"`},
		{name: "unknown field", src: `reaction: a: {priority: 1, prio: 2}`},
		{name: "negative authority", src: `reaction: a: {priority: 1, slots: [{type: "Dog", minAuthority: -1}]}`},
		{name: "empty type", src: `reaction: a: {priority: 1, slots: [{type: ""}]}`},
		{name: "guard both languages", src: `reaction: a: {priority: 1, guard: {lua: "true", cue: "_"}}`},
		{name: "guard no language", src: `reaction: a: {priority: 1, guard: {}}`},
		{name: "no reactions", src: `other: 1`},
		{name: "empty reactions", src: `reaction: {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.cue")
			assert.Error(t, err)
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse([]byte("reaction: a: {\n\tpriority: \"x\"\n}\n"), "pos.cue")
	require.Error(t, err)

	assert.Contains(t, err.Error(), "priority")

	var ce *CompileError
	if errors.As(err, &ce) && ce.Pos.IsValid() {
		assert.Equal(t, "pos.cue", ce.Pos.Filename())
	}
}

func TestParseNormalizesNames(t *testing.T) {
	// Decomposed forms: "e" + U+0301 and "e" + U+0300.
	src := `reaction: "cafe\u0301": {priority: 1, slots: [{type: "Cre\u0300me"}]}`

	f, err := Parse([]byte(src), "nfc.cue")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", f.Declarations[0].Name)
	assert.Equal(t, "caf\u00e9", f.Declarations[0].Body)
	assert.Equal(t, "Cr\u00e8me", f.Declarations[0].Slots[0].Type)
}

func TestCompileBuildsSpecs(t *testing.T) {
	specs, err := Compile([]byte(petReactions), "pets.cue", petRegistry())
	require.NoError(t, err)
	require.Len(t, specs, 4)

	for i, want := range []int{3, 2, 1, 0} {
		assert.Equal(t, want, specs[i].Priority)
	}
	assert.Equal(t, timebox.TypeOf[Dog](), specs[0].Slots[0].Type)
	assert.NotNil(t, specs[1].Slots[0].Guard)
	assert.True(t, specs[2].Slots[0].Gather)
	assert.Equal(t, "pack", specs[2].Name)
}

func TestCompileEndToEnd(t *testing.T) {
	specs, err := Compile([]byte(petReactions), "pets.cue", petRegistry())
	require.NoError(t, err)

	tests := []struct {
		name    string
		provide []any
		want    string
	}{
		{name: "both", provide: []any{Dog{}, Cat{}}, want: "stuff"},
		{name: "old dog", provide: []any{Dog{Age: 10}}, want: "old"},
		{name: "young dog", provide: []any{Dog{Age: 1}}, want: "fallback"},
		{name: "nothing", want: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := timebox.New(specs)
			require.NoError(t, err)
			for _, v := range tt.provide {
				require.NoError(t, c.Provide(v, 0))
			}

			out, err := c.React(context.Background(), 10*time.Millisecond)
			require.NoError(t, err)
			got, ok := out.Result()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileGatherWithAuthorityAndCUEGuard(t *testing.T) {
	specs, err := Compile([]byte(petReactions), "pets.cue", petRegistry())
	require.NoError(t, err)

	c, err := timebox.New(specs[2:3])
	require.NoError(t, err)

	require.NoError(t, c.Provide(Dog{Name: "Bean"}, 2))
	require.NoError(t, c.Provide(Dog{Name: "Rex"}, 2))
	require.NoError(t, c.Provide(Dog{Name: "Bouncer"}, 1))

	out, err := c.React(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "pack", out.Reaction)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{name: "unknown type", src: `reaction: stuff: {priority: 1, slots: [{type: "Fish"}]}`, field: "reaction.stuff.slots[0].type"},
		{name: "unknown body", src: `reaction: nope: priority: 1`, field: "reaction.nope.body"},
		{name: "bad lua guard", src: `reaction: stuff: {priority: 1, slots: [{type: "Dog", guard: {lua: "value.age >"}}]}`, field: "reaction.stuff.slots[0].guard"},
		{name: "bad cue reaction guard", src: `reaction: stuff: {priority: 1, guard: {cue: "{a: >}"}}`, field: "reaction.stuff.guard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]byte(tt.src), "bad.cue", petRegistry())
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestBuildDuplicatePriority(t *testing.T) {
	src := `reaction: {stuff: priority: 1, old: priority: 1}`

	_, err := Compile([]byte(src), "dup.cue", petRegistry())
	require.Error(t, err)
	assert.True(t, timebox.IsDuplicatePriority(err))
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{
		Field:   "reaction.a.body",
		Message: "no body named \"a\"",
	}
	assert.Equal(t, "reaction.a.body: no body named \"a\"", err.Error())
}
