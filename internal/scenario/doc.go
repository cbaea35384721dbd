// Package scenario runs scripted dispatch rounds against CUE reaction
// declarations.
//
// # Scenario Format
//
//	name: first_choice
//	description: "Dog and Cat together beat Dog alone"
//	reactions: ../reactions/pets.cue
//	rounds:
//	  - timeout: 100ms
//	    steps:
//	      - provide: {type: Dog, fields: {name: baz, age: 3}}
//	      - provide: {type: Cat, fields: {lives: 9}}
//	        authority: 10
//	      - provide: {type: Dog, fields: {name: slow}}
//	        async: true
//	        delay: 50ms
//	    expect:
//	      fired: true
//	      reaction: stuff
//
// Provided values are Records: dynamically-typed values whose type name is
// the declared type and whose fields are visible to guard expressions.
// Every declared body records its name and bound arguments as the round
// result.
//
// All rounds of a scenario share one coordinator, so bound values persist
// from round to round unless a round sets reset: true.
//
// # Deterministic Testing
//
// Traces hold no identifiers or wall-clock durations, so identical
// scenarios produce identical traces for golden comparison. Asynchronous
// producers are always awaited after their round commits, and their
// outcome is recorded in step order.
package scenario
