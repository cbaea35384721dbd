// Package decl loads reaction declarations from CUE.
//
// A declaration file lists reactions by name:
//
//	reaction: {
//		stuff: {
//			priority: 2
//			slots: [{type: "Dog", guard: {lua: "value.age > 5"}}, {type: "Cat"}]
//		}
//		lonely: {
//			priority: 1
//			slots: [{type: "Dog", minAuthority: 10}]
//		}
//		fallback: priority: 0
//	}
//
// Parse checks the file against the embedded schema and yields a File of
// Declarations. Validate and Shadowed analyze a File without executing
// anything. Build resolves type and body names through a Resolver and
// compiles guards, producing timebox.ReactionSpec values ready for
// timebox.New. Compile does both steps.
//
// Reaction, type and body names are NFC-normalized.
package decl
