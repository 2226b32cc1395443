// Package gc implements rooting and tracing for document objects whose
// storage is owned by the script engine's garbage collector.
//
// This package contains:
//   - the Trace contract and reflection-based trace verification
//   - Edge, Root, Ref and Temp handles and the states they encode
//   - the rooting Registry and nested rooting Scopes
//   - Heap, a mark-sweep stand-in for the script engine's collector
//   - Mutator and PeriodicCollector, which serialize heap access
//
// Native code never holds an Edge outside a traced field. It roots the edge
// into a Scope, borrows Refs from the Root for the rest of the call chain,
// and lets the Scope release the Root when the call returns:
//
//	s := heap.Enter()
//	defer s.Exit()
//	win, ok := doc.Get().Window().Root(s)
//	if !ok {
//		return
//	}
//	use(win.Borrow())
package gc
