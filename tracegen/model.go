// Package tracegen derives Trace methods for structs annotated
// //gc:traceable and writes them to zz_generated.trace.go.
package tracegen

import (
	"go/token"
	"go/types"
)

// DefaultGCPath is the import path of the collector package.
const DefaultGCPath = "github.com/chazu/rooted/gc"

// OutputFile is the name of the generated file in each package.
const OutputFile = "zz_generated.trace.go"

// Directive marks a struct type for generation.
const Directive = "//gc:traceable"

// PackageModel is the set of traceable types found in one package.
type PackageModel struct {
	ImportPath string
	Name       string
	Dir        string
	GCPath     string
	Types      []TypeModel
}

// TypeModel is one annotated struct.
type TypeModel struct {
	Name   string
	Pos    token.Position
	Fields []FieldModel
}

// Traced reports whether any field contributes to the trace.
func (tm *TypeModel) Traced() bool {
	for _, f := range tm.Fields {
		if f.Plan != nil {
			return true
		}
	}
	return false
}

// FieldModel is one struct field and how it is traced. A nil Plan means the
// field holds no edges.
type FieldModel struct {
	Name     string
	GoType   types.Type
	TypeStr  string
	Embedded bool
	Untraced bool
	Plan     *Plan
}

// PlanKind says how a value is traced.
type PlanKind uint8

const (
	// PlanEdge reports a gc.Edge.
	PlanEdge PlanKind = iota + 1
	// PlanCall calls the value's own Trace method.
	PlanCall
	// PlanIndex loops over a slice or array.
	PlanIndex
	// PlanRange loops over map values.
	PlanRange
	// PlanStruct traces the fields of an anonymous struct in place.
	PlanStruct
)

func (k PlanKind) String() string {
	switch k {
	case PlanEdge:
		return "edge"
	case PlanCall:
		return "call"
	case PlanIndex:
		return "index"
	case PlanRange:
		return "range"
	case PlanStruct:
		return "struct"
	default:
		return "none"
	}
}

// Plan is the tracing recipe for a value of some type.
type Plan struct {
	Kind   PlanKind
	Elem   *Plan       // PlanIndex, PlanRange
	Fields []FieldPlan // PlanStruct
}

// FieldPlan is a traced field of an anonymous struct.
type FieldPlan struct {
	Name string
	Plan *Plan
}
