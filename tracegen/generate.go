package tracegen

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dave/jennifer/jen"
)

// Generate renders the Trace methods for model.
func Generate(model *PackageModel) (string, error) {
	f := jen.NewFilePathName(model.ImportPath, model.Name)
	f.HeaderComment("Code generated by tracegen. DO NOT EDIT.")
	f.ImportAlias(model.GCPath, "gc")

	for i := range model.Types {
		tm := &model.Types[i]
		var body []jen.Code
		for _, fm := range tm.Fields {
			if fm.Plan == nil {
				continue
			}
			body = append(body, emit(fm.Plan, "x."+fm.Name, 0)...)
		}
		f.Func().
			Params(jen.Id("x").Op("*").Id(tm.Name)).
			Id("Trace").
			Params(jen.Id("tr").Qual(model.GCPath, "Tracer")).
			Block(body...)
	}

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return "", fmt.Errorf("rendering %s: %w", model.ImportPath, err)
	}
	return buf.String(), nil
}

// emit returns the statements tracing expr according to p. depth numbers
// the loop variables of nested containers.
func emit(p *Plan, expr string, depth int) []jen.Code {
	switch p.Kind {
	case PlanEdge, PlanCall:
		return []jen.Code{jen.Id(expr).Dot("Trace").Call(jen.Id("tr"))}

	case PlanIndex:
		iv := loopVar("i", depth)
		return []jen.Code{
			jen.For(jen.Id(iv).Op(":=").Range().Id(expr)).
				Block(emit(p.Elem, expr+"["+iv+"]", depth+1)...),
		}

	case PlanRange:
		vv := loopVar("v", depth)
		return []jen.Code{
			jen.For(jen.List(jen.Id("_"), jen.Id(vv)).Op(":=").Range().Id(expr)).
				Block(emit(p.Elem, vv, depth+1)...),
		}

	case PlanStruct:
		var out []jen.Code
		for _, fp := range p.Fields {
			out = append(out, emit(fp.Plan, expr+"."+fp.Name, depth)...)
		}
		return out
	}
	return nil
}

func loopVar(base string, depth int) string {
	if depth == 0 {
		return base
	}
	return base + strconv.Itoa(depth)
}

// WriteFile generates model's Trace methods into the package directory. A
// package with no traceable types gets no file; a stale one is removed.
func WriteFile(model *PackageModel) (string, error) {
	path := filepath.Join(model.Dir, OutputFile)
	if len(model.Types) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("removing stale %s: %w", path, err)
		}
		return "", nil
	}

	code, err := Generate(model)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("cannot write %s: %w", path, err)
	}
	log.Infof("wrote %d Trace methods to %s", len(model.Types), path)
	return path, nil
}

// Run introspects every pattern and writes its generated file. It stops at
// the first package that fails.
func Run(patterns []string, opts Options) ([]string, error) {
	var written []string
	for _, pattern := range patterns {
		model, err := IntrospectPackage(pattern, opts)
		if err != nil {
			return written, fmt.Errorf("%s: %w", pattern, err)
		}
		path, err := WriteFile(model)
		if err != nil {
			return written, err
		}
		if path != "" {
			written = append(written, path)
		}
	}
	return written, nil
}
