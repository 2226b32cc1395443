package script

import (
	"maps"
	"slices"

	"github.com/chazu/rooted/gc"
)

// Func is the body of a native function object.
type Func func(rt *Runtime, this gc.Ref[gc.Object], args []gc.Ref[gc.Object]) error

// Object is a script object. Properties holding other objects are edges;
// string properties are plain data. A reflector is an Object whose native
// edge names the document object it exposes to scripts.
//
//gc:traceable
type Object struct {
	gc.Header
	class  string
	props  map[string]gc.Edge[gc.Object]
	values map[string]string
	native gc.Edge[gc.Object]
	call   Func `gc:"untraced"`
}

// Class returns the object's class name.
func Class(obj gc.Ref[*Object]) string {
	return obj.Get().class
}

// Callable reports whether obj is a function.
func Callable(obj gc.Ref[*Object]) bool {
	return obj.Get().call != nil
}

// IsReflector reports whether obj exposes a document object.
func IsReflector(obj gc.Ref[*Object]) bool {
	return !obj.Get().native.IsNil()
}

// Value returns a string property.
func Value(obj gc.Ref[*Object], name string) (string, bool) {
	v, ok := obj.Get().values[name]
	return v, ok
}

// SetValue sets a string property.
func SetValue(obj gc.Ref[*Object], name, value string) {
	o := obj.Get()
	if o.values == nil {
		o.values = make(map[string]string)
	}
	o.values[name] = value
}

// Keys returns the names of obj's object-valued properties in sorted order.
func Keys(obj gc.Ref[*Object]) []string {
	return slices.Sorted(maps.Keys(obj.Get().props))
}

// SetProperty points a property at v.
func SetProperty(obj gc.Ref[*Object], name string, v gc.Ref[gc.Object]) {
	o := obj.Get()
	if o.props == nil {
		o.props = make(map[string]gc.Edge[gc.Object])
	}
	var e gc.Edge[gc.Object] //gc:allow-unrooted
	e.Set(v)
	o.props[name] = e
}

// GetProperty returns the object a property points at.
func GetProperty(obj gc.Ref[*Object], name string) (gc.Temp[gc.Object], bool) {
	e, ok := obj.Get().props[name] //gc:allow-unrooted
	if !ok {
		return gc.Temp[gc.Object]{}, false
	}
	return e.Temp()
}

// DeleteProperty removes a property and reports whether it existed.
func DeleteProperty(obj gc.Ref[*Object], name string) bool {
	o := obj.Get()
	if _, ok := o.props[name]; !ok {
		return false
	}
	delete(o.props, name)
	return true
}

// NativeOf returns the document object a reflector exposes.
func NativeOf(obj gc.Ref[*Object]) (gc.Temp[gc.Object], bool) {
	return obj.Get().native.Temp()
}
