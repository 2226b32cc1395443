package gc

import (
	"reflect"
	"slices"
	"unsafe"
)

// edgeField is implemented by every Edge instantiation and nothing else.
type edgeField interface {
	edgeID() ID
}

var (
	edgeFieldType = reflect.TypeFor[edgeField]()
	headerType    = reflect.TypeFor[Header]()
)

// ReflectEdges walks v by reflection and returns the identity of every
// non-nil Edge reachable by value: struct fields (embedded or not), array
// and slice elements, and map values. Pointers, interfaces and the object
// Header are not followed, matching the rules tracegen derives Trace from.
//
// It is the reference implementation the heap checks generated Trace
// methods against when built WithTraceVerification.
func ReflectEdges(v any) []ID {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	} else {
		rv = addressable(rv)
	}

	var ids []ID
	walkEdges(rv, &ids)
	return ids
}

func walkEdges(v reflect.Value, ids *[]ID) {
	t := v.Type()
	if t == headerType {
		return
	}
	if t.Implements(edgeFieldType) {
		if id := accessible(v).Interface().(edgeField).edgeID(); id != 0 {
			*ids = append(*ids, id)
		}
		return
	}

	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			walkEdges(accessible(v.Field(i)), ids)
		}
	case reflect.Array, reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			walkEdges(accessible(v.Index(i)), ids)
		}
	case reflect.Map:
		iter := accessible(v).MapRange()
		for iter.Next() {
			walkEdges(addressable(iter.Value()), ids)
		}
	}
}

// accessible strips the read-only flag reflect puts on values reached
// through unexported fields, so their methods can be called.
func accessible(v reflect.Value) reflect.Value {
	if v.CanInterface() || !v.CanAddr() {
		return v
	}
	return reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
}

func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	c := reflect.New(v.Type()).Elem()
	c.Set(v)
	return c
}

// sameEdges reports whether a and b hold the same identities with the same
// multiplicity.
func sameEdges(a, b []ID) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
