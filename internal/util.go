package internal

import "reflect"

// IsTypedNil reports whether v is nil or an interface holding a nil pointer, slice,
// map, func, chan or interface.
func IsTypedNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

type sized interface {
	Len() int
}

// IsEmptyCollection reports whether v is collection-shaped and holds no elements.
//
// Slices, arrays, maps and values implementing Len() int are collection-shaped.
// Pointers are followed; a nil pointer is not a collection. Structs and scalars
// always report false.
func IsEmptyCollection(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(sized); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return false
		}
		return s.Len() == 0
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	default:
		return false
	}
}
