// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"reflect"
	"sync"
)

// pointerFreeCache memoizes hasPointerKinds per type.
var pointerFreeCache sync.Map // map[reflect.Type]bool

// hasPointerKinds reports whether values of t carry references the garbage
// collector would have to trace. Arena memory is never scanned, so such
// references would dangle.
func hasPointerKinds(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Slice, reflect.Map,
		reflect.Interface, reflect.Func, reflect.Chan, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointerKinds(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointerKinds(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// assertPointerFree panics in debug builds when T cannot live in arena memory.
func assertPointerFree[T any]() {
	if !debugEnabled {
		return
	}
	t := reflect.TypeFor[T]()
	if v, ok := pointerFreeCache.Load(t); ok {
		if v.(bool) {
			fatalf(ErrPointerFields, "type %s", t)
		}
		return
	}
	bad := hasPointerKinds(t)
	pointerFreeCache.Store(t, bad)
	if bad {
		fatalf(ErrPointerFields, "type %s", t)
	}
}
