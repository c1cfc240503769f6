// Package orderby provides three-way comparators for sorting list views.
package orderby

import (
	"cmp"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// ParseSort splits a sort clause like "-created" into its field and order.
// A leading "-" means descending; a leading "+" or none means ascending.
func ParseSort(clause string) (string, Order) {
	clause = strings.TrimSpace(clause)
	if strings.HasPrefix(clause, "-") {
		return clause[1:], Desc
	}
	return strings.TrimPrefix(clause, "+"), Asc
}

// SortData returns a comparator over records that compares the values stored
// at field. Arrays and slices compare by length rather than by contents.
// Equal values compare as 0. Desc flips the sign.
func SortData(field string, order Order) func(a, b map[string]any) int {
	return By(func(r map[string]any) any { return r[field] }, order)
}

// By returns a comparator over any record type using key to extract the
// value to compare. Values are compared as described in Compare.
func By[T any](key func(T) any, order Order) func(a, b T) int {
	return func(a, b T) int {
		c := Compare(key(a), key(b))
		if order == Desc {
			return -c
		}
		return c
	}
}

// Compare orders two values. Nil (including nil pointers) sorts before
// everything else. Pointers are dereferenced. Numbers compare numerically
// across integer and float kinds, strings lexically, false before true,
// times chronologically, and arrays/slices by length. Values of different
// classes order by class (nil, bool, number, string, time, sequence, other)
// so that mixed columns still sort consistently.
func Compare(a, b any) int {
	va, vb := indirect(reflect.ValueOf(a)), indirect(reflect.ValueOf(b))
	ca, cb := classify(va), classify(vb)
	if ca != cb {
		return cmp.Compare(ca, cb)
	}

	switch ca {
	case classNil:
		return 0
	case classBool:
		return cmp.Compare(boolRank(va.Bool()), boolRank(vb.Bool()))
	case classNumber:
		fa, _ := number(va)
		fb, _ := number(vb)
		return cmp.Compare(fa, fb)
	case classString:
		return cmp.Compare(va.String(), vb.String())
	case classTime:
		ta, _ := asTime(va)
		tb, _ := asTime(vb)
		return ta.Compare(tb)
	case classSequence:
		return cmp.Compare(va.Len(), vb.Len())
	}
	return cmp.Compare(fmt.Sprint(va.Interface()), fmt.Sprint(vb.Interface()))
}

const (
	classNil = iota
	classBool
	classNumber
	classString
	classTime
	classSequence
	classOther
)

func classify(v reflect.Value) int {
	if !v.IsValid() {
		return classNil
	}
	if _, ok := asTime(v); ok {
		return classTime
	}
	if _, ok := number(v); ok {
		return classNumber
	}
	switch v.Kind() {
	case reflect.Bool:
		return classBool
	case reflect.String:
		return classString
	case reflect.Slice, reflect.Array:
		return classSequence
	}
	return classOther
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

var timeType = reflect.TypeOf(time.Time{})

// asTime accepts time.Time and any struct that embeds it.
func asTime(v reflect.Value) (time.Time, bool) {
	if v.Type() == timeType {
		return v.Interface().(time.Time), true
	}
	if v.Kind() == reflect.Struct {
		if f, ok := v.Type().FieldByName("Time"); ok && f.Anonymous && f.Type == timeType {
			return v.FieldByIndex(f.Index).Interface().(time.Time), true
		}
	}
	return time.Time{}, false
}

func number(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
