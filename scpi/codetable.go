package scpi

import (
	"errors"
	"fmt"
)

// ErrUnknownCode is generated when a device returns a code that is not in a table
var ErrUnknownCode = errors.New("unknown code")

// CodeTable is a bijective mapping between device codes and engineering
// values, such as the range letters of a power meter
type CodeTable[C comparable, V comparable] struct {
	name    string
	codes   []C
	values  []V
	toCode  map[V]C
	toValue map[C]V
}

// NewCodeTable builds a table from parallel lists of codes and values.
// It panics if the lists differ in length or either contains a duplicate.
func NewCodeTable[C comparable, V comparable](name string, codes []C, values []V) *CodeTable[C, V] {
	if len(codes) != len(values) {
		panic(fmt.Sprintf("code table %s: %d codes for %d values", name, len(codes), len(values)))
	}
	t := &CodeTable[C, V]{
		name:    name,
		codes:   codes,
		values:  values,
		toCode:  make(map[V]C, len(codes)),
		toValue: make(map[C]V, len(codes)),
	}
	for i, c := range codes {
		v := values[i]
		if _, dup := t.toValue[c]; dup {
			panic(fmt.Sprintf("code table %s: duplicate code %v", name, c))
		}
		if _, dup := t.toCode[v]; dup {
			panic(fmt.Sprintf("code table %s: duplicate value %v", name, v))
		}
		t.toValue[c] = v
		t.toCode[v] = c
	}
	return t
}

// Code returns the device code for v, or an InvalidArgument if v is not in the table
func (t *CodeTable[C, V]) Code(v V) (C, error) {
	c, ok := t.toCode[v]
	if !ok {
		return c, &InvalidArgument{Setting: t.name, Value: v, Domain: fmt.Sprintf("one of %v", t.values)}
	}
	return c, nil
}

// Value returns the engineering value of code c
func (t *CodeTable[C, V]) Value(c C) (V, error) {
	v, ok := t.toValue[c]
	if !ok {
		return v, fmt.Errorf("%s: %w %v", t.name, ErrUnknownCode, c)
	}
	return v, nil
}

// Values returns the values of the table in definition order
func (t *CodeTable[C, V]) Values() []V {
	out := make([]V, len(t.values))
	copy(out, t.values)
	return out
}

// Codes returns the codes of the table in definition order
func (t *CodeTable[C, V]) Codes() []C {
	out := make([]C, len(t.codes))
	copy(out, t.codes)
	return out
}
