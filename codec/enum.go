package codec

import (
	"fmt"

	"github.com/jacentio/lattice/cell"
)

// Enum stores enum values as a string cell holding the member name.
// Member names must be unique and non-empty.
func Enum[E comparable](members map[E]string) Codec[E] {
	c := &enumCodec[E]{
		names:  make(map[E]string, len(members)),
		values: make(map[string]E, len(members)),
	}
	for v, name := range members {
		if name == "" {
			unsupported("enum member %v with empty name", v)
		}
		if prev, dup := c.values[name]; dup {
			unsupported("enum members %v and %v share name %q", prev, v, name)
		}
		c.names[v] = name
		c.values[name] = v
	}
	return c
}

type enumCodec[E comparable] struct {
	names  map[E]string
	values map[string]E
}

func (c *enumCodec[E]) nameOf(v E) (string, error) {
	name, ok := c.names[v]
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrEnumValue, v)
	}
	return name, nil
}

func (c *enumCodec[E]) valueOf(name string) (E, bool) {
	v, ok := c.values[name]
	return v, ok
}

func (c *enumCodec[E]) Encode(name string, v E, bag cell.Bag) error {
	member, err := c.nameOf(v)
	if err != nil {
		return fmt.Errorf("cell %q: %w", name, err)
	}
	bag[name] = cell.String(member)
	return nil
}

func (c *enumCodec[E]) Decode(name string, bag cell.Bag) (E, error) {
	var zero E
	cl, ok := bag[name]
	if !ok {
		return zero, nil
	}
	s, ok := cl.AsString()
	if !ok {
		return zero, kindErr(name, cell.KindString, cl)
	}
	v, ok := c.valueOf(s)
	if !ok {
		return zero, cellErrf(name, nil, "unknown enum member %q", s)
	}
	return v, nil
}

func (c *enumCodec[E]) AppendFrame(buf []byte, v E) ([]byte, error) {
	member, err := c.nameOf(v)
	if err != nil {
		return nil, err
	}
	return appendVarFrame(buf, []byte(member), false), nil
}

func (c *enumCodec[E]) ReadFrame(r *Reader) (E, error) {
	var zero E
	off := r.off
	b, _, err := readVarFrame(r)
	if err != nil {
		return zero, err
	}
	v, ok := c.valueOf(string(b))
	if !ok {
		return zero, dataErrf(r.data, off, nil, "unknown enum member %q", b)
	}
	return v, nil
}
