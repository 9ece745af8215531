package codec

import (
	"cmp"
	"slices"

	"github.com/jacentio/lattice/cell"
)

const (
	pairKey    = "key"
	pairValue  = "value"
	dictKeys   = "keys"
	dictValues = "values"
)

// KV is one key/value pair.
type KV[K, V any] struct {
	Key   K
	Value V
}

// Pair stores a key/value pair as name__key and name__value.
func Pair[K, V any](kc Codec[K], vc Codec[V]) Codec[KV[K, V]] {
	p := &pairCodec[K, V]{kc: kc, vc: vc}
	kf, kok := kc.(Framer[K])
	vf, vok := vc.(Framer[V])
	if kok && vok {
		return &pairFramer[K, V]{pairCodec: p, kf: kf, vf: vf}
	}
	return p
}

type pairCodec[K, V any] struct {
	kc   Codec[K]
	vc   Codec[V]
	cols columns
	keys Codec[[]K]
	vals Codec[[]V]
}

func (p *pairCodec[K, V]) Encode(name string, v KV[K, V], bag cell.Bag) error {
	if err := p.kc.Encode(join(name, pairKey), v.Key, bag); err != nil {
		return err
	}
	return p.vc.Encode(join(name, pairValue), v.Value, bag)
}

func (p *pairCodec[K, V]) Decode(name string, bag cell.Bag) (KV[K, V], error) {
	var kv KV[K, V]
	var err error
	if kv.Key, err = p.kc.Decode(join(name, pairKey), bag); err != nil {
		return kv, err
	}
	kv.Value, err = p.vc.Decode(join(name, pairValue), bag)
	return kv, err
}

func (p *pairCodec[K, V]) prepareColumns() {
	p.cols.prepare(func() {
		p.keys = Array(p.kc)
		p.vals = Array(p.vc)
	})
}

func (p *pairCodec[K, V]) encodeColumn(name string, vs []KV[K, V], bag cell.Bag) error {
	keys := make([]K, len(vs))
	vals := make([]V, len(vs))
	for i, kv := range vs {
		keys[i], vals[i] = kv.Key, kv.Value
	}
	if err := p.keys.Encode(join(name, pairKey), keys, bag); err != nil {
		return err
	}
	return p.vals.Encode(join(name, pairValue), vals, bag)
}

func (p *pairCodec[K, V]) decodeColumn(name string, bag cell.Bag) ([]KV[K, V], error) {
	keys, err := p.keys.Decode(join(name, pairKey), bag)
	if err != nil {
		return nil, err
	}
	vals, err := p.vals.Decode(join(name, pairValue), bag)
	if err != nil {
		return nil, err
	}
	n := minLen(lenOrAbsent(keys), lenOrAbsent(vals))
	if n < 0 {
		return nil, nil
	}
	out := make([]KV[K, V], n)
	for i := range out {
		if keys != nil {
			out[i].Key = keys[i]
		}
		if vals != nil {
			out[i].Value = vals[i]
		}
	}
	return out, nil
}

type pairFramer[K, V any] struct {
	*pairCodec[K, V]
	kf Framer[K]
	vf Framer[V]
}

func (p *pairFramer[K, V]) AppendFrame(buf []byte, v KV[K, V]) ([]byte, error) {
	buf, err := p.kf.AppendFrame(buf, v.Key)
	if err != nil {
		return nil, err
	}
	return p.vf.AppendFrame(buf, v.Value)
}

func (p *pairFramer[K, V]) ReadFrame(r *Reader) (KV[K, V], error) {
	var kv KV[K, V]
	var err error
	if kv.Key, err = p.kf.ReadFrame(r); err != nil {
		return kv, err
	}
	kv.Value, err = p.vf.ReadFrame(r)
	return kv, err
}

// Dict stores a map as parallel arrays name__keys and name__values, with
// keys in ascending order so the encoding is deterministic.
func Dict[K cmp.Ordered, V any](kc Codec[K], vc Codec[V]) Codec[map[K]V] {
	d := &dictCodec[K, V]{keys: Array(kc), vals: Array(vc)}
	kf, kok := kc.(Framer[K])
	vf, vok := vc.(Framer[V])
	if kok && vok {
		return &dictFramer[K, V]{dictCodec: d, pairs: &pairFramer[K, V]{kf: kf, vf: vf}}
	}
	return d
}

type dictCodec[K cmp.Ordered, V any] struct {
	keys Codec[[]K]
	vals Codec[[]V]
}

func sortedEntries[K cmp.Ordered, V any](m map[K]V) ([]K, []V) {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	vals := make([]V, len(keys))
	for i, k := range keys {
		vals[i] = m[k]
	}
	return keys, vals
}

func (d *dictCodec[K, V]) Encode(name string, m map[K]V, bag cell.Bag) error {
	if m == nil {
		return nil
	}
	keys, vals := sortedEntries(m)
	if err := d.keys.Encode(join(name, dictKeys), keys, bag); err != nil {
		return err
	}
	return d.vals.Encode(join(name, dictValues), vals, bag)
}

func (d *dictCodec[K, V]) Decode(name string, bag cell.Bag) (map[K]V, error) {
	keys, err := d.keys.Decode(join(name, dictKeys), bag)
	if err != nil || keys == nil {
		return nil, err
	}
	vals, err := d.vals.Decode(join(name, dictValues), bag)
	if err != nil {
		return nil, err
	}
	n := minLen(len(keys), lenOrAbsent(vals))
	m := make(map[K]V, n)
	for i := 0; i < n; i++ {
		var v V
		if vals != nil {
			v = vals[i]
		}
		m[keys[i]] = v
	}
	return m, nil
}

// dictFramer nests a dictionary inside an outer frame as a collection of
// key/value pairs.
type dictFramer[K cmp.Ordered, V any] struct {
	*dictCodec[K, V]
	pairs *pairFramer[K, V]
}

func (d *dictFramer[K, V]) AppendFrame(buf []byte, m map[K]V) ([]byte, error) {
	if m == nil {
		return append(buf, frameNull), nil
	}
	if len(m) == 0 {
		return append(buf, frameEmpty), nil
	}
	keys, vals := sortedEntries(m)
	kvs := make([]KV[K, V], len(keys))
	for i := range keys {
		kvs[i] = KV[K, V]{keys[i], vals[i]}
	}
	inner, err := appendCollection(nil, Framer[KV[K, V]](d.pairs), kvs)
	if err != nil {
		return nil, err
	}
	return appendVarFrame(buf, inner, false), nil
}

func (d *dictFramer[K, V]) ReadFrame(r *Reader) (map[K]V, error) {
	b, null, err := readVarFrame(r)
	if err != nil || null {
		return nil, err
	}
	m := make(map[K]V)
	if len(b) == 0 {
		return m, nil
	}
	inner := NewReader(b)
	kvs, err := readCollection(inner, Framer[KV[K, V]](d.pairs))
	if err != nil {
		return nil, err
	}
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m, inner.expectEnd()
}
