package ecs

type number interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// column is one field's storage: a flat slice indexed by entity index.
type column interface {
	kind() Kind
	grow(n int)
	reset(i uint32)
	get(i uint32) Value
	put(i uint32, v Value)
	float(i uint32) float64
	setFloat(i uint32, f float64)
}

func newColumn(k Kind) column {
	switch k {
	case KindI8:
		return &numColumn[int8]{k: k}
	case KindU8:
		return &numColumn[uint8]{k: k}
	case KindI16:
		return &numColumn[int16]{k: k}
	case KindU16:
		return &numColumn[uint16]{k: k}
	case KindI32:
		return &numColumn[int32]{k: k}
	case KindU32:
		return &numColumn[uint32]{k: k}
	case KindI64:
		return &numColumn[int64]{k: k}
	case KindU64:
		return &numColumn[uint64]{k: k}
	case KindF32:
		return &numColumn[float32]{k: k}
	case KindF64:
		return &numColumn[float64]{k: k}
	case KindString:
		return &stringColumn{}
	case KindEntity:
		return &entityColumn{}
	}
	return nil
}

type numColumn[T number] struct {
	k    Kind
	data []T
}

func (c *numColumn[T]) kind() Kind { return c.k }

func (c *numColumn[T]) grow(n int) {
	if n > len(c.data) {
		c.data = append(c.data, make([]T, n-len(c.data))...)
	}
}

func (c *numColumn[T]) reset(i uint32) {
	var zero T
	c.data[i] = zero
}

func (c *numColumn[T]) get(i uint32) Value {
	v := c.data[i]
	switch {
	case c.k.signed():
		return IntValue(c.k, int64(v))
	case c.k.unsigned():
		return UintValue(c.k, uint64(v))
	}
	return FloatValue(c.k, float64(v))
}

func (c *numColumn[T]) put(i uint32, v Value) {
	switch {
	case v.Kind.signed():
		c.data[i] = T(v.Int)
	case v.Kind.unsigned(), v.Kind == KindEntity:
		c.data[i] = T(v.Uint)
	default:
		c.data[i] = T(v.Float)
	}
}

func (c *numColumn[T]) float(i uint32) float64       { return float64(c.data[i]) }
func (c *numColumn[T]) setFloat(i uint32, f float64) { c.data[i] = T(f) }

type stringColumn struct {
	data []string
}

func (c *stringColumn) kind() Kind { return KindString }

func (c *stringColumn) grow(n int) {
	if n > len(c.data) {
		c.data = append(c.data, make([]string, n-len(c.data))...)
	}
}

func (c *stringColumn) reset(i uint32)           { c.data[i] = "" }
func (c *stringColumn) get(i uint32) Value       { return StringValue(c.data[i]) }
func (c *stringColumn) put(i uint32, v Value)    { c.data[i] = v.Str }
func (c *stringColumn) float(uint32) float64     { return 0 }
func (c *stringColumn) setFloat(uint32, float64) {}

type entityColumn struct {
	data []EntityID
}

func (c *entityColumn) kind() Kind { return KindEntity }

func (c *entityColumn) grow(n int) {
	if n > len(c.data) {
		c.data = append(c.data, make([]EntityID, n-len(c.data))...)
	}
}

func (c *entityColumn) reset(i uint32)               { c.data[i] = 0 }
func (c *entityColumn) get(i uint32) Value           { return EntityValue(c.data[i]) }
func (c *entityColumn) put(i uint32, v Value)        { c.data[i] = EntityID(v.Uint) }
func (c *entityColumn) float(i uint32) float64       { return float64(c.data[i]) }
func (c *entityColumn) setFloat(i uint32, f float64) { c.data[i] = EntityID(uint64(f)) }
