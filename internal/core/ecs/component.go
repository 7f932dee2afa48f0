package ecs

import "fmt"

// Field describes one scalar attribute of a component.
type Field struct {
	Name string
	Kind Kind
}

// Schema is the fixed shape of a component. A schema with no fields is a tag.
type Schema struct {
	Name   string
	Fields []Field
}

// ComponentID is the registration index of a component inside its World.
type ComponentID uint16

// Store holds one component as parallel columns, one per field, indexed by
// entity index ("structure of arrays"). Column slots are only meaningful
// while Has reports true for the entity.
type Store struct {
	id      ComponentID
	schema  Schema
	fields  map[string]int
	present []EntityID // owner per index, 0 when absent
	cols    []column
	count   int
	version uint64 // bumped on every membership change
}

func newStore(id ComponentID, schema Schema) (*Store, error) {
	s := &Store{
		id:     id,
		schema: schema,
		fields: make(map[string]int, len(schema.Fields)),
		cols:   make([]column, len(schema.Fields)),
	}
	for i, f := range schema.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("component %s: field %d has no name", schema.Name, i)
		}
		if _, dup := s.fields[f.Name]; dup {
			return nil, fmt.Errorf("component %s: duplicate field %s", schema.Name, f.Name)
		}
		if !f.Kind.Valid() {
			return nil, fmt.Errorf("component %s: field %s has invalid kind %d", schema.Name, f.Name, f.Kind)
		}
		s.fields[f.Name] = i
		s.cols[i] = newColumn(f.Kind)
	}
	return s, nil
}

func (s *Store) ID() ComponentID { return s.id }
func (s *Store) Name() string    { return s.schema.Name }
func (s *Store) Schema() Schema  { return s.schema }
func (s *Store) IsTag() bool     { return len(s.cols) == 0 }
func (s *Store) Len() int        { return s.count }
func (s *Store) Version() uint64 { return s.version }

// FieldIndex resolves a field name to its column index.
func (s *Store) FieldIndex(name string) (int, bool) {
	i, ok := s.fields[name]
	return i, ok
}

func (s *Store) ensure(n int) {
	if n <= len(s.present) {
		return
	}
	s.present = append(s.present, make([]EntityID, n-len(s.present))...)
	for _, c := range s.cols {
		c.grow(n)
	}
}

// Has reports whether id currently carries this component.
func (s *Store) Has(id EntityID) bool {
	idx := id.Index()
	return int(idx) < len(s.present) && s.present[idx] == id && id != 0
}

// Add attaches the component with zeroed fields. Adding twice keeps the
// existing values and returns false.
func (s *Store) Add(id EntityID) bool {
	if id == 0 {
		return false
	}
	if s.Has(id) {
		return false
	}
	idx := id.Index()
	s.ensure(int(idx) + 1)
	s.present[idx] = id
	for _, c := range s.cols {
		c.reset(idx)
	}
	s.count++
	s.version++
	return true
}

// Remove detaches the component. Removing an absent component is a no-op.
func (s *Store) Remove(id EntityID) {
	if !s.Has(id) {
		return
	}
	s.present[id.Index()] = 0
	s.count--
	s.version++
}

// Float reads a numeric field as float64. Returns false when id lacks the
// component.
func (s *Store) Float(id EntityID, field int) (float64, bool) {
	if !s.Has(id) {
		return 0, false
	}
	return s.cols[field].float(id.Index()), true
}

// F is Float without the membership flag, for callers that already checked Has.
func (s *Store) F(id EntityID, field int) float64 {
	v, _ := s.Float(id, field)
	return v
}

// SetFloat writes a numeric field, converting to the column's type.
func (s *Store) SetFloat(id EntityID, field int, v float64) bool {
	if !s.Has(id) {
		return false
	}
	s.cols[field].setFloat(id.Index(), v)
	return true
}

func (s *Store) Entity(id EntityID, field int) EntityID {
	if !s.Has(id) || s.cols[field].kind() != KindEntity {
		return 0
	}
	return s.cols[field].get(id.Index()).Entity()
}

func (s *Store) SetEntity(id EntityID, field int, ref EntityID) bool {
	if !s.Has(id) || s.cols[field].kind() != KindEntity {
		return false
	}
	s.cols[field].put(id.Index(), EntityValue(ref))
	return true
}

func (s *Store) Text(id EntityID, field int) string {
	if !s.Has(id) {
		return ""
	}
	return s.cols[field].get(id.Index()).Str
}

func (s *Store) SetText(id EntityID, field int, v string) bool {
	if !s.Has(id) || s.cols[field].kind() != KindString {
		return false
	}
	s.cols[field].put(id.Index(), StringValue(v))
	return true
}

// Value reads a field as a tagged Value.
func (s *Store) Value(id EntityID, field int) (Value, bool) {
	if !s.Has(id) || field < 0 || field >= len(s.cols) {
		return Value{}, false
	}
	return s.cols[field].get(id.Index()), true
}

// SetValue writes a tagged Value. The value kind must match the column kind.
func (s *Store) SetValue(id EntityID, field int, v Value) error {
	if !s.Has(id) {
		return fmt.Errorf("component %s: entity %d not present", s.schema.Name, id)
	}
	if field < 0 || field >= len(s.cols) {
		return fmt.Errorf("component %s: field %d out of range", s.schema.Name, field)
	}
	if want := s.cols[field].kind(); want != v.Kind {
		return fmt.Errorf("component %s: field %s is %s, got %s", s.schema.Name, s.schema.Fields[field].Name, want, v.Kind)
	}
	s.cols[field].put(id.Index(), v)
	return nil
}

// Row returns all field values of id in schema order.
func (s *Store) Row(id EntityID) []Value {
	if !s.Has(id) {
		return nil
	}
	row := make([]Value, len(s.cols))
	for i, c := range s.cols {
		row[i] = c.get(id.Index())
	}
	return row
}
