package column

import "fmt"

// Attribute describes a single attribute a dictionary can serve.
//
// Default is appended whenever a key has no value, either because the backing
// source does not know it or because a synchronous refresh did not complete.
// A nil Default means the type's zero value.
type Attribute struct {
	Name    string
	Type    Type
	Default any
}

// zeroValue returns the zero value for the attribute's type.
func (a Attribute) zeroValue() any {
	switch a.Type {
	case TypeUInt64:
		return uint64(0)
	case TypeInt64:
		return int64(0)
	case TypeFloat64:
		return float64(0)
	case TypeString:
		return ""
	default:
		return nil
	}
}

// AppendDefault appends the attribute's default value to c.
func (a Attribute) AppendDefault(c Column) error {
	d := a.Default
	if d == nil {
		d = a.zeroValue()
	}
	return c.Append(d)
}

// FetchRequest is an immutable descriptor of the attributes a lookup or an
// update must populate. It is opaque to the update queue, which only uses it
// to pre-allocate result columns.
type FetchRequest struct {
	attributes []Attribute
}

// NewFetchRequest builds a FetchRequest from the given attributes. Attribute
// names must be non-empty and unique, types must be valid, and non-nil
// defaults must match their attribute's type.
func NewFetchRequest(attrs ...Attribute) (*FetchRequest, error) {
	if len(attrs) == 0 {
		return nil, fmt.Errorf("column: fetch request needs at least one attribute")
	}

	seen := make(map[string]struct{}, len(attrs))
	owned := make([]Attribute, len(attrs))

	for i, a := range attrs {
		if a.Name == "" {
			return nil, fmt.Errorf("column: attribute %d has no name", i)
		}
		if _, dup := seen[a.Name]; dup {
			return nil, fmt.Errorf("column: duplicate attribute %q", a.Name)
		}
		seen[a.Name] = struct{}{}

		if _, err := New(a.Type); err != nil {
			return nil, fmt.Errorf("column: attribute %q: %w", a.Name, err)
		}
		if a.Default != nil {
			d, err := NormalizeValue(a.Type, a.Default)
			if err != nil {
				return nil, fmt.Errorf("column: attribute %q default: %w", a.Name, err)
			}
			a.Default = d
		}
		owned[i] = a
	}

	return &FetchRequest{attributes: owned}, nil
}

// MustFetchRequest is like NewFetchRequest but panics on error. Intended for
// statically known attribute sets.
func MustFetchRequest(attrs ...Attribute) *FetchRequest {
	r, err := NewFetchRequest(attrs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Size returns the number of requested attributes.
func (r *FetchRequest) Size() int {
	return len(r.attributes)
}

// Attributes returns the requested attributes. The returned slice must be
// treated as read-only.
func (r *FetchRequest) Attributes() []Attribute {
	return r.attributes
}

// MakeResultColumns pre-allocates one empty column per requested attribute,
// in attribute order.
func (r *FetchRequest) MakeResultColumns() []Column {
	cols := make([]Column, len(r.attributes))
	for i, a := range r.attributes {
		// Types were validated at construction.
		cols[i], _ = New(a.Type)
	}
	return cols
}
