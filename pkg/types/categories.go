package types

import (
	"slices"

	"github.com/pkg/errors"
)

// DetectionClasses is the BDD100K detection category list in canonical order
var DetectionClasses = []string{
	"person",
	"rider",
	"car",
	"bus",
	"truck",
	"bike",
	"motor",
	"traffic light",
	"traffic sign",
	"train",
}

// CategorySet is an immutable ordered list of category names. The position of a
// name is its YOLO class index; position+1 is its COCO category id.
type CategorySet struct {
	names []string
	index map[string]int
}

// NewCategorySet builds a set from an ordered list of unique, non-empty names
func NewCategorySet(names []string) (*CategorySet, error) {
	if len(names) == 0 {
		return nil, errors.New("category list is empty")
	}
	index := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, errors.Errorf("category %d has an empty name", i)
		}
		if _, dup := index[n]; dup {
			return nil, errors.Errorf("duplicate category %q", n)
		}
		index[n] = i
	}
	return &CategorySet{names: slices.Clone(names), index: index}, nil
}

// MustCategorySet is NewCategorySet for static lists
func MustCategorySet(names []string) *CategorySet {
	cs, err := NewCategorySet(names)
	if err != nil {
		panic(err)
	}
	return cs
}

// Len returns the number of categories
func (c *CategorySet) Len() int {
	return len(c.names)
}

// Names returns a copy of the ordered names
func (c *CategorySet) Names() []string {
	return slices.Clone(c.names)
}

// Contains reports whether name is an allowed category
func (c *CategorySet) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Index returns the 0-based class index of name
func (c *CategorySet) Index(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// CocoID returns the 1-based COCO category id of name
func (c *CategorySet) CocoID(name string) (int, bool) {
	i, ok := c.index[name]
	return i + 1, ok
}

// Equal reports whether both sets hold the same names in the same order
func (c *CategorySet) Equal(other *CategorySet) bool {
	if c == nil || other == nil {
		return c == other
	}
	return slices.Equal(c.names, other.names)
}
