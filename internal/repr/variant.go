package repr

import "strings"

const (
	// Separator splits a variant name into its base and representation parts
	Separator = "@"
	// BaseReprName is the representation name reported for base variants
	BaseReprName = "Base"
)

// Variant is a parsed variant name. "Main" is the base of its family,
// "Main@BBox" is its BBox representation.
type Variant struct {
	Base           string
	Representation string

	// set when the raw name carried a separator, so "Main@" formats back
	// to "Main@" and not "Main"
	separated bool
}

// ParseVariant splits name at the first separator.
func ParseVariant(name string) Variant {
	base, rep, found := strings.Cut(name, Separator)
	return Variant{Base: base, Representation: rep, separated: found}
}

// NewVariant composes the variant of base for the representation name.
// BaseReprName and the empty name select the base variant, any other name is
// composed as "{base}@{name}".
func NewVariant(base, reprName string) Variant {
	base = BaseVariantName(base)
	if reprName == "" || reprName == BaseReprName {
		return Variant{Base: base}
	}
	return Variant{Base: base, Representation: reprName, separated: true}
}

// String formats the variant back into a variant name.
func (v Variant) String() string {
	if !v.separated && v.Representation == "" {
		return v.Base
	}
	return v.Base + Separator + v.Representation
}

// IsBase reports whether the variant is the base of its family.
func (v Variant) IsBase() bool {
	return !v.separated && v.Representation == ""
}

// Repr returns the representation name, BaseReprName for base variants.
func (v Variant) Repr() string {
	if v.IsBase() {
		return BaseReprName
	}
	return v.Representation
}

// WithRepr returns the sibling variant for the representation name.
func (v Variant) WithRepr(reprName string) Variant {
	return NewVariant(v.Base, reprName)
}

// BaseVariantName strips everything from the first separator on.
func BaseVariantName(name string) string {
	base, _, _ := strings.Cut(name, Separator)
	return base
}
