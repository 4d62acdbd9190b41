package graph

import "fmt"

// Kind identifies an entity table.
type Kind uint8

const (
	KindModule Kind = iota + 1
	KindModuleCustomData
	KindContentRoot
	KindSourceRoot
	KindFacet
	KindLibrary
	KindSDK
	KindArtifact
	KindPackagingElement
)

var kindNames = map[Kind]string{
	KindModule:           "module",
	KindModuleCustomData: "module-custom-data",
	KindContentRoot:      "content-root",
	KindSourceRoot:       "source-root",
	KindFacet:            "facet",
	KindLibrary:          "library",
	KindSDK:              "sdk",
	KindArtifact:         "artifact",
	KindPackagingElement: "packaging-element",
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindModule, KindModuleCustomData, KindContentRoot, KindSourceRoot,
		KindFacet, KindLibrary, KindSDK, KindArtifact, KindPackagingElement,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

// IsRoot reports whether entities of kind k have no structural parent.
func (k Kind) IsRoot() bool {
	switch k {
	case KindModule, KindLibrary, KindSDK, KindArtifact:
		return true
	}
	return false
}

// Cardinality describes how many children of one kind a parent may own.
type Cardinality uint8

const (
	// OneToOne allows at most one child; adding another replaces it.
	OneToOne Cardinality = iota + 1
	// OneToMany keeps an ordered list of children of one concrete shape.
	OneToMany
	// AbstractOneToMany keeps an ordered list of children drawn from a closed
	// set of variants sharing one structural contract.
	AbstractOneToMany
)

// Relation returns how parent owns children of kind child, or false when
// parent may not own such children at all.
func Relation(parent Data, child Kind) (Cardinality, bool) {
	switch parent.Kind() {
	case KindModule:
		switch child {
		case KindModuleCustomData:
			return OneToOne, true
		case KindContentRoot, KindFacet:
			return OneToMany, true
		}
	case KindContentRoot:
		if child == KindSourceRoot {
			return OneToMany, true
		}
	case KindArtifact:
		if child == KindPackagingElement {
			return OneToOne, true
		}
	case KindPackagingElement:
		if pe, ok := parent.(PackagingElement); ok && pe.Composite() && child == KindPackagingElement {
			return AbstractOneToMany, true
		}
	}
	return 0, false
}
