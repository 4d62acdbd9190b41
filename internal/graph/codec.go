package graph

import (
	"encoding/json"
	"fmt"
)

// EncodeData serializes d for persistence. variant is the packaging element
// type for packaging elements and empty otherwise.
func EncodeData(d Data) (variant string, raw []byte, err error) {
	if pe, ok := d.(PackagingElement); ok {
		variant = pe.ElementType()
	}
	raw, err = json.Marshal(d)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", d.Kind(), err)
	}
	return variant, raw, nil
}

// DecodeData is the inverse of EncodeData.
func DecodeData(kind Kind, variant string, raw []byte) (Data, error) {
	switch kind {
	case KindModule:
		return decodeAs[ModuleData](raw)
	case KindModuleCustomData:
		return decodeAs[ModuleCustomData](raw)
	case KindContentRoot:
		return decodeAs[ContentRootData](raw)
	case KindSourceRoot:
		return decodeAs[SourceRootData](raw)
	case KindFacet:
		return decodeAs[FacetData](raw)
	case KindLibrary:
		return decodeAs[LibraryData](raw)
	case KindSDK:
		return decodeAs[SDKData](raw)
	case KindArtifact:
		return decodeAs[ArtifactData](raw)
	case KindPackagingElement:
		switch variant {
		case ElementDirectory:
			return decodeAs[DirectoryElement](raw)
		case ElementArchive:
			return decodeAs[ArchiveElement](raw)
		case ElementModuleOutput:
			return decodeAs[ModuleOutputElement](raw)
		case ElementLibraryFiles:
			return decodeAs[LibraryFilesElement](raw)
		case ElementArtifactOutput:
			return decodeAs[ArtifactOutputElement](raw)
		case ElementFileCopy:
			return decodeAs[FileCopyElement](raw)
		case ElementDirectoryCopy:
			return decodeAs[DirectoryCopyElement](raw)
		case ElementCustom:
			return decodeAs[CustomElement](raw)
		}
		return nil, fmt.Errorf("decode: unknown packaging element type %q", variant)
	}
	return nil, fmt.Errorf("decode: unknown kind %s", kind)
}

func decodeAs[T Data](raw []byte) (Data, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
