package serializer

import (
	"fmt"
	"sort"

	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
)

// artifactCodec handles <artifact> entries and their packaging trees.
type artifactCodec struct{}

func (artifactCodec) component() string { return "ArtifactManager" }
func (artifactCodec) entityTag() string { return "artifact" }
func (artifactCodec) kind() graph.Kind  { return graph.KindArtifact }

func (artifactCodec) name(d graph.Data) string { return d.(graph.ArtifactData).Name }

func (artifactCodec) parse(env *Env, file string, el *filestore.Element, src graph.EntitySource, b *graph.Builder) {
	name := el.Attr("name")
	if name == "" {
		env.malformed(file, "artifact", fmt.Errorf("name: %w", ErrMissingAttribute))
		return
	}
	art := graph.ArtifactData{Name: name, Type: el.Attr("type")}
	if v, ok := el.LookupAttr("build-on-make"); ok {
		switch v {
		case "true":
			art.BuildOnMake = true
		case "false":
		default:
			env.malformed(file, "artifact "+name, fmt.Errorf("build-on-make=%q: %w", v, ErrBadAttribute))
			return
		}
	}
	if out := el.Child("output-path"); out != nil {
		art.OutputURL = out.Text
	}
	id, err := b.Add(0, src, art)
	if err != nil {
		env.malformed(file, "artifact "+name, fmt.Errorf("%w: %w", ErrDuplicateEntity, err))
		return
	}
	if root := el.Child("root"); root != nil {
		parsePackaging(env, file, root, id, src, b)
	}
}

// parsePackaging adds el and its subtree under parent. Malformed elements
// are reported and skipped with their subtrees.
func parsePackaging(env *Env, file string, el *filestore.Element, parent graph.EntityID, src graph.EntitySource, b *graph.Builder) {
	pe, err := packagingData(el)
	if err != nil {
		env.malformed(file, "packaging element", err)
		return
	}
	id, err := b.Add(parent, src, pe)
	if err != nil {
		env.malformed(file, "packaging element "+pe.ElementType(), err)
		return
	}
	children := el.ChildrenNamed("element")
	if !pe.Composite() {
		if len(children) > 0 {
			env.malformed(file, "packaging element "+pe.ElementType(), fmt.Errorf("leaf element has %d children: %w", len(children), ErrBadAttribute))
		}
		return
	}
	for _, c := range children {
		parsePackaging(env, file, c, id, src, b)
	}
}

func packagingData(el *filestore.Element) (graph.PackagingElement, error) {
	typ, ok := el.LookupAttr("id")
	if !ok {
		return nil, fmt.Errorf("id: %w", ErrMissingAttribute)
	}
	switch typ {
	case graph.ElementDirectory:
		return graph.DirectoryElement{Name: el.Attr("name")}, nil
	case graph.ElementArchive:
		return graph.ArchiveElement{Name: el.Attr("name")}, nil
	case graph.ElementModuleOutput:
		return graph.ModuleOutputElement{Module: el.Attr("name")}, nil
	case graph.ElementLibraryFiles:
		table, ok := graph.TableForLevel(el.Attr("level"), el.Attr("module-name"))
		if !ok {
			return nil, fmt.Errorf("library %s level %q: %w", el.Attr("name"), el.Attr("level"), ErrUnknownLevel)
		}
		return graph.LibraryFilesElement{Table: table, Name: el.Attr("name")}, nil
	case graph.ElementArtifactOutput:
		return graph.ArtifactOutputElement{Artifact: el.Attr("artifact-name")}, nil
	case graph.ElementFileCopy:
		return graph.FileCopyElement{Path: el.Attr("path"), OutputName: el.Attr("output-file-name")}, nil
	case graph.ElementDirectoryCopy:
		return graph.DirectoryCopyElement{Path: el.Attr("path")}, nil
	}
	props := make(map[string]string)
	for _, a := range el.Attrs {
		if a.Name != "id" {
			props[a.Name] = a.Value
		}
	}
	return graph.CustomElement{TypeID: typ, Properties: props}, nil
}

func (artifactCodec) render(r graph.Reader, e graph.Entity) *filestore.Element {
	art := e.Data.(graph.ArtifactData)
	el := filestore.NewElement("artifact")
	if art.Type != "" {
		el.SetAttr("type", art.Type)
	}
	if art.BuildOnMake {
		el.SetAttr("build-on-make", "true")
	}
	el.SetAttr("name", art.Name)
	if art.OutputURL != "" {
		el.Add(&filestore.Element{Name: "output-path", Text: art.OutputURL})
	}
	for _, c := range r.Children(e.ID) {
		el.Add(renderPackaging(r, c, "root"))
	}
	return el
}

func renderPackaging(r graph.Reader, id graph.EntityID, tag string) *filestore.Element {
	e, _ := r.Get(id)
	pe := e.Data.(graph.PackagingElement)
	el := filestore.NewElement(tag, "id", pe.ElementType())
	switch d := pe.(type) {
	case graph.DirectoryElement:
		el.SetAttr("name", d.Name)
	case graph.ArchiveElement:
		el.SetAttr("name", d.Name)
	case graph.ModuleOutputElement:
		el.SetAttr("name", d.Module)
	case graph.LibraryFilesElement:
		el.SetAttr("level", d.Table.Level())
		el.SetAttr("name", d.Name)
		if mod, ok := d.Table.Module(); ok {
			el.SetAttr("module-name", mod)
		}
	case graph.ArtifactOutputElement:
		el.SetAttr("artifact-name", d.Artifact)
	case graph.FileCopyElement:
		el.SetAttr("path", d.Path)
		if d.OutputName != "" {
			el.SetAttr("output-file-name", d.OutputName)
		}
	case graph.DirectoryCopyElement:
		el.SetAttr("path", d.Path)
	case graph.CustomElement:
		el.Attrs[0].Value = d.TypeID
		keys := make([]string, 0, len(d.Properties))
		for k := range d.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			el.SetAttr(k, d.Properties[k])
		}
	}
	if pe.Composite() {
		for _, c := range r.Children(id) {
			el.Add(renderPackaging(r, c, "element"))
		}
	}
	return el
}
