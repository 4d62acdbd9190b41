package serializer

import (
	"fmt"

	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
)

// sdkCodec handles <jdk> entries of the global SDK table.
type sdkCodec struct{}

func (sdkCodec) component() string { return "ProjectJdkTable" }
func (sdkCodec) entityTag() string { return "jdk" }
func (sdkCodec) kind() graph.Kind  { return graph.KindSDK }

func (sdkCodec) name(d graph.Data) string { return d.(graph.SDKData).Name }

func value(el *filestore.Element, child string) string {
	if c := el.Child(child); c != nil {
		return c.Attr("value")
	}
	return ""
}

func (sdkCodec) parse(env *Env, file string, el *filestore.Element, src graph.EntitySource, b *graph.Builder) {
	sdk := graph.SDKData{
		Name:     value(el, "name"),
		Type:     value(el, "type"),
		Version:  value(el, "version"),
		HomePath: value(el, "homePath"),
	}
	if sdk.Name == "" {
		env.malformed(file, "jdk", fmt.Errorf("name: %w", ErrMissingAttribute))
		return
	}
	if roots := el.Child("roots"); roots != nil {
		for _, r := range roots.ChildrenNamed("root") {
			sdk.Roots = append(sdk.Roots, graph.LibraryRoot{URL: r.Attr("url"), Type: r.Attr("type")})
		}
	}
	if _, err := b.Add(0, src, sdk); err != nil {
		env.malformed(file, "jdk "+sdk.Name, fmt.Errorf("%w: %w", ErrDuplicateEntity, err))
	}
}

func (sdkCodec) render(_ graph.Reader, e graph.Entity) *filestore.Element {
	sdk := e.Data.(graph.SDKData)
	el := filestore.NewElement("jdk", "version", "2")
	el.Add(filestore.NewElement("name", "value", sdk.Name))
	el.Add(filestore.NewElement("type", "value", sdk.Type))
	if sdk.Version != "" {
		el.Add(filestore.NewElement("version", "value", sdk.Version))
	}
	if sdk.HomePath != "" {
		el.Add(filestore.NewElement("homePath", "value", sdk.HomePath))
	}
	roots := el.Add(filestore.NewElement("roots"))
	for _, r := range sdk.Roots {
		roots.Add(filestore.NewElement("root", "url", r.URL, "type", r.Type))
	}
	return el
}
