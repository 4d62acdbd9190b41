package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Dump renders r as an indented tree that does not depend on internal IDs.
// Roots are sorted; children are grouped by source, keeping their order
// within a group. fmtSource formats sources (nil uses String) so callers can
// map per-directory file IDs to file names.
func Dump(r Reader, fmtSource func(EntitySource) string) string {
	if fmtSource == nil {
		fmtSource = EntitySource.String
	}
	d := dumper{r: r, fmtSource: fmtSource}
	roots := Roots(r)
	blocks := make([]string, 0, len(roots))
	for _, e := range roots {
		var sb strings.Builder
		d.write(&sb, e, 0)
		blocks = append(blocks, sb.String())
	}
	sort.Strings(blocks)
	return strings.Join(blocks, "")
}

type dumper struct {
	r         Reader
	fmtSource func(EntitySource) string
}

func (d dumper) write(sb *strings.Builder, e Entity, indent int) {
	fmt.Fprintf(sb, "%s%s [%s] %s\n", strings.Repeat("  ", indent), describe(e.Data), d.fmtSource(e.Source), dataJSON(e.Data))

	groups := make(map[string][]Entity)
	var order []string
	for _, c := range d.r.Children(e.ID) {
		child, ok := d.r.Get(c)
		if !ok {
			continue
		}
		key := d.fmtSource(child.Source)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], child)
	}
	sort.Strings(order)
	for _, key := range order {
		for _, child := range groups[key] {
			d.write(sb, child, indent+1)
		}
	}
}

func describe(data Data) string {
	if sid, ok := data.SymbolicID(); ok {
		return sid.String()
	}
	if pe, ok := data.(PackagingElement); ok {
		return data.Kind().String() + ":" + pe.ElementType()
	}
	return data.Kind().String()
}

func dataJSON(data Data) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%+v", data)
	}
	return string(raw)
}
