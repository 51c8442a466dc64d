package config

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/heimdalr/dag"
)

// ExtractReferencesFromAttribute returns the root names of every variable the
// attribute's expression refers to, without duplicates.
func ExtractReferencesFromAttribute(attr *hcl.Attribute) []string {
	var refs []string
	seen := make(map[string]bool)

	for _, traversal := range attr.Expr.Variables() {
		if len(traversal) > 0 && !seen[traversal.RootName()] {
			seen[traversal.RootName()] = true
			refs = append(refs, traversal.RootName())
		}
	}

	return refs
}

// SortAttributesByDependencies returns attributes sorted so that every
// attribute comes after the attributes it refers to. References to names
// outside attrs (env, for one) are left for evaluation to resolve.
func SortAttributesByDependencies(attrs hcl.Attributes) ([]*hcl.Attribute, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	graph := dag.NewDAG()

	// Sorted so that independent attributes keep a stable order
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		attr := attrs[name]
		err := graph.AddVertexByID(name, attr)
		if err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to add attribute to dependency graph",
				Detail:   fmt.Sprintf("Error adding attribute %s: %s", name, err),
				Subject:  &attr.NameRange,
			})
		}
	}

	for _, name := range names {
		attr := attrs[name]
		for _, ref := range ExtractReferencesFromAttribute(attr) {
			if _, exists := attrs[ref]; !exists {
				continue
			}
			if ref == name {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Circular dependency detected",
					Detail:   fmt.Sprintf("%s refers to itself", name),
					Subject:  &attr.Range,
				})
				continue
			}

			err := graph.AddEdge(ref, name)
			if err != nil {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Circular dependency detected",
					Detail:   fmt.Sprintf("Cannot add dependency from %s to %s: %s", ref, name, err),
					Subject:  &attr.Range,
				})
			}
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}

	visitor := &attributeVertexVisitor{}
	graph.OrderedWalk(visitor)

	return visitor.attrs, diags
}

type attributeVertexVisitor struct {
	attrs []*hcl.Attribute
}

func (v *attributeVertexVisitor) Visit(vertex dag.Vertexer) {
	_, value := vertex.Vertex()
	v.attrs = append(v.attrs, value.(*hcl.Attribute))
}
