package compare

import (
	"context"
	"fmt"
	"strings"
)

// ResolveAncestor returns the reference a resource is diffed from. A resource that
// exists in the repository resolves to its copy-from source when it has one and
// to its own URL at its base revision otherwise. Resources that do not exist in
// the repository resolve to the invalid Ref.
func ResolveAncestor(ctx context.Context, b Backend, res *Resource) (Ref, error) {
	if !res.Exists || res.URL == "" || !res.Revision.IsNumber() {
		return Ref{}, nil
	}

	current := Ref{
		Location: res.URL,
		Peg:      res.Revision,
		Revision: res.Revision,
	}

	src, err := b.CopySource(ctx, current)
	if err != nil {
		return Ref{}, fmt.Errorf("copy source %s: %w", current, err)
	}
	if src != nil && src.Valid() {
		return *src, nil
	}
	return current, nil
}

// previousPath expresses a resource under root relative to the ancestor location
func previousPath(ancestor Ref, rootPath string, id Identity) string {
	rel, err := relPath(rootPath, id.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ancestor.Location
	}
	return JoinLocation(ancestor.Location, rel)
}
