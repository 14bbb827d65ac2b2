package schema

import (
	"fmt"
	"strings"
)

// ResolveRef converts a path argument written in owner's depends/valid clause
// to a full path. Three forms are accepted:
//
//	psram.enable        relative to owner's component
//	.enable             relative to owner's parent; each extra dot climbs one level
//	/fake-wifi.enable   absolute, starting with a component identity
//
// ResolveRef does not check that the target exists.
func (t *Tree) ResolveRef(owner *Node, ref string) (string, error) {
	switch {
	case ref == "":
		return "", fmt.Errorf("empty option path")
	case strings.HasPrefix(ref, "/"):
		abs := ref[1:]
		if err := checkPath(abs); err != nil {
			return "", fmt.Errorf("invalid path %q: %w", ref, err)
		}
		return abs, nil
	case strings.HasPrefix(ref, "."):
		rest := strings.TrimLeft(ref, ".")
		if err := checkPath(rest); err != nil {
			return "", fmt.Errorf("invalid path %q: %w", ref, err)
		}
		base := owner
		for i := 0; i < len(ref)-len(rest); i++ {
			base = t.Parent(base)
			if base == nil {
				return "", fmt.Errorf("path %q climbs above component %s", ref, owner.Component)
			}
		}
		return JoinPath(base.Path, rest), nil
	default:
		if err := checkPath(ref); err != nil {
			return "", fmt.Errorf("invalid path %q: %w", ref, err)
		}
		return JoinPath(owner.Component, ref), nil
	}
}

// checkPath validates a dot-separated sequence of segments.
func checkPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	for _, seg := range strings.Split(path, ".") {
		if err := checkSegment(seg); err != nil {
			return err
		}
	}
	return nil
}

// checkSegment validates a single path segment: letters, digits, '_' and '-'.
func checkSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("empty path segment")
	}
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("segment %q contains invalid character %q", seg, r)
		}
	}
	return nil
}

// JoinPath joins path segments with dots, skipping empty ones.
func JoinPath(segs ...string) string {
	var out []string
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, ".")
}
