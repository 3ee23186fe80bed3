package pathutil

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"remotefs/protocol"
)

// maxLinkHops bounds the dangling links followed while resolving one path.
const maxLinkHops = 40

// Resolver exposes the link handling of the storage a Validator guards.
type Resolver interface {
	// Resolve resolves symbolic links in an existing path. It fails with an error
	// matching fs.ErrNotExist when a component is missing.
	Resolve(path string) (string, error)
	Lstat(path string) (fs.FileInfo, error)
	Readlink(path string) (string, error)
}

// Validator admits only paths that stay under one of its roots.
type Validator struct {
	roots    []string
	resolved []string
	resolve  Resolver
}

// NewValidator builds a validator for the given roots. resolve may be nil, in which
// case only the lexical check is applied.
func NewValidator(roots []string, resolve Resolver) (*Validator, error) {
	if len(roots) == 0 {
		return nil, errors.New("at least one allowed path is required")
	}

	v := &Validator{resolve: resolve}
	for _, r := range roots {
		clean, err := Clean(r, "")
		if err != nil {
			return nil, fmt.Errorf("allowed path %q: %w", r, err)
		}
		v.roots = append(v.roots, clean)

		real := clean
		if resolve != nil {
			if p, err := ResolveExisting(clean, resolve); err == nil {
				real = p
			}
		}
		v.resolved = append(v.resolved, real)
	}
	return v, nil
}

// Roots returns the canonical allowed roots.
func (v *Validator) Roots() []string {
	return append([]string(nil), v.roots...)
}

// Validate returns the canonical absolute form of input, or an error wrapping
// protocol.ErrAccessDenied when it falls outside every root.
func (v *Validator) Validate(input string) (string, error) {
	p, err := Clean(input, v.roots[0])
	if err != nil {
		return "", fmt.Errorf("%w: %s", protocol.ErrAccessDenied, input)
	}
	if !Within(p, v.roots...) {
		return "", fmt.Errorf("%w: %s is outside allowed paths", protocol.ErrAccessDenied, p)
	}

	if v.resolve != nil {
		real, err := ResolveExisting(p, v.resolve)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", protocol.ErrAccessDenied, p, err)
		}
		if !Within(real, v.resolved...) && !Within(real, v.roots...) {
			return "", fmt.Errorf("%w: %s resolves outside allowed paths", protocol.ErrAccessDenied, p)
		}
	}
	return p, nil
}

// Clean strips NUL bytes and returns an absolute, lexically clean path. Relative
// inputs are joined onto base.
func Clean(input, base string) (string, error) {
	p := strings.ReplaceAll(input, "\x00", "")
	if p == "" {
		p = base
	}
	if p == "" {
		return "", errors.New("empty path")
	}
	p = filepath.FromSlash(p)
	if !filepath.IsAbs(p) {
		if base == "" {
			abs, err := filepath.Abs(p)
			if err != nil {
				return "", err
			}
			return abs, nil
		}
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p), nil
}

// ResolveExisting resolves links in the deepest existing ancestor of p and joins the
// missing remainder back on. A dangling link on the way is replaced by its target,
// since that is where a create through it would land.
func ResolveExisting(p string, resolve Resolver) (string, error) {
	hops := 0
	return resolveExisting(p, resolve, &hops)
}

func resolveExisting(p string, resolve Resolver, hops *int) (string, error) {
	var rest []string
	cur := p
	for {
		real, err := resolve.Resolve(cur)
		if err == nil {
			return filepath.Join(append([]string{real}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		if info, lerr := resolve.Lstat(cur); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			*hops++
			if *hops > maxLinkHops {
				return "", fmt.Errorf("too many links resolving %s", p)
			}
			target, err := resolve.Readlink(cur)
			if err != nil {
				return "", err
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(cur), target)
			}
			real, err := resolveExisting(filepath.Clean(target), resolve, hops)
			if err != nil {
				return "", err
			}
			return filepath.Join(append([]string{real}, rest...)...), nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

// Within reports whether p is one of roots or lies below one of them. Both sides
// must be clean absolute paths.
func Within(p string, roots ...string) bool {
	for _, root := range roots {
		if p == root {
			return true
		}
		prefix := root
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
