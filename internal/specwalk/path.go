package specwalk

import "strings"

// Path is a position inside a framework document, one segment per object
// key. Kept as a slice so walkers never have to re-split dotted strings.
type Path []string

func ParsePath(dotted string) Path {
	if strings.TrimSpace(dotted) == "" {
		return nil
	}
	return Path(strings.Split(dotted, "."))
}

func (p Path) String() string { return strings.Join(p, ".") }

func (p Path) Child(segment string) Path {
	child := make(Path, 0, len(p)+1)
	child = append(child, p...)
	return append(child, segment)
}
