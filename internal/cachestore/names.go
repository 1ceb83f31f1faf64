package cachestore

import "fmt"

// Namespace name kinds. The umbrella name groups both stores under one
// version epoch; static and dynamic are the two working namespaces.
const (
	KindStatic  = "static"
	KindDynamic = "dynamic"
)

// Names holds the version-qualified namespace names for one epoch,
// following the "<prefix>-<kind>-v<N>" pattern. Bumping the version is
// the sole mechanism for invalidating previously cached content.
type Names struct {
	Prefix  string
	Version int
}

// Combined returns the umbrella name, e.g. "prochepro-v4".
func (n Names) Combined() string {
	return fmt.Sprintf("%s-v%d", n.Prefix, n.Version)
}

// Static returns the static namespace name, e.g. "prochepro-static-v4".
func (n Names) Static() string {
	return fmt.Sprintf("%s-%s-v%d", n.Prefix, KindStatic, n.Version)
}

// Dynamic returns the dynamic namespace name, e.g. "prochepro-dynamic-v4".
func (n Names) Dynamic() string {
	return fmt.Sprintf("%s-%s-v%d", n.Prefix, KindDynamic, n.Version)
}

// Owns reports whether the given namespace name belongs to this
// application, regardless of version.
func (n Names) Owns(name string) bool {
	return len(name) > len(n.Prefix) && name[:len(n.Prefix)+1] == n.Prefix+"-"
}

// Current reports whether the given name is one of the three namespaces
// designated for this version epoch.
func (n Names) Current(name string) bool {
	return name == n.Combined() || name == n.Static() || name == n.Dynamic()
}
