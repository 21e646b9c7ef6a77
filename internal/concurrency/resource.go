package concurrency

import "strings"

// resourceSeparator joins path components in a ResourceName. Component
// names must not contain it.
const resourceSeparator = "/"

// ResourceName identifies a lockable resource as a path from the root of a
// hierarchy, e.g. database/users/page-3. It is immutable and comparable, so
// it can be used directly as a map key; equality is by full path.
type ResourceName struct {
	path string
}

// NewResourceName creates a top-level resource name.
func NewResourceName(name string) ResourceName {
	return ResourceName{path: name}
}

// Child returns the resource name for the child NAME of r.
func (r ResourceName) Child(name string) ResourceName {
	return ResourceName{path: r.path + resourceSeparator + name}
}

// Parent returns the name of r's parent resource, and false if r is a
// top-level resource.
func (r ResourceName) Parent() (ResourceName, bool) {
	i := strings.LastIndex(r.path, resourceSeparator)
	if i < 0 {
		return ResourceName{}, false
	}
	return ResourceName{path: r.path[:i]}, true
}

// Names returns the path components of r, root first.
func (r ResourceName) Names() []string {
	return strings.Split(r.path, resourceSeparator)
}

// Base returns the last path component of r.
func (r ResourceName) Base() string {
	i := strings.LastIndex(r.path, resourceSeparator)
	return r.path[i+1:]
}

// Depth returns the number of path components in r.
func (r ResourceName) Depth() int {
	return strings.Count(r.path, resourceSeparator) + 1
}

// IsDescendantOf reports whether r is a strict descendant of ancestor.
func (r ResourceName) IsDescendantOf(ancestor ResourceName) bool {
	return strings.HasPrefix(r.path, ancestor.path+resourceSeparator)
}

// IsZero reports whether r is the zero ResourceName.
func (r ResourceName) IsZero() bool {
	return r.path == ""
}

// String returns the full path of r.
func (r ResourceName) String() string {
	return r.path
}
