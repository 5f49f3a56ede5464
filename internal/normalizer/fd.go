package normalizer

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// Methods is a set of methods able to supply a field.
type Methods map[schema.Method]struct{}

// NewMethods returns the set of the given methods.
func NewMethods(methods ...schema.Method) Methods {
	ms := make(Methods, len(methods))
	for _, m := range methods {
		ms[m] = struct{}{}
	}
	return ms
}

// Add adds every method of other.
func (ms Methods) Add(other Methods) {
	for m := range other {
		ms[m] = struct{}{}
	}
}

// Sorted returns the methods ordered by platform then object.
func (ms Methods) Sorted() []schema.Method {
	return slices.SortedFunc(maps.Keys(ms), func(a, b schema.Method) int {
		return cmp.Or(cmp.Compare(a.Platform, b.Platform), cmp.Compare(a.Object, b.Object))
	})
}

// Platforms returns the platforms of the methods, in order.
func (ms Methods) Platforms() []string {
	platforms := make([]string, 0, len(ms))
	for _, m := range ms.Sorted() {
		if !slices.Contains(platforms, m.Platform) {
			platforms = append(platforms, m.Platform)
		}
	}
	return platforms
}

// Determinant is the left side of a functional dependency: a key of an
// object. The object takes part in the determinant since two objects sharing
// a key do not hold the same records.
type Determinant struct {
	Object string
	Key    schema.Key
}

// Equal returns true if both determinants are on the same object and key.
func (d Determinant) Equal(other Determinant) bool {
	return d.Object == other.Object && d.Key.Equal(other.Key)
}

func (d Determinant) String() string {
	return "(" + d.Object + ", " + d.Key.String() + ")"
}

// Fd is a functional dependency: its determinant gives the value of every
// field of Fields, each field being supplied by a set of methods.
type Fd struct {
	Determinant Determinant
	Fields      map[string]Methods
}

// NewFd returns the dependency of a single field.
func NewFd(determinant Determinant, field string, methods ...schema.Method) *Fd {
	return &Fd{
		Determinant: determinant,
		Fields:      map[string]Methods{field: NewMethods(methods...)},
	}
}

// KeyFieldNames returns the fields of the determinant.
func (fd *Fd) KeyFieldNames() query.FieldNames {
	return fd.Determinant.Key.FieldNames()
}

// FieldNames returns the determined fields.
func (fd *Fd) FieldNames() query.FieldNames {
	return query.NewFieldNames(slices.Collect(maps.Keys(fd.Fields))...)
}

// Field returns the determined field of a split dependency.
func (fd *Fd) Field() string {
	for name := range fd.Fields {
		return name
	}
	return ""
}

// Methods returns every method supplying one of the fields.
func (fd *Fd) Methods() Methods {
	out := Methods{}
	for _, ms := range fd.Fields {
		out.Add(ms)
	}
	return out
}

// AddMethods records that the methods also supply every field.
func (fd *Fd) AddMethods(methods Methods) {
	for _, ms := range fd.Fields {
		ms.Add(methods)
	}
}

// Merge adds the fields and methods of other, which has the same
// determinant.
func (fd *Fd) Merge(other *Fd) {
	for name, ms := range other.Fields {
		existing, ok := fd.Fields[name]
		if !ok {
			existing = Methods{}
			fd.Fields[name] = existing
		}
		existing.Add(ms)
	}
}

// Clone returns a deep copy of the dependency.
func (fd *Fd) Clone() *Fd {
	cloned := &Fd{Determinant: fd.Determinant, Fields: make(map[string]Methods, len(fd.Fields))}
	for name, ms := range fd.Fields {
		cloned.Fields[name] = maps.Clone(ms)
	}
	return cloned
}

// Split returns one dependency per field and method.
func (fd *Fd) Split() Fds {
	var fds Fds
	for _, name := range slices.Sorted(maps.Keys(fd.Fields)) {
		for _, m := range fd.Fields[name].Sorted() {
			fds = append(fds, NewFd(fd.Determinant, name, m))
		}
	}
	return fds
}

func (fd *Fd) String() string {
	var sb strings.Builder
	sb.WriteString(fd.Determinant.String())
	sb.WriteString(" => {")
	for i, name := range slices.Sorted(maps.Keys(fd.Fields)) {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(name)
		sb.WriteString(" via ")
		methods := fd.Fields[name].Sorted()
		for j, m := range methods {
			if j > 0 {
				sb.WriteString("|")
			}
			sb.WriteString(m.String())
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// Fds is a list of functional dependencies.
type Fds []*Fd

// Split splits every dependency.
func (fds Fds) Split() Fds {
	var out Fds
	for _, fd := range fds {
		out = append(out, fd.Split()...)
	}
	return out
}

// Collapse groups the dependencies by determinant.
func (fds Fds) Collapse() Fds {
	var out Fds
	for _, fd := range fds {
		idx := slices.IndexFunc(out, func(existing *Fd) bool {
			return existing.Determinant.Equal(fd.Determinant)
		})
		if idx < 0 {
			out = append(out, fd.Clone())
			continue
		}
		out[idx].Merge(fd)
	}
	return out
}

// Without returns the dependencies except the given one.
func (fds Fds) Without(excluded *Fd) Fds {
	out := make(Fds, 0, len(fds))
	for _, fd := range fds {
		if fd != excluded {
			out = append(out, fd)
		}
	}
	return out
}

// ForObject returns the dependencies whose determinant is on the object.
func (fds Fds) ForObject(object string) Fds {
	var out Fds
	for _, fd := range fds {
		if fd.Determinant.Object == object {
			out = append(out, fd)
		}
	}
	return out
}

func (fds Fds) String() string {
	lines := make([]string, len(fds))
	for i, fd := range fds {
		lines[i] = fd.String()
	}
	return strings.Join(lines, "\n")
}
