// Package scope implements the bitmask scope algebra. Scopes can be combined,
// such as "read write". A single "write" scope is not the same as "read write".
package scope

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	Read      = 1 << 1
	Write     = 1 << 2
	ReadWrite = Read | Write
)

var ErrUnknownScope = errors.New("unknown scope")

// Entry is a single registered scope.
type Entry struct {
	Mask        int
	Name        string
	Description string
}

// Registry is an ordered set of named scope masks.
type Registry struct {
	entries []Entry
	byName  map[string]int
	byMask  map[int]string
	verbose map[string]string
}

// DefaultEntries mirror the read / write / read+write scopes.
var DefaultEntries = []Entry{
	{Mask: Read, Name: "read", Description: "Read your data"},
	{Mask: Write, Name: "write", Description: "Write your data"},
	{Mask: ReadWrite, Name: "read+write"},
}

func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{
		byName:  make(map[string]int, len(entries)),
		byMask:  make(map[int]string, len(entries)),
		verbose: make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		if _, exists := r.byName[e.Name]; exists {
			continue
		}
		r.entries = append(r.entries, e)
		r.byName[e.Name] = e.Mask
		r.byMask[e.Mask] = e.Name
		r.verbose[e.Name] = e.Description
	}
	return r
}

func Default() *Registry {
	return NewRegistry(DefaultEntries...)
}

// ParseEntries reads a registry definition in the form "read:2,write:4,read+write:6".
func ParseEntries(def string) ([]Entry, error) {
	var entries []Entry
	for _, part := range strings.Split(def, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, maskStr, ok := strings.Cut(part, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("scope entry %q: expected name:mask", part)
		}
		mask, err := strconv.Atoi(maskStr)
		if err != nil || mask <= 0 {
			return nil, fmt.Errorf("scope entry %q: invalid mask", part)
		}
		entries = append(entries, Entry{Mask: mask, Name: name})
	}
	if len(entries) == 0 {
		return nil, errors.New("no scopes defined")
	}
	return entries, nil
}

// Check reports whether every bit of wants is set in has.
func Check(wants, has int) bool {
	return wants&has == wants
}

// Compose returns the bitwise OR of all masks.
func Compose(masks ...int) int {
	combined := 0
	for _, m := range masks {
		combined |= m
	}
	return combined
}

// Names returns every registered name whose mask is fully contained in scope.
func (r *Registry) Names(scope int) []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		if Check(e.Mask, scope) {
			names = append(names, e.Name)
		}
	}
	return names
}

// Join returns the names of scope separated by spaces.
func (r *Registry) Join(scope int) string {
	return strings.Join(r.Names(scope), " ")
}

// ToInt combines the masks of the given names. Unrecognised names contribute
// nothing; an empty name list yields def.
func (r *Registry) ToInt(def int, names ...string) int {
	if len(names) == 0 {
		return def
	}
	combined := 0
	for _, n := range names {
		combined |= r.byName[n]
	}
	return combined
}

// Decompose returns every registered mask sharing at least one bit with scope.
func (r *Registry) Decompose(scope int) []int {
	var masks []int
	for _, e := range r.entries {
		if e.Mask&scope != 0 {
			masks = append(masks, e.Mask)
		}
	}
	return masks
}

// Parse converts a space separated scope string into a mask, rejecting any
// name the registry does not know. An empty string yields def.
func (r *Registry) Parse(raw string, def int) (int, error) {
	names := strings.Fields(raw)
	if len(names) == 0 {
		return def, nil
	}
	for _, n := range names {
		if _, ok := r.byName[n]; !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownScope, n)
		}
	}
	return r.ToInt(def, names...), nil
}

// Description returns the human readable label of a scope name, falling back
// to the name itself.
func (r *Registry) Description(name string) string {
	if d := r.verbose[name]; d != "" {
		return d
	}
	return name
}

// Name returns the registered name for an exact mask.
func (r *Registry) Name(mask int) (string, bool) {
	n, ok := r.byMask[mask]
	return n, ok
}

// Default returns the lowest registered mask, used when a request names no scope.
func (r *Registry) Default() int {
	if len(r.entries) == 0 {
		return 0
	}
	return r.entries[0].Mask
}

func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
