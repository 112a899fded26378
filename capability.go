package netconf

import (
	"iter"
	"slices"
)

const (
	baseCap      = "urn:ietf:params:netconf:base"
	stdCapPrefix = "urn:ietf:params:netconf:capability"

	// CapBase10 and CapBase11 select the protocol version during
	// negotiation; the rest are the feature capabilities this client
	// advertises by default.
	CapBase10          = baseCap + ":1.0"
	CapBase11          = baseCap + ":1.1"
	CapWritableRunning = stdCapPrefix + ":writable-running:1.0"
	CapCandidate       = stdCapPrefix + ":candidate:1.0"
	CapStartup         = stdCapPrefix + ":startup:1.0"
)

// initialCapacity is the starting backing-array size of a CapabilitySet.
const initialCapacity = 10

// ExpandCapability prepends the standard capability prefix of
// `urn:ietf:params:netconf:capability` to strings starting with `:`.
func ExpandCapability(s string) string {
	if s == "" {
		return ""
	}
	if s[0] != ':' {
		return s
	}
	return stdCapPrefix + s
}

// CapabilitySet is an ordered collection of capability URIs.  Add does not
// deduplicate; duplicates are stored but carry no meaning, and callers
// wanting strict set semantics check Has first.  The iteration cursor is
// single-user and the set is not safe for concurrent use.
type CapabilitySet struct {
	list []string
	iter int
}

// NewCapabilitySet creates a set seeded with the given capabilities in
// order.  Short names are expanded with ExpandCapability.
func NewCapabilitySet(capabilities ...string) *CapabilitySet {
	cs := &CapabilitySet{
		list: make([]string, 0, max(initialCapacity, len(capabilities))),
	}
	for _, cap := range capabilities {
		cs.list = append(cs.list, ExpandCapability(cap))
	}
	return cs
}

// DefaultCapabilities returns the client's default advertisement: both base
// protocol versions plus the writable-running, candidate and startup
// features, each exactly once.
func DefaultCapabilities() *CapabilitySet {
	return NewCapabilitySet(
		CapBase10,
		CapBase11,
		CapWritableRunning,
		CapCandidate,
		CapStartup,
	)
}

// Len returns the number of stored URIs, duplicates included.
func (cs *CapabilitySet) Len() int {
	return len(cs.list)
}

// Add appends the URI to the set unconditionally.
func (cs *CapabilitySet) Add(uri string) {
	cs.list = append(cs.list, ExpandCapability(uri))
}

// Remove deletes the first byte-equal occurrence of the URI by moving the
// last element into its slot.  Relative order of the remaining entries is
// not preserved.  Removing keeps the backing capacity intact.
func (cs *CapabilitySet) Remove(uri string) {
	uri = ExpandCapability(uri)
	for i, have := range cs.list {
		if have == uri {
			last := len(cs.list) - 1
			cs.list[i] = cs.list[last]
			cs.list[last] = ""
			cs.list = cs.list[:last]
			return
		}
	}
}

// Has reports whether the URI is present in the set.
func (cs *CapabilitySet) Has(uri string) bool {
	return slices.Contains(cs.list, ExpandCapability(uri))
}

// IterStart resets the set's single iteration cursor to the first entry.
func (cs *CapabilitySet) IterStart() {
	cs.iter = 0
}

// IterNext returns the URI under the cursor and advances it.  The second
// result is false once the cursor has passed the last entry.
func (cs *CapabilitySet) IterNext() (string, bool) {
	if cs.iter >= len(cs.list) {
		return "", false
	}
	uri := cs.list[cs.iter]
	cs.iter++
	return uri, true
}

// All returns a stable in-order iterator over the stored URIs.  Unlike the
// cursor it can be consumed by multiple independent loops.  If you want a
// slice use `slices.Collect(cs.All())`.
func (cs *CapabilitySet) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, uri := range cs.list {
			if !yield(uri) {
				return
			}
		}
	}
}
