// Package registry holds the static tag-id to label mapping loaded at
// startup.
package registry

import (
	"maps"
	"slices"
	"strings"
)

// Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	labels map[string]string
}

// New copies entries, normalising keys to upper-case hex. Entries with an
// empty uid are dropped.
func New(entries map[string]string) *Registry {
	labels := make(map[string]string, len(entries))
	for uid, label := range entries {
		uid = normalize(uid)
		if uid == "" {
			continue
		}
		labels[uid] = strings.TrimSpace(label)
	}
	return &Registry{labels: labels}
}

// Lookup returns the label for uid and whether it is registered.
func (r *Registry) Lookup(uid string) (string, bool) {
	uid = normalize(uid)
	if uid == "" {
		return "", false
	}
	label, ok := r.labels[uid]
	return label, ok
}

func (r *Registry) Len() int { return len(r.labels) }

// UIDs returns the registered ids in sorted order.
func (r *Registry) UIDs() []string {
	return slices.Sorted(maps.Keys(r.labels))
}

func normalize(uid string) string {
	return strings.ToUpper(strings.TrimSpace(uid))
}
