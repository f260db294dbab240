// Package linkage turns record collections into sets of accepted links.
package linkage

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/records"
)

// Role is a record taking part in a link under a role type such as "father" or "sibling".
type Role struct {
	RecordID string `json:"record_id"`
	RoleType string `json:"role_type"`
}

func (r Role) String() string {
	return r.RecordID + "/" + r.RoleType
}

func (r Role) less(o Role) bool {
	if r.RecordID != o.RecordID {
		return r.RecordID < o.RecordID
	}
	return r.RoleType < o.RoleType
}

// Link is an accepted pairing of two roles. Identity is the role pair; the rest is metadata.
type Link struct {
	ID              string   `json:"id"`
	Role1           Role     `json:"role1"`
	Role2           Role     `json:"role2"`
	Confidence      float64  `json:"confidence"`
	LinkType        string   `json:"link_type"`
	Distance        float64  `json:"distance"`
	FieldsPopulated int      `json:"fields_populated"`
	Provenance      []string `json:"provenance"`
}

func NewLink(role1, role2 Role, linkType string, distance float64, provenance ...string) Link {
	return Link{
		ID:         uuid.NewString(),
		Role1:      role1,
		Role2:      role2,
		Confidence: 1,
		LinkType:   linkType,
		Distance:   distance,
		Provenance: provenance,
	}
}

func (l Link) String() string {
	return fmt.Sprintf("%s(%s, %s) d=%g", l.LinkType, l.Role1, l.Role2, l.Distance)
}

// Pair is a candidate pairing of a stored record with a query record.
type Pair struct {
	Stored   records.Record
	Query    records.Record
	Distance float64
}

type roleKey struct {
	a, b Role
}

// LinkSet holds links keyed on their role pair. In symmetric sets the key is unordered so A-B and
// B-A collapse into one link.
type LinkSet struct {
	symmetric bool
	links     map[roleKey]Link
}

func NewLinkSet(symmetric bool) *LinkSet {
	return &LinkSet{
		symmetric: symmetric,
		links:     map[roleKey]Link{},
	}
}

func (s *LinkSet) key(l Link) roleKey {
	if s.symmetric && l.Role2.less(l.Role1) {
		return roleKey{a: l.Role2, b: l.Role1}
	}
	return roleKey{a: l.Role1, b: l.Role2}
}

// Add inserts l unless a link with the same roles is present, reporting whether it was added.
func (s *LinkSet) Add(l Link) bool {
	k := s.key(l)
	if _, ok := s.links[k]; ok {
		return false
	}
	s.links[k] = l
	return true
}

func (s *LinkSet) Contains(l Link) bool {
	_, ok := s.links[s.key(l)]
	return ok
}

func (s *LinkSet) Len() int {
	return len(s.links)
}

func (s *LinkSet) Symmetric() bool {
	return s.symmetric
}

// Links returns the links ordered by role pair.
func (s *LinkSet) Links() []Link {
	keys := make([]roleKey, 0, len(s.links))
	for k := range s.links {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a.less(keys[j].a)
		}
		return keys[i].b.less(keys[j].b)
	})

	out := make([]Link, len(keys))
	for i, k := range keys {
		out[i] = s.links[k]
	}
	return out
}

// Equal reports whether both sets hold the same role pairs.
func (s *LinkSet) Equal(o *LinkSet) bool {
	if s.Len() != o.Len() {
		return false
	}
	for _, l := range s.links {
		if !o.Contains(l) {
			return false
		}
	}
	return true
}

// Filter returns the links for which keep reports true, in role pair order.
func (s *LinkSet) Filter(keep func(Link) bool) []Link {
	var out []Link
	for _, l := range s.Links() {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}
