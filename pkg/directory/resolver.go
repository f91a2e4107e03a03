package directory

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultSimilarityThreshold admits near-exact matches with tolerance for
// minor typos. Policy choice, tunable via configuration.
const DefaultSimilarityThreshold = 0.85

type MatchKind int

const (
	NoMatch MatchKind = iota
	UniqueMatch
	AmbiguousMatch
)

func (k MatchKind) String() string {
	switch k {
	case UniqueMatch:
		return "unique"
	case AmbiguousMatch:
		return "ambiguous"
	default:
		return "none"
	}
}

// Resolution is the outcome of resolving a free-text reference. On
// AmbiguousMatch, Candidates holds every record that cleared the threshold
// in deterministic order; the resolver never picks one itself.
type Resolution[T any] struct {
	Kind       MatchKind
	Match      T
	Candidates []T
}

// Resolver maps free-text identifiers (names, department names, manager
// emails) to canonical records: exact match first, then edit-distance fuzzy
// matching above a fixed threshold.
type Resolver struct {
	threshold float64
}

func NewResolver(threshold float64) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &Resolver{threshold: threshold}
}

// Similarity returns a 0..1 edit-distance ratio between two strings,
// case-insensitive: 1 - distance/(len(a)+len(b)), the classic fuzz-ratio
// normalization ("jon" vs "john" scores ~0.857). Two empty strings are
// identical.
func (r *Resolver) Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 1
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(dist)/float64(total)
}

// ResolveUser resolves an identity against a candidate set.
//
// EmailIdentity is exact case-insensitive, never fuzzy. NameIdentity admits
// a candidate only when every supplied name part individually clears the
// threshold against the corresponding stored field. Ambiguous candidates
// are ordered by descending similarity, then email ascending.
func (r *Resolver) ResolveUser(identity Identity, candidates []UserRecord) Resolution[UserRecord] {
	switch id := identity.(type) {
	case EmailIdentity:
		return r.resolveUserByEmail(id.Email, candidates)
	case NameIdentity:
		return r.resolveUserByName(id, candidates)
	default:
		return Resolution[UserRecord]{Kind: NoMatch}
	}
}

func (r *Resolver) resolveUserByEmail(email string, candidates []UserRecord) Resolution[UserRecord] {
	email = strings.TrimSpace(email)
	for _, c := range candidates {
		if strings.EqualFold(c.Email, email) {
			return Resolution[UserRecord]{Kind: UniqueMatch, Match: c}
		}
	}
	return Resolution[UserRecord]{Kind: NoMatch}
}

type scoredUser struct {
	user  UserRecord
	score float64
}

func (r *Resolver) resolveUserByName(id NameIdentity, candidates []UserRecord) Resolution[UserRecord] {
	first := strings.TrimSpace(id.First)
	last := strings.TrimSpace(id.Last)
	if first == "" && last == "" {
		return Resolution[UserRecord]{Kind: NoMatch}
	}

	var scored []scoredUser
	for _, c := range candidates {
		var sum float64
		var parts int
		if first != "" {
			s := r.Similarity(first, c.FirstName)
			if s < r.threshold {
				continue
			}
			sum += s
			parts++
		}
		if last != "" {
			s := r.Similarity(last, c.LastName)
			if s < r.threshold {
				continue
			}
			sum += s
			parts++
		}
		scored = append(scored, scoredUser{user: c, score: sum / float64(parts)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return strings.ToLower(scored[i].user.Email) < strings.ToLower(scored[j].user.Email)
	})

	switch len(scored) {
	case 0:
		return Resolution[UserRecord]{Kind: NoMatch}
	case 1:
		return Resolution[UserRecord]{Kind: UniqueMatch, Match: scored[0].user}
	default:
		users := make([]UserRecord, len(scored))
		for i, s := range scored {
			users[i] = s.user
		}
		return Resolution[UserRecord]{Kind: AmbiguousMatch, Candidates: users}
	}
}

// ResolveManager resolves a manager reference by email: exact
// case-insensitive match first; if none, fuzzy match against candidate
// emails with the usual ambiguity contract.
func (r *Resolver) ResolveManager(email string, candidates []UserRecord) Resolution[UserRecord] {
	if res := r.resolveUserByEmail(email, candidates); res.Kind == UniqueMatch {
		return res
	}

	var scored []scoredUser
	for _, c := range candidates {
		s := r.Similarity(email, c.Email)
		if s < r.threshold {
			continue
		}
		scored = append(scored, scoredUser{user: c, score: s})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return strings.ToLower(scored[i].user.Email) < strings.ToLower(scored[j].user.Email)
	})

	switch len(scored) {
	case 0:
		return Resolution[UserRecord]{Kind: NoMatch}
	case 1:
		return Resolution[UserRecord]{Kind: UniqueMatch, Match: scored[0].user}
	default:
		users := make([]UserRecord, len(scored))
		for i, s := range scored {
			users[i] = s.user
		}
		return Resolution[UserRecord]{Kind: AmbiguousMatch, Candidates: users}
	}
}

// ResolveDepartment resolves a department name: all exact (case-insensitive)
// matches first, then fuzzy. Department names are not unique, so even exact
// matching can be ambiguous. Ties order by name then ID.
func (r *Resolver) ResolveDepartment(name string, departments []DepartmentRecord) Resolution[DepartmentRecord] {
	name = strings.TrimSpace(name)
	if name == "" {
		return Resolution[DepartmentRecord]{Kind: NoMatch}
	}

	var exact []DepartmentRecord
	for _, d := range departments {
		if strings.EqualFold(d.Name, name) {
			exact = append(exact, d)
		}
	}
	if len(exact) == 1 {
		return Resolution[DepartmentRecord]{Kind: UniqueMatch, Match: exact[0]}
	}
	if len(exact) > 1 {
		sortDepartments(exact)
		return Resolution[DepartmentRecord]{Kind: AmbiguousMatch, Candidates: exact}
	}

	type scoredDept struct {
		dept  DepartmentRecord
		score float64
	}
	var scored []scoredDept
	for _, d := range departments {
		s := r.Similarity(name, d.Name)
		if s < r.threshold {
			continue
		}
		scored = append(scored, scoredDept{dept: d, score: s})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].dept.Name != scored[j].dept.Name {
			return scored[i].dept.Name < scored[j].dept.Name
		}
		return scored[i].dept.ID < scored[j].dept.ID
	})

	switch len(scored) {
	case 0:
		return Resolution[DepartmentRecord]{Kind: NoMatch}
	case 1:
		return Resolution[DepartmentRecord]{Kind: UniqueMatch, Match: scored[0].dept}
	default:
		depts := make([]DepartmentRecord, len(scored))
		for i, s := range scored {
			depts[i] = s.dept
		}
		return Resolution[DepartmentRecord]{Kind: AmbiguousMatch, Candidates: depts}
	}
}

// ResolveGroup resolves a group name with the same exact-then-fuzzy contract
// as departments.
func (r *Resolver) ResolveGroup(name string, groups []GroupRecord) Resolution[GroupRecord] {
	name = strings.TrimSpace(name)
	if name == "" {
		return Resolution[GroupRecord]{Kind: NoMatch}
	}

	var exact []GroupRecord
	for _, g := range groups {
		if strings.EqualFold(g.Name, name) {
			exact = append(exact, g)
		}
	}
	if len(exact) == 1 {
		return Resolution[GroupRecord]{Kind: UniqueMatch, Match: exact[0]}
	}
	if len(exact) > 1 {
		sortGroups(exact)
		return Resolution[GroupRecord]{Kind: AmbiguousMatch, Candidates: exact}
	}

	type scoredGroup struct {
		group GroupRecord
		score float64
	}
	var scored []scoredGroup
	for _, g := range groups {
		s := r.Similarity(name, g.Name)
		if s < r.threshold {
			continue
		}
		scored = append(scored, scoredGroup{group: g, score: s})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].group.Name != scored[j].group.Name {
			return scored[i].group.Name < scored[j].group.Name
		}
		return scored[i].group.ID < scored[j].group.ID
	})

	switch len(scored) {
	case 0:
		return Resolution[GroupRecord]{Kind: NoMatch}
	case 1:
		return Resolution[GroupRecord]{Kind: UniqueMatch, Match: scored[0].group}
	default:
		groups := make([]GroupRecord, len(scored))
		for i, s := range scored {
			groups[i] = s.group
		}
		return Resolution[GroupRecord]{Kind: AmbiguousMatch, Candidates: groups}
	}
}

func sortDepartments(depts []DepartmentRecord) {
	sort.SliceStable(depts, func(i, j int) bool {
		if depts[i].Name != depts[j].Name {
			return depts[i].Name < depts[j].Name
		}
		return depts[i].ID < depts[j].ID
	})
}

func sortGroups(groups []GroupRecord) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Name != groups[j].Name {
			return groups[i].Name < groups[j].Name
		}
		return groups[i].ID < groups[j].ID
	})
}
