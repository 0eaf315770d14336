package bytecode

// sentinelString occupies StringID(0); spec.md §3.3/§9 reserve the slot as a
// non-user id and call the exact text cosmetic, in the tradition of a
// disassembler easter egg.
const sentinelString = "plotnik"

// StringInterner deduplicates strings into a single blob with an offset
// table, matching spec.md §3.3's Strings section.
type StringInterner struct {
	values []string
	index  map[string]StringID
}

func NewStringInterner() *StringInterner {
	s := &StringInterner{index: make(map[string]StringID)}
	s.values = append(s.values, sentinelString)
	s.index[sentinelString] = 0
	return s
}

func (s *StringInterner) Intern(v string) StringID {
	if id, ok := s.index[v]; ok {
		return id
	}
	id := StringID(len(s.values))
	s.values = append(s.values, v)
	s.index[v] = id
	return id
}

func (s *StringInterner) Lookup(id StringID) string {
	if int(id) >= len(s.values) {
		return ""
	}
	return s.values[id]
}

func (s *StringInterner) Len() int { return len(s.values) }

func (s *StringInterner) All() []string { return s.values }

// RegexInterner deduplicates regex patterns. The teacher's tree matcher
// (internal/matcher/regex.go) compiles a regex once and reuses it; Plotnik
// stores the source pattern bytes in the module's regex blob rather than a
// hand-rolled DFA encoding (the VM calls regexp.Compile on the pattern each
// time it tests a regex predicate) while still honoring the
// offset-table-plus-blob shape spec.md §3.3 describes.
type RegexInterner struct {
	patterns []string
	index    map[string]StringID
}

func NewRegexInterner() *RegexInterner {
	return &RegexInterner{index: make(map[string]StringID)}
}

func (r *RegexInterner) Intern(pattern string) StringID {
	if id, ok := r.index[pattern]; ok {
		return id
	}
	id := StringID(len(r.patterns))
	r.patterns = append(r.patterns, pattern)
	r.index[pattern] = id
	return id
}

func (r *RegexInterner) Lookup(id StringID) string {
	if int(id) >= len(r.patterns) {
		return ""
	}
	return r.patterns[id]
}

func (r *RegexInterner) Len() int { return len(r.patterns) }

func (r *RegexInterner) All() []string { return r.patterns }
