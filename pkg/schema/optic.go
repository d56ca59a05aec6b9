package schema

// PatternLocation names which document field a MatchRule's pattern
// applies against.
type PatternLocation int

const (
	LocationURL PatternLocation = iota
	LocationSite
	LocationDomain
	LocationSchema
	LocationTitle
	LocationDescription
)

// ActionKind discriminates a MatchRule's action.
type ActionKind int

const (
	ActionBoost ActionKind = iota
	ActionDownrank
	ActionDiscard
)

// Action is a MatchRule's effect; Amount is meaningless for ActionDiscard.
type Action struct {
	Kind   ActionKind
	Amount float64
}

// PatternPart is one token of a glob-like match pattern: either a
// literal substring, a wildcard ("*"), or an anchor ("|", start/end of
// string).
type PatternPart struct {
	Literal  string
	Wildcard bool
	Anchor   bool
}

// Match is one `(pattern, location)` clause; a MatchRule's `matches`
// list is an AND of Match clauses.
type Match struct {
	Pattern  []PatternPart
	Location PatternLocation
}

// MatchRule is one optic rule: `matches` AND-ed together trigger `Action`.
type MatchRule struct {
	Matches []Match
	Action  Action
}

// Optic is a compiled policy program.
type Optic struct {
	Rules               []MatchRule
	HostRankings        HostRankings
	SignalCoefficients  *CoefficientTable
	DiscardNonMatching  bool
	NumResults          *int
	MaxDocsConsidered   *uint64
}
