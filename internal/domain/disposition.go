package domain

import "fmt"

// Disposition is the classification outcome for a comment. The integer codes
// are stored in the dispo_log table and must stay stable.
type Disposition int

const (
	Confirmed Disposition = iota
	TokenMissing
	AuthorIsBot
	ParentIsBot
	AwardedSelf
	AwardedOP
	TooShort
	AlreadyAwarded
	AlreadyAwardedInTree
)

var dispositionNames = map[Disposition]string{
	Confirmed:            "confirmed",
	TokenMissing:         "token_missing",
	AuthorIsBot:          "author_is_bot",
	ParentIsBot:          "parent_is_bot",
	AwardedSelf:          "awarded_self",
	AwardedOP:            "awarded_op",
	TooShort:             "too_short",
	AlreadyAwarded:       "already_awarded",
	AlreadyAwardedInTree: "already_awarded_in_tree",
}

func (d Disposition) String() string {
	if name, ok := dispositionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("disposition(%d)", int(d))
}

// Valid reports whether d is one of the defined codes.
func (d Disposition) Valid() bool {
	_, ok := dispositionNames[d]
	return ok
}

// Trivial dispositions warrant no bot reply and no log entry. A logged
// comment whose disposition degrades to a trivial one has its reply retracted
// and its log row deleted.
func (d Disposition) Trivial() bool {
	return d == TokenMissing || d == AuthorIsBot
}

// Rescannable dispositions are re-evaluated automatically while the comment
// is within the rescan window. TooShort is deliberately not trivial: the
// author may edit the comment past the minimum length later.
func (d Disposition) Rescannable() bool {
	return d == TooShort
}
