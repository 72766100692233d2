package models

import "time"

// SchoolWildcard is the sentinel school value that matches any requested school.
const SchoolWildcard = "Any"

// ConfirmationCode is a single-use token scoped to a school (or the wildcard)
// that authorizes creation of exactly one directory account.
type ConfirmationCode struct {
	Code      string    `json:"code"`
	Used      bool      `json:"used"`
	School    string    `json:"school"`
	CreatedAt time.Time `json:"createdAt"`
}

// Matches reports whether the code can authorize a request for the given school.
func (c *ConfirmationCode) Matches(school string) bool {
	return !c.Used && (c.School == school || c.School == SchoolWildcard)
}
