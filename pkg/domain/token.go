package domain

import "strings"

// Token is a single protocol line emitted by the lock-test tool.
type Token string

const (
	TokenStart       Token = "start"
	TokenPreLock     Token = "pre-lock"
	TokenBlocked     Token = "blocked"
	TokenHoldingLock Token = "holding-lock"
	TokenDone        Token = "done"
)

// ParseToken converts a raw output line into a Token.
// Trailing line terminators are ignored. Unknown lines are returned verbatim
// so they can be reported in a protocol violation.
func ParseToken(line string) Token {
	return Token(strings.TrimRight(line, "\r\n"))
}

// Known reports whether the token belongs to the protocol alphabet.
func (t Token) Known() bool {
	switch t {
	case TokenStart, TokenPreLock, TokenBlocked, TokenHoldingLock, TokenDone:
		return true
	}
	return false
}

func (t Token) String() string {
	return string(t)
}

// Role identifies one of the two contenders.
type Role string

const (
	RoleFirstHolder     Role = "first-holder"
	RoleSecondContender Role = "second-contender"
)

// Valid reports whether r names a known role.
func (r Role) Valid() bool {
	return r == RoleFirstHolder || r == RoleSecondContender
}

func (r Role) String() string {
	return string(r)
}
