package auth

const (
	ScopeOpenID    = "openid"
	ScopeRunsRead  = "billing:runs:read"
	ScopeRunsWrite = "billing:runs:write"
)

// AllScopes defines the full set of scopes used by the API docs page
var AllScopes = []string{
	ScopeOpenID,
	ScopeRunsRead,
	ScopeRunsWrite,
}
