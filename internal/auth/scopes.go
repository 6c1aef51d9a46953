package auth

// Scopes understood by the accrual API.
const (
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
	ScopeWalletWrite     = "wallet:write"
)

// DefaultScopes is granted to tokens minted without an explicit scope list.
var DefaultScopes = []string{ScopeActivitiesRead, ScopeActivitiesWrite, ScopeWalletWrite}
