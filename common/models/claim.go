package models

import "time"

// ClaimRecord is one normalized unclaimed-property record parsed from a
// portal result page. Immutable once inserted; Amount stays nil when the
// portal only shows a descriptive figure (e.g. "UNDER $100"), with the
// verbatim text preserved in AmountText.
type ClaimRecord struct {
	ID           string   `json:"id,omitempty"`
	OwnerName    string   `json:"owner_name"`
	HolderName   string   `json:"holder_name"`
	OwnerAddress string   `json:"owner_address"`
	OwnerCity    string   `json:"owner_city"`
	OwnerState   string   `json:"owner_state"`
	OwnerZip     string   `json:"owner_zip"`
	PropertyType string   `json:"property_type"`
	Amount       *float64 `json:"amount"`
	AmountText   string   `json:"amount_text"`
	StateCode    string   `json:"state_code"`
}

// CacheCheck is the result of a cache lookup for a (name, state) key.
type CacheCheck struct {
	IsValid      bool
	CacheID      string
	ResultsCount int
	TotalPages   *int
}

// CacheEntry mirrors one search_cache row.
type CacheEntry struct {
	ID              string
	FirstName       string
	LastName        string
	StateCode       string
	ResultsCount    int
	CurrentPage     int
	TotalPages      *int
	IsComplete      bool
	DripComplete    bool
	SearchProfileID string
	ExpiresAt       time.Time
}

// DripCandidate is a cache entry eligible for a drip cycle: it has
// unrevealed claims or unfetched pages for a subscribed user.
type DripCandidate struct {
	CacheID         string
	UserID          string
	SearchProfileID string
	FirstName       string
	LastName        string
	StateCode       string
	CurrentPage     int
	TotalPages      *int
	UnrevealedCount int
	NeedsFetch      bool
}

// RevealedClaim is a claim freshly released to its user by a drip cycle.
type RevealedClaim struct {
	ClaimID      string   `json:"claim_id"`
	OwnerName    string   `json:"owner_name"`
	HolderName   string   `json:"holder_name"`
	PropertyType string   `json:"property_type"`
	Amount       *float64 `json:"amount"`
	AmountText   string   `json:"amount_text"`
}

// UserClaimView is one row of a user's results list, possibly masked for
// free-tier users.
type UserClaimView struct {
	ID           string   `json:"id"`
	StateCode    string   `json:"state_code"`
	OwnerName    string   `json:"owner_name"`
	OwnerCity    string   `json:"owner_city,omitempty"`
	PropertyType string   `json:"property_type"`
	HolderName   string   `json:"holder_name"`
	Amount       *float64 `json:"amount"`
	AmountText   string   `json:"amount_text,omitempty"`
	Status       string   `json:"status"`
	Revealed     bool     `json:"revealed"`
	IsLocked     bool     `json:"is_locked"`
	CreatedAt    string   `json:"created_at"`
}
