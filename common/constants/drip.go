package constants

import "time"

const (
	// ClaimsPerDrip is the maximum number of claims revealed to a user per drip cycle.
	ClaimsPerDrip = 5
	// DripCandidateBatch is how many cache entries one scheduler run processes.
	DripCandidateBatch = 10
	// CacheTTL is how long a scraped result set stays reusable.
	CacheTTL = 24 * time.Hour
	// ResultsPerPage is the row count portals render per result page.
	ResultsPerPage = 20
	// FreeStateQuota is the number of states a non-subscriber may search.
	FreeStateQuota = 3
)

// NotificationType tags the payload of a drip push notification.
type NotificationType string

const (
	// NotificationNewClaims announces freshly revealed claims.
	NotificationNewClaims NotificationType = "new_claims"
	// NotificationAuditComplete announces that every page has been scanned.
	NotificationAuditComplete NotificationType = "audit_complete"
)
