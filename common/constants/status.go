package constants

// JobStatus is the lifecycle state of a per-state search job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ClaimStatus is the per-user state of a linked claim.
type ClaimStatus string

const (
	ClaimNew      ClaimStatus = "new"
	ClaimViewed   ClaimStatus = "viewed"
	ClaimLiked    ClaimStatus = "liked"
	ClaimDisliked ClaimStatus = "disliked"
	ClaimClaimed  ClaimStatus = "claimed"
)

// ValidClaimStatus reports whether s is a recognized per-user claim status.
func ValidClaimStatus(s string) bool {
	switch ClaimStatus(s) {
	case ClaimNew, ClaimViewed, ClaimLiked, ClaimDisliked, ClaimClaimed:
		return true
	}
	return false
}
