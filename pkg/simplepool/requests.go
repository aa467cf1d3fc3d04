package simplepool

// IngestElement is one element of a submission. Text elements carry
// Content; media elements carry the raw bytes and a file extension
// (without the dot). Fetching remote media into Data is the caller's job.
type IngestElement struct {
	Type    ElementType `json:"type"`
	Content string      `json:"content,omitempty"`
	Data    []byte      `json:"data,omitempty"`
	Ext     string      `json:"ext,omitempty"`
}

// IngestRequest contains parameters for submitting a record
type IngestRequest struct {
	Elements        []IngestElement `json:"elements"`
	ContributorID   string          `json:"contributorId"`
	ContributorName string          `json:"contributorName"`
}

// IngestResult reports the outcome of a submission. When Duplicate is set
// the submission was turned away and Record is nil; duplicate detection is
// a result, not an error, so callers can show the matched original.
type IngestResult struct {
	Record    *Record         `json:"record,omitempty"`
	Pending   bool            `json:"pending"`
	Duplicate *DuplicateMatch `json:"duplicate,omitempty"`
}

// ModerationAction is the domain type for moderation decisions.
type ModerationAction string

// Moderation action constants (typed).
const (
	ActionApprove ModerationAction = "approve"
	ActionReject  ModerationAction = "reject"
)

// ModerateRequest targets a single pending record by ID, or every pending
// record when All is set.
type ModerateRequest struct {
	ID     int64            `json:"id,omitempty"`
	All    bool             `json:"all,omitempty"`
	Action ModerationAction `json:"action"`
}

// ModerationResult reports processed/total counts. Single-id operations
// additionally report the ids still pending, so a caller can display queue
// state without a follow-up query.
type ModerationResult struct {
	Processed    int     `json:"processed"`
	Total        int     `json:"total"`
	RemainingIDs []int64 `json:"remainingIds,omitempty"`
}

// QueryDuplicatesRequest contains candidate content for a similarity query.
// Nil Thresholds falls back to the service defaults; an explicit zero
// threshold matches every record.
type QueryDuplicatesRequest struct {
	Images     [][]byte    `json:"images,omitempty"`
	Texts      []string    `json:"texts,omitempty"`
	Thresholds *Thresholds `json:"thresholds,omitempty"`
}

// DeleteRequest removes a record from its partition, deletes its media
// files and fingerprints, and recycles its id. When RequesterID is set and
// Manager is false, only the record's contributor may delete it.
type DeleteRequest struct {
	ID          int64  `json:"id"`
	RequesterID string `json:"requesterId,omitempty"`
	Manager     bool   `json:"manager,omitempty"`
}
