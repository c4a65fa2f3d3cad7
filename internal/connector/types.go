package connector

import "time"

// CallbackState is the central task's externally visible lifecycle flag.
// The engine only ever reacts to states and pushes acknowledgments; it
// never invents transitions; a human or downstream process moves tasks
// into Claimed or CompletePending inside the central store.
type CallbackState string

const (
	// CallbackStateNone is the initial state of a freshly created central task.
	CallbackStateNone CallbackState = "NONE"

	// CallbackStateClaimed marks a central task claimed by a user and not yet
	// propagated to the owning external system.
	CallbackStateClaimed CallbackState = "CLAIMED"

	// CallbackStateClaimedAcknowledged marks a claim that has been pushed to
	// the external system.
	CallbackStateClaimedAcknowledged CallbackState = "CLAIMED_ACKNOWLEDGED"

	// CallbackStateClaimFailed marks a claim whose propagation failed
	// permanently in the external system.
	CallbackStateClaimFailed CallbackState = "CLAIM_FAILED"

	// CallbackStateCompletePending marks a central task completed by a user
	// and not yet propagated.
	CallbackStateCompletePending CallbackState = "COMPLETE_PENDING"

	// CallbackStateComplete marks a completion that has been pushed to the
	// external system.
	CallbackStateComplete CallbackState = "COMPLETE"

	// CallbackStateCompleteFailed marks a completion whose propagation failed
	// permanently in the external system.
	CallbackStateCompleteFailed CallbackState = "COMPLETE_FAILED"
)

// ExternalTask is a work item discovered in an external workflow system.
//
// Immutable once read within one polling cycle. The same task may be observed
// by several consecutive cycles (the poll window intentionally overlaps) until
// a ledger entry exists for its (SystemURL, ID) key.
type ExternalTask struct {
	// ID is unique within the owning external system.
	ID string `json:"id"`

	// SystemURL identifies the owning external system. Together with ID it
	// forms the sync's primary idempotency key.
	SystemURL string `json:"systemUrl"`

	Name        string `json:"name,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Due         string `json:"due,omitempty"`

	// Variables is the opaque variable payload of the task, fetched lazily
	// via SystemConnector.FetchVariables. Empty until enriched.
	Variables string `json:"variables,omitempty"`

	// CreatedAt is the creation time reported by the external system.
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// CentralTaskRequest is the conversion output handed to the central store
// for creation. The central connector owns the mapping; the engine treats
// the request as opaque apart from the back-reference fields.
type CentralTaskRequest struct {
	ExternalID string `json:"externalId"`
	SystemURL  string `json:"systemUrl"`
	Name       string `json:"name"`
	Workbasket string `json:"workbasket,omitempty"`
	Classifier string `json:"classifier,omitempty"`
	Variables  string `json:"variables,omitempty"`
}

// CentralTask is a task that lives in the central store and back-references
// the external task it mirrors.
type CentralTask struct {
	// CentralID is assigned by the central store at creation time.
	CentralID string `json:"centralId"`

	// ExternalID and SystemURL point back at the originating external task.
	ExternalID string `json:"externalId"`
	SystemURL  string `json:"systemUrl"`

	// Assignee is the user who claimed the task in the central store.
	// Carried along so claim propagation can claim-as in the external system.
	Assignee string `json:"assignee,omitempty"`

	CallbackState CallbackState `json:"callbackState"`
}
