package recon

// Status is the terminal state of one processed change request.
type Status string

const (
	// StatusApplied means the live mutation succeeded and the after snapshot
	// reflects the server's persisted representation.
	StatusApplied Status = "Applied"
	// StatusSimulated means dry-run mode computed the change without issuing
	// a mutating call.
	StatusSimulated Status = "Simulated"
	// StatusSkipped means the row was not actionable: identity did not
	// resolve to exactly one user, or the change was already in effect.
	StatusSkipped Status = "Skipped"
	// StatusFailed means the gateway rejected the mutation; the batch
	// continues with the next row.
	StatusFailed Status = "Failed"
)

// OutcomeRecord is the per-row result of an executor pass. Before and After
// contain only the attributes the request intended to change.
type OutcomeRecord struct {
	RowNumber int
	Identity  string
	Status    Status
	Before    map[string]any
	After     map[string]any
	Error     string

	// apiError keeps the classified cause for the executor's AUTH
	// short-circuit check.
	apiError error
}
