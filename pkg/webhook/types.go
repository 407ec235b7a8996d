package webhook

// ChangeType classifies the intent of a webhook event
type ChangeType string

const (
	// ChangeUpsert indicates content was added or updated
	ChangeUpsert ChangeType = "upsert"
	// ChangeDelete indicates content was removed
	ChangeDelete ChangeType = "delete"
	// ChangeUnknown indicates an unclassified event
	ChangeUnknown ChangeType = "unknown"
)

// VerifiedEvent is the outcome of webhook verification
type VerifiedEvent struct {
	// IsValid reports whether the signature or channel token checked out.
	// A missing signature leaves IsValid false while fields are still
	// extracted for the preliminary parse.
	IsValid bool `json:"is_valid"`
	// Payload is the parsed JSON body, or synthesized headers for Drive
	// notifications whose body is empty
	Payload map[string]any `json:"payload,omitempty"`
	// ExternalResourceID names the external resource behind the event
	// (repository URL, folder id)
	ExternalResourceID string `json:"external_resource_id"`
	// ChangeType is the classified intent of the event
	ChangeType ChangeType `json:"change_type"`
}

// Registration is the shared subscription record for a single external
// resource. Multiple tasks may fan out from one subscription; they are
// referenced by id, never by pointer.
type Registration struct {
	// SourceIdentifier is the primary key, derived from plugin type + config
	SourceIdentifier string `json:"source_identifier"`
	// EndpointID is the local HTTP path that receives callbacks
	EndpointID string `json:"endpoint_id"`
	// Secret is 20 random bytes hex, generated once per entry and never
	// rotated implicitly. Used as HMAC key or channel token.
	Secret string `json:"secret"`
	// ExternalWebhookID is the provider-assigned id needed to deregister
	ExternalWebhookID string `json:"external_webhook_id,omitempty"`
	// RegisteredTasks is the authoritative fan-out list. An empty set means
	// the entry must be deleted and the subscription deregistered.
	RegisteredTasks []string `json:"registered_tasks"`

	// StartPageToken and NextPageToken are Drive-style continuation cursors
	StartPageToken string `json:"start_page_token,omitempty"`
	NextPageToken  string `json:"next_page_token,omitempty"`
	// OtherTokens is the escape hatch for future source types
	OtherTokens map[string]string `json:"other_tokens,omitempty"`

	// Active indicates the subscription is live externally
	Active bool `json:"active"`
}

// Clone returns a deep copy so store callers cannot mutate shared state
func (r *Registration) Clone() *Registration {
	if r == nil {
		return nil
	}
	out := *r
	out.RegisteredTasks = append([]string(nil), r.RegisteredTasks...)
	if r.OtherTokens != nil {
		tokens := make(map[string]string, len(r.OtherTokens))
		for k, v := range r.OtherTokens {
			tokens[k] = v
		}
		out.OtherTokens = tokens
	}
	return &out
}

// HasTask reports whether the task id is in the fan-out set
func (r *Registration) HasTask(id string) bool {
	for _, t := range r.RegisteredTasks {
		if t == id {
			return true
		}
	}
	return false
}

// AddTask adds the task id to the fan-out set if absent
func (r *Registration) AddTask(id string) {
	if !r.HasTask(id) {
		r.RegisteredTasks = append(r.RegisteredTasks, id)
	}
}

// RemoveTask removes the task id from the fan-out set
func (r *Registration) RemoveTask(id string) {
	out := r.RegisteredTasks[:0]
	for _, t := range r.RegisteredTasks {
		if t != id {
			out = append(out, t)
		}
	}
	r.RegisteredTasks = out
}

// ErrRegistrationNotFound is returned when a registry entry is not found
type ErrRegistrationNotFound struct {
	SourceIdentifier string
}

func (e ErrRegistrationNotFound) Error() string {
	return "webhook registration not found: " + e.SourceIdentifier
}
