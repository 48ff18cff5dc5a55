package events

// EventType represents a domain event category, enabling type-safe event routing and handling.
type EventType string

// Run lifecycle event types.
const (
	EventTypeRunStarted        EventType = "ScanRunStarted"
	EventTypeRunBatchCompleted EventType = "ScanRunBatchCompleted"
	EventTypeRunCompleted      EventType = "ScanRunCompleted"
	EventTypeRunResumed        EventType = "ScanRunResumed"
	EventTypeTargetRescanned   EventType = "TargetRescanned"
)

// PublishOption is a function type that modifies PublishParams.
// It enables flexible configuration of event publishing behavior through functional options.
type PublishOption func(*PublishParams)

// PublishParams contains configuration options for publishing events.
type PublishParams struct {
	// Key overrides the event's routing key.
	Key string
	// Headers are merged into the event's headers.
	Headers map[string]string
}

// WithKey returns a PublishOption that sets a routing key for the event.
func WithKey(key string) PublishOption {
	return func(p *PublishParams) { p.Key = key }
}

// WithHeaders returns a PublishOption that attaches headers to the event.
func WithHeaders(headers map[string]string) PublishOption {
	return func(p *PublishParams) { p.Headers = headers }
}

// ApplyOptions resolves options against the event's own key and headers.
func ApplyOptions(evt DomainEvent, opts ...PublishOption) PublishParams {
	p := PublishParams{Key: evt.Key, Headers: map[string]string{}}
	for k, v := range evt.Headers {
		p.Headers[k] = v
	}
	var o PublishParams
	for _, opt := range opts {
		opt(&o)
	}
	if o.Key != "" {
		p.Key = o.Key
	}
	for k, v := range o.Headers {
		p.Headers[k] = v
	}
	return p
}
