// Package routing defines the static topic-to-responder route table and the
// confidence validation decision function.
package routing

import (
	"fmt"
	"sort"
	"time"

	"github.com/phaseline/phaseline/internal/config"
	"github.com/phaseline/phaseline/internal/domain"
)

// Route resolves one topic to a responder endpoint.
type Route struct {
	Topic     string
	Endpoint  string
	Model     string
	Threshold int           // 0 = no override, use the default threshold
	Timeout   time.Duration // 0 = no override, use the dispatch timeout
}

// Table is an immutable topic lookup table built once at process start.
// No fuzzy fallback: topics match exactly or not at all.
type Table struct {
	routes map[string]Route
	topics []string // sorted, for error reporting
}

// NewTable builds a Table from configured route specs.
func NewTable(specs []config.RouteSpec) (*Table, error) {
	routes := make(map[string]Route, len(specs))
	for _, s := range specs {
		if _, dup := routes[s.Topic]; dup {
			return nil, fmt.Errorf("%w: duplicate route for topic %q", domain.ErrValidation, s.Topic)
		}
		routes[s.Topic] = Route{
			Topic:     s.Topic,
			Endpoint:  s.Endpoint,
			Model:     s.Model,
			Threshold: s.Threshold,
			Timeout:   s.Timeout,
		}
	}

	topics := make([]string, 0, len(routes))
	for t := range routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	return &Table{routes: routes, topics: topics}, nil
}

// Resolve returns the route for topic. Unmatched topics fail with an
// UnknownTopicError listing every configured topic.
func (t *Table) Resolve(topic string) (Route, error) {
	r, ok := t.routes[topic]
	if !ok {
		return Route{}, &UnknownTopicError{Topic: topic, Available: t.topics}
	}
	return r, nil
}

// Threshold returns the confidence threshold for topic, falling back to
// defaultThreshold when the route carries no override. Unknown topics get
// the default; Resolve is the place that rejects them.
func (t *Table) Threshold(topic string, defaultThreshold int) int {
	if r, ok := t.routes[topic]; ok && r.Threshold > 0 {
		return r.Threshold
	}
	return defaultThreshold
}

// Topics returns the sorted list of configured topics.
func (t *Table) Topics() []string {
	return append([]string(nil), t.topics...)
}

// UnknownTopicError reports a dispatch against an unconfigured topic.
// It carries the configured topic list so the failure is listable, not silent.
type UnknownTopicError struct {
	Topic     string
	Available []string
}

func (e *UnknownTopicError) Error() string {
	return fmt.Sprintf("no route for topic %q (configured: %v)", e.Topic, e.Available)
}

// Unwrap ties UnknownTopicError into the shared sentinel taxonomy.
func (e *UnknownTopicError) Unwrap() error { return domain.ErrUnknownTopic }
