package service

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/phaseline/phaseline/internal/domain"
	"github.com/phaseline/phaseline/internal/domain/audit"
	"github.com/phaseline/phaseline/internal/domain/escalation"
	"github.com/phaseline/phaseline/internal/domain/session"
	"github.com/phaseline/phaseline/internal/domain/workflow"
	"github.com/phaseline/phaseline/internal/port/database"
	"github.com/phaseline/phaseline/internal/port/messagequeue"
	"github.com/phaseline/phaseline/internal/port/responder"
)

// mockStore implements database.Store in memory for service tests.
type mockStore struct {
	mu          sync.Mutex
	nextID      int
	workflows   map[string]*workflow.Workflow
	history     map[string][]workflow.HistoryEntry
	sessions    map[string]*session.Session
	messages    map[string][]session.Message
	escalations map[string]*escalation.Escalation
}

func newMockStore() *mockStore {
	return &mockStore{
		workflows:   make(map[string]*workflow.Workflow),
		history:     make(map[string][]workflow.HistoryEntry),
		sessions:    make(map[string]*session.Session),
		messages:    make(map[string][]session.Message),
		escalations: make(map[string]*escalation.Escalation),
	}
}

func (m *mockStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockStore) CreateWorkflow(_ context.Context, req workflow.CreateRequest) (*workflow.Workflow, error) {
	phases, err := workflow.Phases(req.Type)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	w := &workflow.Workflow{
		ID:           m.id("wf"),
		Type:         req.Type,
		Status:       workflow.StatusPending,
		SubjectID:    req.SubjectID,
		CurrentPhase: 1,
		PhaseName:    phases[0].Name,
		Context:      req.Context,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.workflows[w.ID] = w
	return cloneWorkflow(w), nil
}

func (m *mockStore) GetWorkflow(_ context.Context, id string) (*workflow.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok {
		return nil, fmt.Errorf("get workflow %s: %w", id, domain.ErrNotFound)
	}
	return cloneWorkflow(w), nil
}

func (m *mockStore) ListWorkflowsBySubject(_ context.Context, subjectID string) ([]workflow.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []workflow.Workflow
	for _, w := range m.workflows {
		if w.SubjectID == subjectID {
			out = append(out, *cloneWorkflow(w))
		}
	}
	return out, nil
}

func (m *mockStore) TransitionWorkflow(_ context.Context, req database.TransitionRequest) (*workflow.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[req.WorkflowID]
	if !ok {
		return nil, fmt.Errorf("transition workflow %s: %w", req.WorkflowID, domain.ErrNotFound)
	}
	if w.Version != req.ExpectedVersion {
		return nil, fmt.Errorf("transition workflow %s: %w", req.WorkflowID, domain.ErrConflict)
	}
	from := w.Status
	w.Status = req.To
	w.CurrentPhase = req.Phase
	w.PhaseName = req.PhaseName
	w.Result = req.Result
	w.Error = req.Error
	if req.Rework {
		w.ReworkCount++
	}
	w.Version++
	w.UpdatedAt = time.Now()

	seq := len(m.history[w.ID]) + 1
	m.history[w.ID] = append(m.history[w.ID], workflow.HistoryEntry{
		ID:         m.id("hist"),
		WorkflowID: w.ID,
		Seq:        seq,
		FromStatus: from,
		ToStatus:   req.To,
		Trigger:    req.Trigger,
		Metadata:   req.Metadata,
		CreatedAt:  time.Now(),
	})
	return cloneWorkflow(w), nil
}

func (m *mockStore) ListHistory(_ context.Context, workflowID string) ([]workflow.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]workflow.HistoryEntry(nil), m.history[workflowID]...), nil
}

func (m *mockStore) LastHistoryEntry(_ context.Context, workflowID string) (*workflow.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[workflowID]
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1]
	return &last, nil
}

func (m *mockStore) CreateSession(_ context.Context, req session.CreateRequest, ttl time.Duration) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	s := &session.Session{
		ID:            m.id("sess"),
		ResponderRole: req.ResponderRole,
		SubjectID:     req.SubjectID,
		Status:        session.StatusActive,
		CreatedAt:     now,
		LastActivity:  now,
		ExpiresAt:     now.Add(ttl),
	}
	m.sessions[s.ID] = s
	out := *s
	return &out, nil
}

func (m *mockStore) GetSession(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", id, domain.ErrNotFound)
	}
	out := *s
	return &out, nil
}

func (m *mockStore) AppendMessage(_ context.Context, msg *session.Message) (*session.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		return nil, fmt.Errorf("append message %s: %w", msg.SessionID, domain.ErrNotFound)
	}
	created := *msg
	created.ID = m.id("msg")
	created.Seq = len(m.messages[msg.SessionID]) + 1
	created.CreatedAt = time.Now()
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], created)
	s.LastActivity = created.CreatedAt
	return &created, nil
}

func (m *mockStore) ListMessages(_ context.Context, sessionID string) ([]session.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]session.Message(nil), m.messages[sessionID]...), nil
}

func (m *mockStore) CloseSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("close session %s: %w", id, domain.ErrNotFound)
	}
	s.Status = session.StatusClosed
	return nil
}

func (m *mockStore) MarkSessionExpired(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.Status == session.StatusActive {
		s.Status = session.StatusExpired
	}
	return nil
}

func (m *mockStore) CreateEscalation(_ context.Context, e *escalation.Escalation) (*escalation.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := *e
	created.ID = m.id("esc")
	created.Status = escalation.StatusPending
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	m.escalations[created.ID] = &created
	out := created
	return &out, nil
}

func (m *mockStore) GetEscalation(_ context.Context, id string) (*escalation.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escalations[id]
	if !ok {
		return nil, fmt.Errorf("get escalation %s: %w", id, domain.ErrNotFound)
	}
	out := *e
	return &out, nil
}

func (m *mockStore) ListEscalationsByStatus(_ context.Context, status escalation.Status) ([]escalation.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []escalation.Escalation
	for _, e := range m.escalations {
		if e.Status == status {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockStore) ResolveEscalation(_ context.Context, id string, action escalation.Action, responderName, response string) (*escalation.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escalations[id]
	if !ok {
		return nil, fmt.Errorf("resolve escalation %s: %w", id, domain.ErrNotFound)
	}
	if e.Status != escalation.StatusPending {
		return nil, fmt.Errorf("resolve escalation %s: %w", id, domain.ErrEscalationResolved)
	}
	now := time.Now()
	e.Status = escalation.StatusResolved
	e.HumanAction = action
	e.ResponderID = responderName
	e.HumanResponse = response
	e.ResolvedAt = &now
	out := *e
	return &out, nil
}

func (m *mockStore) MarkEscalationExpired(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.escalations[id]; ok && e.Status == escalation.StatusPending {
		now := time.Now()
		e.Status = escalation.StatusExpired
		e.ResolvedAt = &now
	}
	return nil
}

func cloneWorkflow(w *workflow.Workflow) *workflow.Workflow {
	out := *w
	return &out
}

// mockCache implements cache.Cache in memory, ignoring TTLs.
type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	mu        sync.Mutex
	published []struct {
		subject string
		data    []byte
	}
	publishErr error
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, struct {
		subject string
		data    []byte
	}{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Close() error { return nil }

func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.published))
	for i, p := range q.published {
		out[i] = p.subject
	}
	return out
}

// mockResponder implements responder.Client with scripted answers.
type mockResponder struct {
	mu      sync.Mutex
	answers []responder.Answer
	err     error
	calls   []responder.Request
}

func (r *mockResponder) Ask(_ context.Context, _ string, req responder.Request, _ time.Duration) (*responder.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	if r.err != nil {
		return nil, r.err
	}
	if len(r.answers) == 0 {
		return &responder.Answer{CorrelationID: req.CorrelationID, Answer: "ok", Confidence: 100}, nil
	}
	ans := r.answers[0]
	r.answers = r.answers[1:]
	if ans.CorrelationID == "" {
		ans.CorrelationID = req.CorrelationID
	}
	return &ans, nil
}

// mockAuditLog implements auditlog.Log in memory.
type mockAuditLog struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (l *mockAuditLog) Record(_ context.Context, entry *audit.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := *entry
	e.ID = fmt.Sprintf("audit-%d", len(l.entries)+1)
	e.CreatedAt = time.Now()
	l.entries = append(l.entries, e)
	return nil
}

func (l *mockAuditLog) QueryBySubject(_ context.Context, subjectID string) iter.Seq2[audit.Entry, error] {
	return func(yield func(audit.Entry, error) bool) {
		l.mu.Lock()
		entries := append([]audit.Entry(nil), l.entries...)
		l.mu.Unlock()
		for _, e := range entries {
			if e.SubjectID != subjectID {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}
