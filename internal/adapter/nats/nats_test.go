package nats

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// uniqueSubject returns a test subject under the "workflows." prefix
// which the PHASELINE stream captures (workflows.>).
func uniqueSubject(t *testing.T) string {
	t.Helper()
	return "workflows.test." + t.Name()
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	type payload struct {
		WorkflowID string `json:"workflow_id"`
		To         string `json:"to"`
	}
	want := payload{WorkflowID: "wf-1", To: "in_progress"}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var (
		mu       sync.Mutex
		received *payload
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(_ string, d []byte) error {
		var got payload
		if err := json.Unmarshal(d, &got); err != nil {
			return err
		}
		mu.Lock()
		received = &got
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()

	if received == nil {
		t.Fatal("handler was not called")
	}
	if received.WorkflowID != want.WorkflowID || received.To != want.To {
		t.Errorf("got %+v, want %+v", *received, want)
	}
}
