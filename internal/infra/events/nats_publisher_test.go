//go:build !integration

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"agent-hub/internal/config"
	"agent-hub/internal/domain/model"
)

func newLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type fakeConn struct {
	PublishFunc func(subj string, data []byte) error
	subjects    []string
	payloads    [][]byte
	drained     bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.PublishFunc != nil {
		if err := f.PublishFunc(subj, data); err != nil {
			return err
		}
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestNATSPublisher(t *testing.T) {
	t.Run("should publish json on the prefixed subject", func(t *testing.T) {
		nc := &fakeConn{}
		p := newNATSPublisher(nc, "agenthub.events.", newLogger())
		e := &model.Event{
			ID:        "e1",
			ProjectID: "p1",
			Type:      model.EventPROpened,
			Payload:   map[string]any{"pr_id": "pr1"},
			CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}
		if err := p.Publish(context.Background(), e); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(nc.subjects) != 1 || nc.subjects[0] != "agenthub.events.pr_opened" {
			t.Fatalf("unexpected subjects: %v", nc.subjects)
		}
		var got model.Event
		if err := json.Unmarshal(nc.payloads[0], &got); err != nil {
			t.Fatalf("expected valid json, got %v", err)
		}
		if got.ProjectID != "p1" || got.Payload["pr_id"] != "pr1" {
			t.Errorf("unexpected payload: %+v", got)
		}
	})

	t.Run("should default the prefix", func(t *testing.T) {
		p := newNATSPublisher(&fakeConn{}, "  ", newLogger())
		if got := p.Subject("job_finished"); got != "agenthub.events.job_finished" {
			t.Errorf("unexpected subject %s", got)
		}
	})

	t.Run("should escape wildcard characters in the type", func(t *testing.T) {
		p := newNATSPublisher(&fakeConn{}, "x", newLogger())
		if got := p.Subject("a.b*>"); got != "x.a_b__" {
			t.Errorf("unexpected subject %s", got)
		}
		if got := p.Subject(""); got != "x.unknown" {
			t.Errorf("unexpected subject %s", got)
		}
	})

	t.Run("should wrap connection errors", func(t *testing.T) {
		boom := errors.New("boom")
		p := newNATSPublisher(&fakeConn{PublishFunc: func(string, []byte) error { return boom }}, "x", newLogger())
		err := p.Publish(context.Background(), &model.Event{Type: "t"})
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped boom, got %v", err)
		}
	})

	t.Run("should ignore nil events and drain on close", func(t *testing.T) {
		nc := &fakeConn{}
		p := newNATSPublisher(nc, "x", newLogger())
		if err := p.Publish(context.Background(), nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := p.Close(); err != nil || !nc.drained {
			t.Errorf("expected drain, got err=%v drained=%v", err, nc.drained)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("should return the noop publisher without a url", func(t *testing.T) {
		p, err := New(config.NATSConfig{}, newLogger())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := p.(NoopPublisher); !ok {
			t.Fatalf("expected NoopPublisher, got %T", p)
		}
	})
}
