package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/queue"
)

type recordingPublisher struct {
	topics []string
	msgs   []*message.Message
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	if p.err != nil {
		return p.err
	}

	for _, m := range msgs {
		p.topics = append(p.topics, topic)
		p.msgs = append(p.msgs, m)
	}

	return nil
}

func allOn() configs.EventsConfig {
	return configs.EventsConfig{
		Enabled:          true,
		File:             configs.FileEventsConfig{Uploaded: true, Updated: true, Failed: true},
		Batch:            configs.BatchEventsConfig{Completed: true},
		MigrationApplied: true,
	}
}

func TestEmitterRoundTrip(t *testing.T) {
	pub := &recordingPublisher{}
	e := queue.NewEmitter(pub, allOn())

	e.FileUploaded(context.Background(), queue.FileUploadedPayload{
		RunID:   "01HZX",
		File:    queue.FileRef{FileName: "a.txt", FileURL: "https://r/a"},
		Backend: "notion",
	})

	if len(pub.msgs) != 1 || pub.topics[0] != queue.TopicFileUploaded {
		t.Fatalf("published %v", pub.topics)
	}

	env, err := queue.ParseFileUploaded(pub.msgs[0])
	if err != nil {
		t.Fatalf("ParseFileUploaded() error = %v", err)
	}

	if env.Header.Topic != queue.TopicFileUploaded || env.Header.Producer != configs.AppName {
		t.Errorf("header = %+v", env.Header)
	}

	if env.Payload.File.FileName != "a.txt" || env.Payload.RunID != "01HZX" {
		t.Errorf("payload = %+v", env.Payload)
	}

	if pub.msgs[0].Metadata.Get("topic") != queue.TopicFileUploaded {
		t.Errorf("metadata topic = %q", pub.msgs[0].Metadata.Get("topic"))
	}
}

func TestEmitterToggles(t *testing.T) {
	ctx := context.Background()

	cfg := allOn()
	cfg.File.Failed = false
	cfg.MigrationApplied = false

	pub := &recordingPublisher{}
	e := queue.NewEmitter(pub, cfg)

	e.FileFailed(ctx, queue.FileFailedPayload{Reason: "upload"})
	e.MigrationApplied(ctx, queue.MigrationAppliedPayload{Version: 2})
	e.FileUpdated(ctx, queue.FileUploadedPayload{Reason: "content"})
	e.BatchCompleted(ctx, queue.BatchCompletedPayload{Total: 3})

	want := []string{queue.TopicFileUpdated, queue.TopicBatchCompleted}
	if len(pub.topics) != len(want) {
		t.Fatalf("topics = %v, want %v", pub.topics, want)
	}

	for i := range want {
		if pub.topics[i] != want[i] {
			t.Errorf("topics[%d] = %s, want %s", i, pub.topics[i], want[i])
		}
	}

	cfg.Enabled = false
	off := &recordingPublisher{}
	queue.NewEmitter(off, cfg).FileUpdated(ctx, queue.FileUploadedPayload{})

	if len(off.topics) != 0 {
		t.Errorf("master switch off still published %v", off.topics)
	}
}

func TestEmitterSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}

	// 不应 panic，也没有返回值可检查
	queue.NewEmitter(pub, allOn()).BatchCompleted(context.Background(), queue.BatchCompletedPayload{})

	var nilEmitter *queue.Emitter
	nilEmitter.FileUploaded(context.Background(), queue.FileUploadedPayload{})
	queue.NewEmitter(nil, allOn()).FileUploaded(context.Background(), queue.FileUploadedPayload{})
}

func TestDecodeBatchCompleted(t *testing.T) {
	msg, err := queue.NewWatermillMessage(queue.TopicBatchCompleted, queue.BatchCompletedPayload{
		RunID:  "r1",
		Total:  3,
		Counts: map[string]int{"skipped": 2, "failed": 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	env, err := queue.ParseBatchCompleted(msg)
	if err != nil {
		t.Fatalf("ParseBatchCompleted() error = %v", err)
	}

	if env.Payload.Counts["skipped"] != 2 || env.Header.Version != queue.PayloadVersionV1 {
		t.Errorf("decoded %+v", env)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*message.Message, error)
		want  string
	}{
		{
			name: "updated",
			build: func() (*message.Message, error) {
				return queue.NewWatermillMessage(queue.TopicFileUpdated, queue.FileUploadedPayload{
					File:   queue.FileRef{Path: "/d/a.txt", FileURL: "https://r/a"},
					Reason: "content",
				})
			},
			want: "yk.file.updated /d/a.txt -> https://r/a (content)",
		},
		{
			name: "failed",
			build: func() (*message.Message, error) {
				return queue.NewWatermillMessage(queue.TopicFileFailed, queue.FileFailedPayload{
					File:   queue.FileRef{Path: "/d/b.txt"},
					Reason: "upload",
					Error:  "503",
				})
			},
			want: "yk.file.failed /d/b.txt: upload: 503",
		},
		{
			name: "batch",
			build: func() (*message.Message, error) {
				return queue.NewWatermillMessage(queue.TopicBatchCompleted, queue.BatchCompletedPayload{
					RunID:  "r1",
					Total:  3,
					Counts: map[string]int{"skipped": 2, "failed": 1},
				})
			},
			want: "yk.batch.completed run=r1 total=3 uploaded_new=0 uploaded_updated=0 skipped=2 failed=1",
		},
		{
			name: "migration",
			build: func() (*message.Message, error) {
				return queue.NewWatermillMessage(queue.TopicMigrationApplied, queue.MigrationAppliedPayload{
					Version: 2, Name: "rekey_by_file_name", DurationMS: 12,
				})
			},
			want: "yk.migration.applied 2 rekey_by_file_name (12ms)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := tt.build()
			if err != nil {
				t.Fatal(err)
			}

			got, err := queue.Describe(msg)
			if err != nil {
				t.Fatalf("Describe() error = %v", err)
			}

			if got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := queue.Describe(message.NewMessage("x", []byte("{}"))); err == nil {
		t.Errorf("unknown topic accepted")
	}
}

func TestEmitterCarriesTraceID(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	pub := &recordingPublisher{}
	queue.NewEmitter(pub, allOn()).BatchCompleted(ctx, queue.BatchCompletedPayload{})

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages", len(pub.msgs))
	}

	if got := pub.msgs[0].Metadata.Get("trace_id"); got != traceID.String() {
		t.Errorf("trace_id = %q, want %s", got, traceID)
	}
}
