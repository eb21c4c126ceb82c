package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/receipt-advisor/internal/jobs"
)

func TestPublishAssignsDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	job := &jobs.IngestReceiptJob{GCSURI: "gs://receipts/a.jpg"}
	if err := q.PublishIngestReceipt(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	if job.JobID == "" {
		t.Error("job ID not assigned")
	}
	if job.Status != jobs.JobStatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}
	if job.UploadTime.IsZero() {
		t.Error("upload time not defaulted")
	}
	if job.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", job.MaxRetries)
	}

	saved, err := store.GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.GCSURI != "gs://receipts/a.jpg" {
		t.Errorf("saved uri = %q", saved.GCSURI)
	}
}

func TestQueueProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	done := make(chan string, 1)
	handler := func(ctx context.Context, job jobs.Job) error {
		done <- job.GetID()
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatal(err)
	}

	job := &jobs.IngestReceiptJob{GCSURI: "gs://receipts/a.jpg"}
	if err := q.PublishIngestReceipt(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	select {
	case id := <-done:
		if id != job.JobID {
			t.Errorf("handled job %q, want %q", id, job.JobID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}

	// Status updates race with the handler signal; poll until completed.
	deadline := time.Now().Add(2 * time.Second)
	for {
		saved, err := store.GetJob(context.Background(), job.JobID)
		if err != nil {
			t.Fatal(err)
		}
		if saved.Status == jobs.JobStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job status = %q, want completed", saved.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQueueRetriesFailedJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var attempts atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient failure")
		}
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatal(err)
	}

	job := &jobs.IngestReceiptJob{GCSURI: "gs://receipts/a.jpg"}
	if err := q.PublishIngestReceipt(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		saved, err := store.GetJob(context.Background(), job.JobID)
		if err != nil {
			t.Fatal(err)
		}
		if saved.Status == jobs.JobStatusCompleted {
			if saved.RetryCount != 1 {
				t.Errorf("retry count = %d, want 1", saved.RetryCount)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, status %q after %d attempts", saved.Status, attempts.Load())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	q := NewQueue(10, 1, NewStore())
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	err := q.PublishIngestReceipt(context.Background(), &jobs.IngestReceiptJob{GCSURI: "gs://receipts/a.jpg"})
	if err == nil {
		t.Fatal("expected error publishing to closed queue")
	}
}
