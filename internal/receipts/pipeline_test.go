package receipts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/realtime"
)

type fakeOrderStore struct {
	status       models.OrderStatus
	receipts     []*models.OrderReceipt
	timeline     []*models.TimelineEvent
	failInsertAt int // 1-based insert call that fails, 0 for never
	insertCalls  int
}

func (f *fakeOrderStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return &models.Order{OrderID: orderID, Status: f.status}, nil
}

func (f *fakeOrderStore) CountReceipts(ctx context.Context, orderID string) (int, error) {
	return len(f.receipts), nil
}

func (f *fakeOrderStore) InsertReceipt(ctx context.Context, receipt *models.OrderReceipt) error {
	f.insertCalls++
	if f.failInsertAt != 0 && f.insertCalls == f.failInsertAt {
		return errors.New("duplicate key value violates unique constraint")
	}
	f.receipts = append(f.receipts, receipt)
	return nil
}

func (f *fakeOrderStore) AppendTimeline(ctx context.Context, event *models.TimelineEvent) error {
	f.timeline = append(f.timeline, event)
	return nil
}

func (f *fakeOrderStore) UpdateStatusIf(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus) (bool, error) {
	for _, s := range from {
		if f.status == s {
			f.status = to
			return true, nil
		}
	}
	return false, nil
}

type fakeStorage struct {
	uploads []string
	removed []string
}

func (f *fakeStorage) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	f.uploads = append(f.uploads, path)
	return path, nil
}

func (f *fakeStorage) Remove(ctx context.Context, bucket string, paths []string) error {
	f.removed = append(f.removed, paths...)
	return nil
}

type fakeNotifier struct {
	sent int
	to   string
}

func (f *fakeNotifier) Send(ctx context.Context, template, to string, data map[string]string) {
	f.sent++
	f.to = to
}

type fakePublisher struct {
	events []realtime.ChangeEvent
}

func (f *fakePublisher) Publish(ev realtime.ChangeEvent) {
	f.events = append(f.events, ev)
}

func newPipeline(st *fakeOrderStore, storage *fakeStorage, notifier *fakeNotifier, pub *fakePublisher) *Pipeline {
	return &Pipeline{
		Store:         st,
		Storage:       storage,
		Notifier:      notifier,
		Realtime:      pub,
		Bucket:        "receipts",
		MaxReceipts:   7,
		OperatorEmail: "ops@example.com",
		Now:           func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func file(name string) File {
	return File{Name: name, ContentType: "image/png", Data: []byte("png-bytes")}
}

func TestEnqueueLimit(t *testing.T) {
	st := &fakeOrderStore{status: models.OrderPaid}
	for i := 0; i < 5; i++ {
		st.receipts = append(st.receipts, &models.OrderReceipt{})
	}
	p := newPipeline(st, &fakeStorage{}, &fakeNotifier{}, &fakePublisher{})

	q, err := p.NewQueue(context.Background(), "order-1", "user-1")
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := p.Enqueue(q, file(fmt.Sprintf("doc-%d.png", i))); err != nil {
			t.Fatalf("enqueue %d under limit failed: %v", i, err)
		}
	}
	// 5 existing + 2 queued fills the cap of 7.
	if err := p.Enqueue(q, file("doc-extra.png")); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("enqueue past limit error = %v, want ErrLimitExceeded", err)
	}
	if q.Len() != 2 {
		t.Fatalf("queue len after rejected enqueue = %d, want 2", q.Len())
	}
}

func TestDequeue(t *testing.T) {
	st := &fakeOrderStore{status: models.OrderPending}
	p := newPipeline(st, &fakeStorage{}, &fakeNotifier{}, &fakePublisher{})

	q, _ := p.NewQueue(context.Background(), "order-1", "user-1")
	p.Enqueue(q, file("a.png"))
	p.Enqueue(q, file("b.png"))

	if err := p.Dequeue(q, 5); !errors.Is(err, ErrBadIndex) {
		t.Fatalf("out-of-range dequeue error = %v, want ErrBadIndex", err)
	}
	if err := p.Dequeue(q, 0); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("queue len after dequeue = %d, want 1", q.Len())
	}
}

func TestSubmitAllEmptyQueue(t *testing.T) {
	p := newPipeline(&fakeOrderStore{status: models.OrderPending}, &fakeStorage{}, &fakeNotifier{}, &fakePublisher{})
	q, _ := p.NewQueue(context.Background(), "order-1", "user-1")
	if _, err := p.SubmitAll(context.Background(), q); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("empty submit error = %v, want ErrEmptyQueue", err)
	}
}

func TestSubmitAllHappyPath(t *testing.T) {
	st := &fakeOrderStore{status: models.OrderPending}
	storage := &fakeStorage{}
	notifier := &fakeNotifier{}
	pub := &fakePublisher{}
	p := newPipeline(st, storage, notifier, pub)

	q, _ := p.NewQueue(context.Background(), "order-1", "user-1")
	p.Enqueue(q, file("a.png"))
	p.Enqueue(q, file("b.png"))

	committed, err := p.SubmitAll(context.Background(), q)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(committed) != 2 {
		t.Fatalf("committed = %d, want 2", len(committed))
	}
	if st.status != models.OrderPaid {
		t.Fatalf("status = %s, want paid after first receipt", st.status)
	}
	if len(st.timeline) != 2 {
		t.Fatalf("timeline events = %d, want 2", len(st.timeline))
	}
	if notifier.sent != 1 || notifier.to != "ops@example.com" {
		t.Fatalf("operator notification: sent=%d to=%q", notifier.sent, notifier.to)
	}
	// One receipt_added per file plus the status change.
	added := 0
	for _, ev := range pub.events {
		if ev.Kind == realtime.ChangeReceiptAdded {
			added++
		}
	}
	if added != 2 {
		t.Fatalf("receipt_added events = %d, want 2", added)
	}
}

func TestSubmitAllFailureMidBatch(t *testing.T) {
	st := &fakeOrderStore{status: models.OrderPending, failInsertAt: 2}
	storage := &fakeStorage{}
	p := newPipeline(st, storage, &fakeNotifier{}, &fakePublisher{})

	q, _ := p.NewQueue(context.Background(), "order-1", "user-1")
	p.Enqueue(q, file("one.png"))
	p.Enqueue(q, file("two.png"))
	p.Enqueue(q, file("three.png"))

	committed, err := p.SubmitAll(context.Background(), q)

	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Fatalf("error = %v, want *SubmitError", err)
	}
	if submitErr.FileName != "two.png" {
		t.Fatalf("failing file = %q, want two.png", submitErr.FileName)
	}
	if submitErr.Committed != 1 || len(committed) != 1 {
		t.Fatalf("committed = %d/%d, want 1", submitErr.Committed, len(committed))
	}

	// The third file was never attempted.
	if len(storage.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2 (third file skipped)", len(storage.uploads))
	}
	// The failing file's binary was rolled back; the first file's stays.
	if len(storage.removed) != 1 || storage.removed[0] != storage.uploads[1] {
		t.Fatalf("removed = %v, want only the second upload", storage.removed)
	}
	if len(st.receipts) != 1 || st.receipts[0].FileName != "one.png" {
		t.Fatalf("persisted receipts = %+v, want only one.png", st.receipts)
	}

	// The first receipt still promotes the order.
	if st.status != models.OrderPaid {
		t.Fatalf("status = %s, want paid despite the failure", st.status)
	}
}

func TestSubmitAllNoPromotionWithExistingReceipts(t *testing.T) {
	st := &fakeOrderStore{status: models.OrderProcessing}
	st.receipts = append(st.receipts, &models.OrderReceipt{FileName: "earlier.png"})
	p := newPipeline(st, &fakeStorage{}, &fakeNotifier{}, &fakePublisher{})

	q, _ := p.NewQueue(context.Background(), "order-1", "user-1")
	p.Enqueue(q, file("later.png"))

	if _, err := p.SubmitAll(context.Background(), q); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st.status != models.OrderProcessing {
		t.Fatalf("status = %s, promotion must only happen on the first receipt", st.status)
	}
}
