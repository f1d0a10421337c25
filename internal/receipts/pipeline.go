package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/notify"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/realtime"
)

var (
	ErrLimitExceeded = errors.New("receipt limit exceeded")
	ErrEmptyQueue    = errors.New("no files queued")
	ErrBadIndex      = errors.New("queue index out of range")
)

// SubmitError reports which file broke a submission. Files committed before
// it stay committed; only the failing file's upload is rolled back.
type SubmitError struct {
	FileName  string
	Committed int
	Err       error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("receipt %q failed after %d committed: %v", e.FileName, e.Committed, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	CountReceipts(ctx context.Context, orderID string) (int, error)
	InsertReceipt(ctx context.Context, receipt *models.OrderReceipt) error
	AppendTimeline(ctx context.Context, event *models.TimelineEvent) error
	UpdateStatusIf(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus) (bool, error)
}

type ObjectStorage interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, bucket string, paths []string) error
}

type Notifier interface {
	Send(ctx context.Context, template, to string, data map[string]string)
}

type Publisher interface {
	Publish(ev realtime.ChangeEvent)
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Queue holds files selected for one order but not yet submitted.
type Queue struct {
	OrderID  string
	UserID   string
	existing int
	files    []File
}

func (q *Queue) Len() int { return len(q.files) }

// Pipeline performs the ordered per-file submission protocol: upload the
// binary, insert the receipt record, append the timeline event. The loop is
// sequential on purpose: receipt numbering follows upload order and a
// failure only needs one compensating delete.
type Pipeline struct {
	Store         OrderStore
	Storage       ObjectStorage
	Notifier      Notifier
	Realtime      Publisher
	Bucket        string
	MaxReceipts   int
	OperatorEmail string
	Now           func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// NewQueue snapshots the order's current receipt count so the limit holds
// across enqueues.
func (p *Pipeline) NewQueue(ctx context.Context, orderID, userID string) (*Queue, error) {
	existing, err := p.Store.CountReceipts(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &Queue{OrderID: orderID, UserID: userID, existing: existing}, nil
}

// Enqueue adds a file, failing with ErrLimitExceeded once existing + queued
// would pass the cap. A rejected enqueue leaves the queue unchanged.
func (p *Pipeline) Enqueue(q *Queue, file File) error {
	if q.existing+len(q.files) >= p.MaxReceipts {
		return ErrLimitExceeded
	}
	q.files = append(q.files, file)
	return nil
}

// Dequeue removes a not-yet-submitted file. Already-committed receipts are
// untouched by definition: they are not in the queue anymore.
func (p *Pipeline) Dequeue(q *Queue, index int) error {
	if index < 0 || index >= len(q.files) {
		return ErrBadIndex
	}
	q.files = append(q.files[:index], q.files[index+1:]...)
	return nil
}

// SubmitAll commits every queued file in order. The first failure aborts the
// remaining files; if the record insert fails after the binary upload
// succeeded, the orphaned object is deleted once before the error surfaces.
// Whatever committed before the failure stays committed, including the
// pending → paid promotion when the order gained its first-ever receipt.
func (p *Pipeline) SubmitAll(ctx context.Context, q *Queue) ([]*models.OrderReceipt, error) {
	if len(q.files) == 0 {
		return nil, ErrEmptyQueue
	}

	var committed []*models.OrderReceipt
	var submitErr *SubmitError

	for _, file := range q.files {
		receipt, err := p.submitOne(ctx, q, file)
		if err != nil {
			submitErr = &SubmitError{FileName: file.Name, Committed: len(committed), Err: err}
			break
		}
		committed = append(committed, receipt)
	}
	q.files = nil

	if len(committed) > 0 && q.existing == 0 {
		p.promoteToPaid(ctx, q.OrderID)
	}
	if len(committed) > 0 {
		p.notifyOperator(ctx, q.OrderID, len(committed))
	}

	if submitErr != nil {
		return committed, submitErr
	}
	return committed, nil
}

func (p *Pipeline) submitOne(ctx context.Context, q *Queue, file File) (*models.OrderReceipt, error) {
	receiptID := uuid.NewString()
	path := q.OrderID + "/" + receiptID + "-" + file.Name

	storedPath, err := p.Storage.Upload(ctx, p.Bucket, path, file.Data, file.ContentType)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	receipt := &models.OrderReceipt{
		ReceiptID:  receiptID,
		OrderID:    q.OrderID,
		FileURL:    storedPath,
		FileName:   file.Name,
		UploadedAt: p.now(),
		UploadedBy: q.UserID,
	}
	if err := p.Store.InsertReceipt(ctx, receipt); err != nil {
		// Compensating rollback: the record never landed, so the stored
		// object must not survive. One attempt, not retried.
		if rmErr := p.Storage.Remove(ctx, p.Bucket, []string{storedPath}); rmErr != nil {
			zap.L().Error("orphaned receipt upload could not be removed",
				zap.String("order_id", q.OrderID),
				zap.String("path", storedPath),
				zap.Error(rmErr))
		}
		return nil, fmt.Errorf("insert receipt: %w", err)
	}

	event := &models.TimelineEvent{
		EventID:   uuid.NewString(),
		OrderID:   q.OrderID,
		EventType: models.EventReceiptUploaded,
		Message:   "comprovante enviado: " + file.Name,
		ActorType: models.ActorUser,
		Metadata:  map[string]string{"file_name": file.Name},
		CreatedAt: p.now(),
	}
	if err := p.Store.AppendTimeline(ctx, event); err != nil {
		// The receipt is committed; a missing timeline row is logged, not
		// rolled back.
		zap.L().Error("receipt timeline append failed",
			zap.String("order_id", q.OrderID),
			zap.Error(err))
	}

	if p.Realtime != nil {
		p.Realtime.Publish(realtime.ChangeEvent{
			EventID:   event.EventID,
			OrderID:   q.OrderID,
			Kind:      realtime.ChangeReceiptAdded,
			ReceiptID: receiptID,
			At:        receipt.UploadedAt,
		})
	}
	return receipt, nil
}

func (p *Pipeline) promoteToPaid(ctx context.Context, orderID string) {
	ok, err := p.Store.UpdateStatusIf(ctx, orderID, []models.OrderStatus{models.OrderPending}, models.OrderPaid)
	if err != nil {
		zap.L().Error("promote to paid failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	if ok && p.Realtime != nil {
		p.Realtime.Publish(realtime.ChangeEvent{
			EventID: uuid.NewString(),
			OrderID: orderID,
			Kind:    realtime.ChangeOrderStatus,
			Status:  models.OrderPaid,
			At:      p.now(),
		})
	}
}

func (p *Pipeline) notifyOperator(ctx context.Context, orderID string, count int) {
	if p.Notifier == nil || p.OperatorEmail == "" {
		return
	}
	p.Notifier.Send(ctx, notify.TemplateReceiptUploaded, p.OperatorEmail, map[string]string{
		"order_id": orderID,
		"count":    fmt.Sprintf("%d", count),
	})
}
