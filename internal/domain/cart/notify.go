package cart

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

type Operation string

const (
	OpAddProduct          Operation = "add_product"
	OpRemoveProduct       Operation = "remove_product"
	OpUpdateProductAmount Operation = "update_product_amount"
)

const (
	MsgOutOfStock    = "Requested quantity is out of stock"
	MsgAddFailed     = "Error adding product"
	MsgRemoveFailed  = "Error removing product"
	MsgUpdateFailed  = "Error updating product amount"
	defaultLogLength = 50
)

// Notification is a user-facing message describing a rejected operation.
type Notification struct {
	Op        Operation `json:"op"`
	ProductID int       `json:"product_id"`
	Message   string    `json:"message"`
	Err       error     `json:"-"`
	At        time.Time `json:"at"`
}

// Notifier is the sink for user-facing failure notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// LogNotifier writes notifications to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) {
	log.Printf("[Cart] %s (op=%s product=%d): %v", n.Message, n.Op, n.ProductID, n.Err)
}

// NotificationLog keeps the most recent notifications in memory.
type NotificationLog struct {
	mu    sync.RWMutex
	max   int
	items []Notification
}

func NewNotificationLog(max int) *NotificationLog {
	if max <= 0 {
		max = defaultLogLength
	}
	return &NotificationLog{max: max}
}

func (l *NotificationLog) Notify(_ context.Context, n Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, n)
	if len(l.items) > l.max {
		l.items = l.items[len(l.items)-l.max:]
	}
}

// Recent returns the stored notifications, oldest first.
func (l *NotificationLog) Recent() []Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Notification, len(l.items))
	copy(out, l.items)
	return out
}

// MultiNotifier fans a notification out to several sinks.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) {
	for _, sink := range m {
		sink.Notify(ctx, n)
	}
}

// MessageFor returns the user-facing text for a failed operation.
func MessageFor(op Operation, err error) string {
	if errors.Is(err, ErrInsufficientStock) {
		return MsgOutOfStock
	}
	switch op {
	case OpAddProduct:
		return MsgAddFailed
	case OpRemoveProduct:
		return MsgRemoveFailed
	default:
		return MsgUpdateFailed
	}
}
