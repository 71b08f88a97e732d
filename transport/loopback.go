package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Delivered is a message accepted by the loopback transport.
type Delivered struct {
	ID       string
	GroupID  string
	Content  string
	Metadata map[string]string
}

// Loopback keeps delivered messages in memory. It is used by development
// relays and tests; Fail makes the next deliveries fail.
type Loopback struct {
	mu       sync.Mutex
	messages []Delivered
	failures int
}

// NewLoopback returns an empty loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Name implements Transport.
func (l *Loopback) Name() string { return "loopback" }

// Deliver implements Transport.
func (l *Loopback) Deliver(ctx context.Context, groupID, content string, metadata map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", failed(l.Name(), err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
		return "", failed(l.Name(), fmt.Errorf("delivery failure injected"))
	}
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	id := strconv.Itoa(len(l.messages) + 1)
	l.messages = append(l.messages, Delivered{ID: id, GroupID: groupID, Content: content, Metadata: md})
	return id, nil
}

// Fail makes the next n deliveries fail.
func (l *Loopback) Fail(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = n
}

// Messages returns a copy of the delivered messages, oldest first.
func (l *Loopback) Messages() []Delivered {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Delivered{}, l.messages...)
}
