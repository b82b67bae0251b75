// Package notify sends rendered messages to the chat channel.
package notify

import (
	"context"
	"strconv"
	"sync"

	"github.com/betbot/traderelay/internal/domain"
)

// Channel delivers one message and returns its handle. A non-empty replyTo
// threads the message under an earlier one.
type Channel interface {
	Send(ctx context.Context, text, replyTo string) (handle string, err error)
}

type Sent struct {
	Text    string
	ReplyTo string
	Handle  string
}

// Recorder is an in-memory Channel. Handles are sequential decimal strings.
type Recorder struct {
	mu   sync.Mutex
	next int64
	sent []Sent

	// ErrorOnNext fails the next Send and is then cleared.
	ErrorOnNext error
}

func NewRecorder() *Recorder {
	return &Recorder{next: 1}
}

func (r *Recorder) Send(ctx context.Context, text, replyTo string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ErrorOnNext; err != nil {
		r.ErrorOnNext = nil
		return "", domain.NewError(domain.KindNotificationError, "recorder: send", err)
	}
	if err := ctx.Err(); err != nil {
		return "", domain.NewError(domain.KindNotificationError, "recorder: send", err)
	}
	handle := strconv.FormatInt(r.next, 10)
	r.next++
	r.sent = append(r.sent, Sent{Text: text, ReplyTo: replyTo, Handle: handle})
	return handle, nil
}

// Sent returns a copy of every delivered message in order.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}
