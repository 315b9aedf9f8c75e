package engine

import (
	"sync"
	"time"

	"github.com/ashureev/quarrel-labs/internal/advisor"
	"github.com/ashureev/quarrel-labs/internal/domain"
)

// EventType names a turn event.
type EventType string

const (
	EventState    EventType = "state"
	EventThinking EventType = "thinking"
	EventMessage  EventType = "message"
	EventNotice   EventType = "notice"
)

// NoticeKind classifies a disruption shown to the user.
type NoticeKind string

const (
	// NoticeOverloaded reports an exhausted generation quota.
	NoticeOverloaded NoticeKind = "overloaded"
	// NoticeInterrupted reports any other upstream failure.
	NoticeInterrupted NoticeKind = "interrupted"
)

// NoticeDismissAfter is the auto-dismiss hint attached to notices.
const NoticeDismissAfter = 4 * time.Second

// Notice is a transient disruption notification.
type Notice struct {
	Kind         NoticeKind    `json:"kind"`
	Text         string        `json:"text"`
	DismissAfter time.Duration `json:"-"`
}

// DismissAfterMillis is the auto-dismiss hint in milliseconds, for clients.
func (n Notice) DismissAfterMillis() int64 {
	return n.DismissAfter.Milliseconds()
}

func newNotice(kind NoticeKind) *Notice {
	text := "通信中断，请稍后再试。"
	if kind == NoticeOverloaded {
		text = "军师们忙不过来了（额度耗尽），请稍后再试。"
	}
	return &Notice{Kind: kind, Text: text, DismissAfter: NoticeDismissAfter}
}

// Event is emitted to observers while a turn runs.
type Event struct {
	Type     EventType
	OwnerID  string
	BattleID string
	State    State
	// Advisor is set on thinking and message events.
	Advisor advisor.ID
	Message *domain.Message
	Notice  *Notice
	At      time.Time
}

// Observer receives turn events. It is called synchronously on the turn's
// goroutine and must not block.
type Observer func(Event)

type observers struct {
	mu   sync.RWMutex
	next int
	subs map[int]Observer
}

func (o *observers) subscribe(fn Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]Observer)
	}
	id := o.next
	o.next++
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

func (o *observers) emit(ev Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, fn := range o.subs {
		fn(ev)
	}
}
