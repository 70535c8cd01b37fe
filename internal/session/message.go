package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message types.
const (
	MsgTypeInput  = "input"
	MsgTypeOutput = "output"
)

// BaseMessage is the serializable body shared by input and output messages.
// It is also the payload pushed to progress sinks and stored in the
// conversation log.
type BaseMessage struct {
	SessionID string    `json:"session_id"`
	ConvID    string    `json:"conv_id"`
	MsgID     string    `json:"msg_id"`
	MsgType   string    `json:"msg_type"`
	Actions   []string  `json:"actions"`
	Agents    []string  `json:"agents"`
	Content   []Content `json:"content"`
	Status    MsgStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ProgressSink receives output message snapshots as a run progresses.
// Delivery is best effort: implementations must never block the run and
// must swallow their own failures.
type ProgressSink interface {
	Push(update BaseMessage)
}

// NoopSink discards all updates.
type NoopSink struct{}

func (NoopSink) Push(BaseMessage) {}

// NewInputMessage builds the stored record of a user request.
func NewInputMessage(sessionID, convID, text string) BaseMessage {
	return BaseMessage{
		SessionID: sessionID,
		ConvID:    convID,
		MsgID:     fmt.Sprintf("%s-%s", convID, uuid.New().String()[:8]),
		MsgType:   MsgTypeInput,
		Actions:   []string{},
		Agents:    []string{},
		Content:   []Content{{Type: ContentTypeText, Status: StatusSuccess, Text: text}},
		Status:    StatusSuccess,
		CreatedAt: time.Now().UTC(),
	}
}

// OutputMessage is the response under construction for one run. Agents
// running concurrently mutate it through Update, which pushes a snapshot to
// the sink after every change, so clients see each state at least once.
type OutputMessage struct {
	mu   sync.Mutex
	body BaseMessage
	sink ProgressSink
}

// NewOutputMessage creates an output message in progress state bound to a
// sink. A nil sink is replaced with NoopSink.
func NewOutputMessage(sessionID, convID string, sink ProgressSink) *OutputMessage {
	if sink == nil {
		sink = NoopSink{}
	}
	return &OutputMessage{
		body: BaseMessage{
			SessionID: sessionID,
			ConvID:    convID,
			MsgID:     fmt.Sprintf("%s-%s", convID, uuid.New().String()[:8]),
			MsgType:   MsgTypeOutput,
			Actions:   []string{},
			Agents:    []string{},
			Content:   []Content{},
			Status:    StatusProgress,
			CreatedAt: time.Now().UTC(),
		},
		sink: sink,
	}
}

// Update applies fn under the message lock and pushes the resulting
// snapshot to the sink.
func (m *OutputMessage) Update(fn func(*BaseMessage)) {
	m.mu.Lock()
	fn(&m.body)
	snapshot := m.copyBody()
	m.mu.Unlock()

	m.sink.Push(snapshot)
}

// Push sends the current snapshot without modifying the message.
func (m *OutputMessage) Push() {
	m.sink.Push(m.Snapshot())
}

// Snapshot returns a copy of the message body safe to read concurrently.
func (m *OutputMessage) Snapshot() BaseMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyBody()
}

func (m *OutputMessage) copyBody() BaseMessage {
	snapshot := m.body
	snapshot.Actions = append([]string(nil), m.body.Actions...)
	snapshot.Agents = append([]string(nil), m.body.Agents...)
	snapshot.Content = append([]Content(nil), m.body.Content...)
	return snapshot
}

// AddAction appends a human-readable action line.
func (m *OutputMessage) AddAction(action string) {
	m.Update(func(body *BaseMessage) {
		body.Actions = append(body.Actions, action)
	})
}

// AddAgent records an agent as part of this response.
func (m *OutputMessage) AddAgent(name string) {
	m.Update(func(body *BaseMessage) {
		for _, existing := range body.Agents {
			if existing == name {
				return
			}
		}
		body.Agents = append(body.Agents, name)
	})
}

// AddContent appends a content block.
func (m *OutputMessage) AddContent(content Content) {
	m.Update(func(body *BaseMessage) {
		body.Content = append(body.Content, content)
	})
}

// SetStatus moves the message to a terminal or progress status.
func (m *OutputMessage) SetStatus(status MsgStatus) {
	m.Update(func(body *BaseMessage) {
		body.Status = status
	})
}
