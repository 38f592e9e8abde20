package chatclient

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fixhub/internal/infrastructure/broadcast"
	"fixhub/internal/usecase"
	"fixhub/pkg/errors"
)

var (
	errNotSubscribed = errors.BadRequest("No conversation selected", nil)
	errEmptyInput    = errors.EmptyMessage()
)

// State is the session's lifecycle position. Rendering code switches on it.
type State string

const (
	StateNoConversation State = "no_conversation"
	StateLoading        State = "loading_history"
	StateSubscribed     State = "subscribed"
	StateDisconnected   State = "disconnected"
)

// MessageAPI is the request/response half of the messaging surface as the
// client sees it.
type MessageAPI interface {
	GetMessages(ctx context.Context, conversationID string) ([]*usecase.MessageResponse, error)
	SendMessage(ctx context.Context, conversationID, content string) (*usecase.MessageResponse, error)
}

// TypingPublisher emits the session's own typing presence. Delivery is
// best-effort and the session never waits on it.
type TypingPublisher interface {
	PublishTyping(ctx context.Context, conversationID string, started bool)
}

// ChatMessage is one rendered list entry. Pending marks an optimistic local
// echo that the server has not confirmed yet.
type ChatMessage struct {
	ID         string
	SenderID   string
	SenderName string
	Content    string
	CreatedAt  time.Time
	Pending    bool
}

// Session owns everything one chat screen needs: the selected conversation,
// its message list, the active-typists set, the input buffer, and the
// broadcast subscription. All mutation goes through its methods; the zero
// conversation state is StateNoConversation.
type Session struct {
	selfID   string
	selfName string

	api         MessageAPI
	broadcaster broadcast.Broadcaster
	typing      TypingPublisher

	debouncer *DebouncedEmitter
	typists   *ExpiringSet

	mu             sync.Mutex
	state          State
	conversationID string
	sub            *broadcast.Subscription
	pumpGen        int
	messages       []ChatMessage
	present        map[string]bool
	input          string
	typingActive   bool
	lastErr        error

	onChange func()
}

// Options carries the presence timings. Zero values fall back to the defaults
// the rest of the stack uses.
type Options struct {
	TypingDebounce time.Duration
	TypingExpiry   time.Duration
	OnChange       func()
}

const (
	defaultTypingDebounce = 500 * time.Millisecond
	defaultTypingExpiry   = 3 * time.Second
)

func NewSession(selfID, selfName string, api MessageAPI, broadcaster broadcast.Broadcaster, typing TypingPublisher, opts Options) *Session {
	if opts.TypingDebounce <= 0 {
		opts.TypingDebounce = defaultTypingDebounce
	}
	if opts.TypingExpiry <= 0 {
		opts.TypingExpiry = defaultTypingExpiry
	}

	s := &Session{
		selfID:      selfID,
		selfName:    selfName,
		api:         api,
		broadcaster: broadcaster,
		typing:      typing,
		state:       StateNoConversation,
		present:     make(map[string]bool),
		onChange:    opts.OnChange,
	}
	s.debouncer = NewDebouncedEmitter(opts.TypingDebounce, s.emitTypingStarted)
	s.typists = NewExpiringSet(opts.TypingExpiry, s.notify)
	return s
}

// SelectConversation switches the session to a conversation: previous
// subscription and timers are torn down, history is fetched ascending, and
// only then does the session start consuming live events.
func (s *Session) SelectConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	s.teardownLocked()
	s.state = StateLoading
	s.conversationID = conversationID
	s.lastErr = nil
	gen := s.pumpGen
	s.mu.Unlock()
	s.notify()

	history, err := s.api.GetMessages(ctx, conversationID)
	if err != nil {
		s.mu.Lock()
		if s.pumpGen == gen {
			s.state = StateNoConversation
			s.conversationID = ""
			s.lastErr = err
		}
		s.mu.Unlock()
		s.notify()
		return err
	}

	sub, err := s.broadcaster.Subscribe(broadcast.Topic(conversationID))
	if err != nil {
		s.mu.Lock()
		if s.pumpGen == gen {
			s.state = StateDisconnected
			s.lastErr = err
		}
		s.mu.Unlock()
		s.notify()
		return err
	}

	s.mu.Lock()
	if s.pumpGen != gen {
		// A newer SelectConversation won the race; this one is obsolete.
		s.mu.Unlock()
		sub.Close()
		return nil
	}
	s.messages = make([]ChatMessage, 0, len(history))
	s.present = make(map[string]bool, len(history))
	for _, item := range history {
		s.appendLocked(fromResponse(item))
	}
	s.sortLocked()
	s.sub = sub
	s.state = StateSubscribed
	s.mu.Unlock()
	s.notify()

	go s.pump(gen, sub)
	return nil
}

// Send performs the optimistic submit of the current input buffer. The
// provisional echo is appended before any network call; the authoritative
// message then reconciles against whichever arrives first, the API response
// or the broadcast copy.
func (s *Session) Send(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateSubscribed {
		s.mu.Unlock()
		return errNotSubscribed
	}
	content := s.input
	if content == "" {
		s.mu.Unlock()
		return errEmptyInput
	}
	conversationID := s.conversationID

	tempID := "local-" + uuid.New().String()
	s.appendLocked(ChatMessage{
		ID:         tempID,
		SenderID:   s.selfID,
		SenderName: s.selfName,
		Content:    content,
		CreatedAt:  time.Now(),
		Pending:    true,
	})
	s.sortLocked()
	s.input = ""
	s.mu.Unlock()
	s.notify()

	s.stopTyping(conversationID)

	response, err := s.api.SendMessage(ctx, conversationID, content)
	if err != nil {
		s.mu.Lock()
		s.removeLocked(tempID)
		if s.input == "" {
			s.input = content
		}
		s.lastErr = err
		s.mu.Unlock()
		s.notify()
		return err
	}

	s.mu.Lock()
	if s.conversationID == conversationID {
		s.reconcileLocked(tempID, fromResponse(response))
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// OnInputChange mirrors the input buffer and drives the send side of typing
// presence: a non-empty buffer arms the debounced typing_started, an empty one
// stops typing immediately.
func (s *Session) OnInputChange(text string) {
	s.mu.Lock()
	if s.state != StateSubscribed {
		s.mu.Unlock()
		return
	}
	s.input = text
	conversationID := s.conversationID
	s.mu.Unlock()

	if text == "" {
		s.stopTyping(conversationID)
		return
	}
	s.debouncer.Trigger()
}

// Close tears the session down. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	s.teardownLocked()
	s.state = StateNoConversation
	s.conversationID = ""
	s.mu.Unlock()
	s.notify()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns the rendered list, ascending by creation time.
func (s *Session) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ActiveTypists lists display names of participants currently typing.
func (s *Session) ActiveTypists() []string {
	return s.typists.Labels()
}

// pump consumes live events until the subscription closes. A closed channel
// while still current means the transport dropped; the session surfaces a
// reconnect hint instead of failing hard.
func (s *Session) pump(gen int, sub *broadcast.Subscription) {
	for event := range sub.Events() {
		s.handleEvent(gen, event)
	}

	s.mu.Lock()
	if s.pumpGen == gen && s.state == StateSubscribed {
		s.state = StateDisconnected
		s.sub = nil
		s.mu.Unlock()
		s.notify()
		return
	}
	s.mu.Unlock()
}

func (s *Session) handleEvent(gen int, event broadcast.Event) {
	switch event.Type {
	case broadcast.EventNewMessage:
		payload, err := event.DecodeNewMessage()
		if err != nil || payload.Message == nil {
			log.Printf("Session Warning: Malformed new_message event: %v", err)
			return
		}
		s.mu.Lock()
		if s.pumpGen == gen && !s.present[payload.Message.ID] {
			s.appendLocked(ChatMessage{
				ID:         payload.Message.ID,
				SenderID:   payload.Message.SenderID,
				SenderName: payload.SenderName,
				Content:    payload.Message.Content,
				CreatedAt:  payload.Message.CreatedAt,
			})
			s.sortLocked()
		}
		s.mu.Unlock()
		s.notify()

	case broadcast.EventTypingStarted:
		payload, err := event.DecodeTyping()
		if err != nil || payload.SenderID == s.selfID {
			return
		}
		s.typists.Add(payload.SenderID, payload.SenderName)

	case broadcast.EventTypingStopped:
		payload, err := event.DecodeTyping()
		if err != nil || payload.SenderID == s.selfID {
			return
		}
		s.typists.Remove(payload.SenderID)
	}
}

func (s *Session) emitTypingStarted() {
	s.mu.Lock()
	if s.state != StateSubscribed || s.input == "" {
		s.mu.Unlock()
		return
	}
	s.typingActive = true
	conversationID := s.conversationID
	s.mu.Unlock()

	s.typing.PublishTyping(context.Background(), conversationID, true)
}

// stopTyping cancels any pending debounced start and, if a start was already
// published, follows it with an immediate typing_stopped.
func (s *Session) stopTyping(conversationID string) {
	s.debouncer.Cancel()

	s.mu.Lock()
	wasActive := s.typingActive
	s.typingActive = false
	s.mu.Unlock()

	if wasActive {
		s.typing.PublishTyping(context.Background(), conversationID, false)
	}
}

// teardownLocked closes the current subscription and invalidates the pump.
// Timers and the typists set are reset; a published typing_started is not
// chased with a stop here because the receive side expires it on its own.
func (s *Session) teardownLocked() {
	s.pumpGen++
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	s.debouncer.Cancel()
	s.typists.Clear()
	s.typingActive = false
	s.messages = nil
	s.present = make(map[string]bool)
	s.input = ""
}

func (s *Session) appendLocked(message ChatMessage) {
	if s.present[message.ID] {
		return
	}
	s.present[message.ID] = true
	s.messages = append(s.messages, message)
}

func (s *Session) removeLocked(id string) {
	if !s.present[id] {
		return
	}
	delete(s.present, id)
	for i, message := range s.messages {
		if message.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// reconcileLocked lands the authoritative copy of an optimistic send. If the
// broadcast already delivered it, the provisional entry just disappears;
// otherwise the provisional entry becomes the authoritative one in place.
func (s *Session) reconcileLocked(tempID string, authoritative ChatMessage) {
	if s.present[authoritative.ID] {
		s.removeLocked(tempID)
		s.sortLocked()
		return
	}

	for i, message := range s.messages {
		if message.ID == tempID {
			if authoritative.SenderName == "" {
				authoritative.SenderName = message.SenderName
			}
			delete(s.present, tempID)
			s.present[authoritative.ID] = true
			s.messages[i] = authoritative
			s.sortLocked()
			return
		}
	}

	// Provisional already gone (conversation switched mid-flight); keep the
	// authoritative copy only if it belongs to the current list.
	if authoritative.ID != "" {
		s.appendLocked(authoritative)
		s.sortLocked()
	}
}

func (s *Session) sortLocked() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

func fromResponse(response *usecase.MessageResponse) ChatMessage {
	message := ChatMessage{
		ID:        response.ID,
		SenderID:  response.SenderID,
		Content:   response.Content,
		CreatedAt: response.CreatedAt,
	}
	if response.Sender != nil {
		message.SenderName = response.Sender.DisplayName
	}
	return message
}
