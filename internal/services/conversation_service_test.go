package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"botup-realtime/internal/events"
	"botup-realtime/internal/models"
	"botup-realtime/internal/realtime"
	"botup-realtime/internal/store"
)

// recordingEmitter captures every emitted event for assertions.
type recordingEmitter struct {
	emitted []emittedEvent
}

type emittedEvent struct {
	room  realtime.RoomKey
	event string
	data  interface{}
}

func (e *recordingEmitter) EmitToRoom(room realtime.RoomKey, eventType string, data interface{}) {
	e.emitted = append(e.emitted, emittedEvent{room: room, event: eventType, data: data})
}

func (e *recordingEmitter) find(eventType string) (emittedEvent, bool) {
	for _, ev := range e.emitted {
		if ev.event == eventType {
			return ev, true
		}
	}
	return emittedEvent{}, false
}

// fakeTransitionStore is an in-memory TransitionStore mirroring the store's
// conditional transition semantics.
type fakeTransitionStore struct {
	conversations map[uint]*models.Conversation
	agents        map[uint]*models.Agent
	botClients    map[uint]uint // chatbot id -> client id
	systemTexts   []string
}

func newFakeTransitionStore() *fakeTransitionStore {
	return &fakeTransitionStore{
		conversations: make(map[uint]*models.Conversation),
		agents:        make(map[uint]*models.Agent),
		botClients:    make(map[uint]uint),
	}
}

func (f *fakeTransitionStore) addConversation(id, chatbotID, clientID uint) *models.Conversation {
	conv := &models.Conversation{ID: id, ChatbotID: chatbotID, HandlingType: models.HandlingBot}
	f.conversations[id] = conv
	f.botClients[chatbotID] = clientID
	return conv
}

func (f *fakeTransitionStore) addAgent(id, clientID uint, name string) *models.Agent {
	agent := &models.Agent{ID: id, ClientID: clientID, Name: name}
	f.agents[id] = agent
	return agent
}

func (f *fakeTransitionStore) GetConversationForClient(id, clientID uint) (*models.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok || f.botClients[conv.ChatbotID] != clientID {
		return nil, fmt.Errorf("conversation %d: %w", id, store.ErrNotFound)
	}
	return conv, nil
}

func (f *fakeTransitionStore) GetAgent(id uint) (*models.Agent, error) {
	agent, ok := f.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %d: %w", id, store.ErrNotFound)
	}
	return agent, nil
}

func (f *fakeTransitionStore) GetAgentForClient(id, clientID uint) (*models.Agent, error) {
	agent, err := f.GetAgent(id)
	if err != nil || agent.ClientID != clientID {
		return nil, fmt.Errorf("agent %d: %w", id, store.ErrNotFound)
	}
	return agent, nil
}

func (f *fakeTransitionStore) ChatbotClientID(chatbotID uint) (uint, error) {
	clientID, ok := f.botClients[chatbotID]
	if !ok {
		return 0, fmt.Errorf("chatbot %d: %w", chatbotID, store.ErrNotFound)
	}
	return clientID, nil
}

func (f *fakeTransitionStore) Transfer(conversationID uint, agentID, departmentID *uint, systemText string) (*models.Conversation, error) {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrNotFound)
	}
	if conv.Ended() {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrConversationEnded)
	}
	if conv.HandlingType == models.HandlingAgent {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrAlreadyAssigned)
	}
	now := time.Now()
	conv.TransferTime = &now
	conv.HandlingType = models.HandlingTransferred
	conv.AgentID = nil
	if agentID != nil {
		conv.HandlingType = models.HandlingAgent
		conv.AgentID = agentID
	}
	f.systemTexts = append(f.systemTexts, systemText)
	return conv, nil
}

func (f *fakeTransitionStore) Accept(conversationID, agentID uint, systemText string) (*models.Conversation, error) {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrNotFound)
	}
	if conv.Ended() {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrConversationEnded)
	}
	if conv.AgentID != nil {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrAlreadyAssigned)
	}
	if conv.HandlingType != models.HandlingTransferred {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrNotFound)
	}
	conv.HandlingType = models.HandlingAgent
	conv.AgentID = &agentID
	f.systemTexts = append(f.systemTexts, systemText)
	return conv, nil
}

func (f *fakeTransitionStore) End(conversationID, agentID uint, systemText string) (*models.Conversation, error) {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrNotFound)
	}
	if conv.Ended() {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrConversationEnded)
	}
	if conv.AgentID == nil || *conv.AgentID != agentID {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrNotAssigned)
	}
	now := time.Now()
	endedBy := models.SenderAgent
	conv.EndedAt = &now
	conv.EndedBy = &endedBy
	f.systemTexts = append(f.systemTexts, systemText)
	return conv, nil
}

func newTestConversationService(t *testing.T) (*ConversationService, *fakeTransitionStore, *recordingEmitter) {
	t.Helper()
	st := newFakeTransitionStore()
	emitter := &recordingEmitter{}
	svc, err := NewConversationService(st, emitter)
	if err != nil {
		t.Fatalf("NewConversationService: %v", err)
	}
	return svc, st, emitter
}

func TestTransferDirectNotifiesAgentRoom(t *testing.T) {
	svc, st, emitter := newTestConversationService(t)
	st.addConversation(10, 5, 1)
	st.addAgent(3, 1, "Alice")

	agentID := uint(3)
	updated, err := svc.Transfer(10, 1, &agentID, nil)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if updated.HandlingType != models.HandlingAgent {
		t.Errorf("handling type = %q, want agent", updated.HandlingType)
	}

	ev, ok := emitter.find(events.ConversationAssigned)
	if !ok {
		t.Fatal("conversation_assigned not emitted")
	}
	if ev.room != realtime.AgentRoom(3) {
		t.Errorf("emitted to %v, want agent room 3", ev.room)
	}
	payload := ev.data.(events.ConversationAssignedPayload)
	if payload.ConversationID != 10 || payload.BotID != 5 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestTransferUnassignedNotifiesClientRoom(t *testing.T) {
	svc, st, emitter := newTestConversationService(t)
	st.addConversation(10, 5, 1)

	updated, err := svc.Transfer(10, 1, nil, nil)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if updated.HandlingType != models.HandlingTransferred {
		t.Errorf("handling type = %q, want transferred", updated.HandlingType)
	}

	ev, ok := emitter.find(events.NewConversation)
	if !ok {
		t.Fatal("new_conversation not emitted")
	}
	if ev.room != realtime.ClientRoom(1) {
		t.Errorf("emitted to %v, want client room 1", ev.room)
	}
}

func TestTransferRejectsForeignAgent(t *testing.T) {
	svc, st, emitter := newTestConversationService(t)
	st.addConversation(10, 5, 1)
	st.addAgent(3, 2, "Mallory") // belongs to another client

	agentID := uint(3)
	if _, err := svc.Transfer(10, 1, &agentID, nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if len(emitter.emitted) != 0 {
		t.Errorf("events emitted on failed transfer: %+v", emitter.emitted)
	}
}

func TestTransferRejectsForeignConversation(t *testing.T) {
	svc, st, _ := newTestConversationService(t)
	st.addConversation(10, 5, 1)

	if _, err := svc.Transfer(10, 2, nil, nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestQueueForAnyAgentEmitsLastMessage(t *testing.T) {
	svc, st, emitter := newTestConversationService(t)
	conv := st.addConversation(10, 5, 1)

	if err := svc.QueueForAnyAgent(conv, "I need help with something complex"); err != nil {
		t.Fatalf("QueueForAnyAgent: %v", err)
	}

	ev, ok := emitter.find(events.NewConversation)
	if !ok {
		t.Fatal("new_conversation not emitted")
	}
	if ev.room != realtime.ClientRoom(1) {
		t.Errorf("emitted to %v, want client room 1", ev.room)
	}
	payload := ev.data.(events.NewConversationPayload)
	if payload.LastMessage != "I need help with something complex" {
		t.Errorf("last message = %q", payload.LastMessage)
	}
	if st.conversations[10].HandlingType != models.HandlingTransferred {
		t.Errorf("handling type = %q, want transferred", st.conversations[10].HandlingType)
	}
}

func TestAcceptNotifiesConversationRoom(t *testing.T) {
	svc, st, emitter := newTestConversationService(t)
	conv := st.addConversation(10, 5, 1)
	conv.HandlingType = models.HandlingTransferred
	st.addAgent(3, 1, "Alice")

	updated, err := svc.Accept(10, 3)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if updated.AgentID == nil || *updated.AgentID != 3 {
		t.Errorf("agent id = %v, want 3", updated.AgentID)
	}

	ev, ok := emitter.find(events.AgentJoined)
	if !ok {
		t.Fatal("agent_joined not emitted")
	}
	if ev.room != realtime.ConversationRoom(10) {
		t.Errorf("emitted to %v, want conversation room 10", ev.room)
	}
	payload := ev.data.(events.AgentJoinedPayload)
	if payload.AgentName != "Alice" || payload.AgentID != 3 {
		t.Errorf("payload = %+v", payload)
	}

	if len(st.systemTexts) != 1 || st.systemTexts[0] != "Alice has joined the conversation" {
		t.Errorf("system texts = %v", st.systemTexts)
	}
}

func TestAcceptLoserGetsNoEvent(t *testing.T) {
	svc, st, emitter := newTestConversationService(t)
	conv := st.addConversation(10, 5, 1)
	conv.HandlingType = models.HandlingTransferred
	st.addAgent(3, 1, "Alice")
	st.addAgent(4, 1, "Bob")

	if _, err := svc.Accept(10, 3); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	emitter.emitted = nil

	if _, err := svc.Accept(10, 4); !errors.Is(err, store.ErrAlreadyAssigned) {
		t.Errorf("second accept error = %v, want ErrAlreadyAssigned", err)
	}
	if len(emitter.emitted) != 0 {
		t.Errorf("events emitted on losing accept: %+v", emitter.emitted)
	}
}

func TestEndNotifiesConversationRoom(t *testing.T) {
	svc, st, emitter := newTestConversationService(t)
	conv := st.addConversation(10, 5, 1)
	conv.HandlingType = models.HandlingTransferred
	st.addAgent(3, 1, "Alice")
	if _, err := svc.Accept(10, 3); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	updated, err := svc.End(10, 3)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if !updated.Ended() {
		t.Error("conversation not ended")
	}

	ev, ok := emitter.find(events.ConversationEnded)
	if !ok {
		t.Fatal("conversation_ended not emitted")
	}
	if ev.room != realtime.ConversationRoom(10) {
		t.Errorf("emitted to %v, want conversation room 10", ev.room)
	}

	// Accepting after end must fail.
	st.addAgent(4, 1, "Bob")
	if _, err := svc.Accept(10, 4); !errors.Is(err, store.ErrConversationEnded) {
		t.Errorf("accept after end error = %v, want ErrConversationEnded", err)
	}
}

func TestEndByNonOwnerRejected(t *testing.T) {
	svc, st, emitter := newTestConversationService(t)
	conv := st.addConversation(10, 5, 1)
	conv.HandlingType = models.HandlingTransferred
	st.addAgent(3, 1, "Alice")
	st.addAgent(4, 1, "Bob")
	if _, err := svc.Accept(10, 3); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	emitter.emitted = nil

	if _, err := svc.End(10, 4); !errors.Is(err, store.ErrNotAssigned) {
		t.Errorf("error = %v, want ErrNotAssigned", err)
	}
	if len(emitter.emitted) != 0 {
		t.Errorf("events emitted on rejected end: %+v", emitter.emitted)
	}
}
