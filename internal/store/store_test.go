package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"showrunner/internal/session"
	"showrunner/pkg/llm"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestCreateSessionUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("session-1", "video-1", "coll-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateSession(context.Background(), &session.Session{
		ID:           "session-1",
		VideoID:      "video-1",
		CollectionID: "coll-1",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT session_id, video_id, collection_id").
		WithArgs("missing").
		WillReturnError(errors.New("sql: no rows in result set"))

	mock.ExpectQuery("SELECT session_id, video_id, collection_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "video_id", "collection_id", "created_at", "updated_at", "metadata"}))

	// first attempt: driver error surfaces wrapped
	if _, err := store.GetSession(context.Background(), "missing"); err == nil {
		t.Fatal("expected error")
	}
	// second attempt: empty result maps to ErrSessionNotFound
	_, err := store.GetSession(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSaveMessageMarshalsJSONColumns(t *testing.T) {
	store, mock := newMockStore(t)

	msg := session.BaseMessage{
		SessionID: "session-1",
		ConvID:    "conv-1",
		MsgID:     "conv-1-abc",
		MsgType:   session.MsgTypeOutput,
		Agents:    []string{"search"},
		Actions:   []string{"Running @search agent"},
		Content:   []session.Content{{Type: session.ContentTypeText, Status: session.StatusSuccess, Text: "done"}},
		Status:    session.StatusSuccess,
	}

	agents, _ := json.Marshal(msg.Agents)
	actions, _ := json.Marshal(msg.Actions)
	content, _ := json.Marshal(msg.Content)

	mock.ExpectExec("INSERT INTO conversations").
		WithArgs("conv-1-abc", "session-1", "conv-1", session.MsgTypeOutput, agents, actions, content, "success").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.SaveMessage(context.Background(), msg); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetContextMessagesRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)

	saved := []session.ContextMessage{
		session.SystemMessage("rules"),
		session.UserMessage("find the goal"),
		session.AssistantMessage("", []llm.ToolCall{{ID: "call-1", Name: "search", Arguments: `{"query":"goal"}`}}),
		session.ToolMessage(`{"status":"success"}`, "call-1"),
	}
	contextData, _ := json.Marshal(saved)

	mock.ExpectQuery("SELECT context_data FROM context_messages").
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"context_data"}).AddRow(contextData))

	loaded, err := store.GetContextMessages(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	if len(loaded) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(loaded))
	}
	if loaded[2].ToolCalls[0].ID != "call-1" {
		t.Fatalf("tool call id lost: %+v", loaded[2])
	}
	if loaded[3].ToolCallID != "call-1" {
		t.Fatalf("tool pairing lost: %+v", loaded[3])
	}
}

func TestGetContextMessagesEmptyForNewSession(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT context_data FROM context_messages").
		WithArgs("fresh").
		WillReturnRows(sqlmock.NewRows([]string{"context_data"}))

	loaded, err := store.GetContextMessages(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty context, got %d messages", len(loaded))
	}
}

func TestSaveContextMessagesReplaces(t *testing.T) {
	store, mock := newMockStore(t)

	messages := []session.ContextMessage{session.UserMessage("hello")}
	contextData, _ := json.Marshal(messages)

	mock.ExpectExec("INSERT INTO context_messages").
		WithArgs("session-1", contextData).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.SaveContextMessages(context.Background(), "session-1", messages); err != nil {
		t.Fatalf("save context: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteSessionRemovesAllRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM conversations").
		WithArgs("session-1").
		WillReturnResult(sqlmock.NewResult(1, 3))
	mock.ExpectExec("DELETE FROM context_messages").
		WithArgs("session-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM sessions").
		WithArgs("session-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.DeleteSession(context.Background(), "session-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteSessionMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM conversations").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM context_messages").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM sessions").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.DeleteSession(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGetConversationOrdersByCreation(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT msg_id, session_id, conv_id, msg_type").
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"msg_id", "session_id", "conv_id", "msg_type", "agents", "actions", "content", "status", "created_at",
		}).
			AddRow("m-1", "session-1", "conv-1", "input", []byte(`[]`), []byte(`[]`), []byte(`[]`), "success", now).
			AddRow("m-2", "session-1", "conv-1", "output", []byte(`["search"]`), []byte(`[]`), []byte(`[]`), "success", now.Add(time.Second)))

	messages, err := store.GetConversation(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[1].Agents[0] != "search" {
		t.Fatalf("agents not decoded: %+v", messages[1])
	}
}
