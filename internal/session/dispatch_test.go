package session

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/typewire/typewire/internal/auth"
	"github.com/typewire/typewire/internal/group"
	"github.com/typewire/typewire/internal/message"
)

type notice struct {
	Body string `json:"body"`
}

func (notice) Action() string { return "notice" }

func TestEventDispatch(t *testing.T) {
	typ := newTestType(t, nil, Settings{})
	if err := typ.HandleEvent("room_notice", func(_ context.Context, _ *Session, ev group.Event) ([]message.Message, error) {
		var payload struct {
			Body string `json:"body"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return nil, err
		}
		return []message.Message{notice{Body: payload.Body}}, nil
	}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	s, ft := openSession(t, typ)

	ev, err := group.NewEvent("room_notice", map[string]string{"body": "maintenance"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	s.DeliverEvent(ev)
	s.Wait()

	if got := ft.actions(t); !reflect.DeepEqual(got, []string{"notice"}) {
		t.Errorf("replies = %v, want [notice]", got)
	}
}

func TestEventUnknownNameDropped(t *testing.T) {
	typ := newTestType(t, nil, Settings{SendCompletion: true})
	s, ft := openSession(t, typ)

	s.DeliverEvent(group.Event{Name: "never_registered"})
	s.Wait()

	// No client-facing error and no completion: there is no client waiting
	// on this path.
	if got := ft.actions(t); len(got) != 0 {
		t.Errorf("frames = %v, want none", got)
	}
	if s.State() != StateOpen {
		t.Error("session must survive an unknown event")
	}
}

func TestEventHandlerPanicSurvived(t *testing.T) {
	typ := newTestType(t, nil, Settings{})
	if err := typ.HandleEvent("explode", func(context.Context, *Session, group.Event) ([]message.Message, error) {
		panic("event boom")
	}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	s, ft := openSession(t, typ)

	s.DeliverEvent(group.Event{Name: "explode"})
	s.Wait()

	if got := ft.actions(t); len(got) != 0 {
		t.Errorf("frames = %v, want none (no client path for event errors)", got)
	}
	if s.State() != StateOpen {
		t.Error("session must survive an event handler panic")
	}
}

func TestEventCompletionConvention(t *testing.T) {
	typ := newTestType(t, nil, Settings{SendCompletion: true})
	if err := typ.HandleEvent("room_notice", func(context.Context, *Session, group.Event) ([]message.Message, error) {
		return []message.Message{notice{Body: "n"}}, nil
	}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	s, ft := openSession(t, typ)

	s.DeliverEvent(group.Event{Name: "room_notice", Payload: json.RawMessage(`{}`)})
	s.Wait()

	want := []string{"notice", "request_complete"}
	if got := ft.actions(t); !reflect.DeepEqual(got, want) {
		t.Errorf("wire order = %v, want %v", got, want)
	}
}

func TestDeliverBroadcastEnvelope(t *testing.T) {
	typ := newTestType(t, nil, Settings{SendBroadcastCompletion: true})
	s, ft := openSession(t, typ)

	s.DeliverBroadcast(notice{Body: "hi"}, group.Flags{IsMine: true, IsCurrent: false})

	envs := ft.envelopes(t)
	if len(envs) != 2 {
		t.Fatalf("frames = %d, want delivery + broadcast_complete", len(envs))
	}
	if string(envs[0]["is_mine"]) != "true" || string(envs[0]["is_current"]) != "false" {
		t.Errorf("flags = is_mine:%s is_current:%s", envs[0]["is_mine"], envs[0]["is_current"])
	}
	var action string
	json.Unmarshal(envs[1]["action"], &action)
	if action != "broadcast_complete" {
		t.Errorf("second frame action = %q, want broadcast_complete", action)
	}
}

func TestDeliverBroadcastClosedSessionSkipped(t *testing.T) {
	typ := newTestType(t, nil, Settings{})
	s, ft := openSession(t, typ)
	s.Close()

	s.DeliverBroadcast(notice{Body: "hi"}, group.Flags{})
	s.DeliverEvent(group.Event{Name: "room_notice"})
	s.Wait()

	if got := len(ft.frames); got != 0 {
		t.Errorf("frames after close = %d, want 0", got)
	}
}

// Full fan-out through real sessions: two users in one room, per-recipient
// flags computed through each recipient's own send path.
func TestBroadcastAcrossSessions(t *testing.T) {
	dir := group.NewDirectory()
	authn := auth.Func(func(_ context.Context, r *auth.Request) (auth.Result, error) {
		return auth.Granted(&auth.Identity{ID: r.Query.Get("user")}), nil
	})
	typ, err := NewType("chat", authn, dir, Settings{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewType: %v", err)
	}

	open := func(user string) (*Session, *fakeTransport) {
		t.Helper()
		ft := &fakeTransport{}
		s := typ.NewSession(ft)
		req := &auth.Request{Query: map[string][]string{"user": {user}}}
		if err := s.Start(context.Background(), req); err != nil {
			t.Fatalf("Start(%s): %v", user, err)
		}
		s.JoinGroup("room-1")
		return s, ft
	}

	s1, ft1 := open("u1")
	_, ft2 := open("u2")

	b := group.NewBroadcaster(dir, zerolog.Nop())
	n := b.Broadcast(notice{Body: "hello"}, group.Sender{ConnectionID: s1.ID(), Identity: s1.Identity()}, group.Options{}, "room-1")
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}

	env1 := ft1.envelopes(t)
	if len(env1) != 1 || string(env1[0]["is_mine"]) != "true" || string(env1[0]["is_current"]) != "true" {
		t.Errorf("sender delivery = %v", env1)
	}
	env2 := ft2.envelopes(t)
	if len(env2) != 1 || string(env2[0]["is_mine"]) != "false" || string(env2[0]["is_current"]) != "false" {
		t.Errorf("recipient delivery = %v", env2)
	}
}
