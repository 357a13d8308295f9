// Copyright 2024-2026 Aiku AI

package sender

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aiku/chatrelay/pkg/relay"
)

type cometChatRequest struct {
	path    string
	headers http.Header
	body    map[string]any
}

func newCometChatServer(t *testing.T, status int, response string) (*httptest.Server, func() []cometChatRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []cometChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		reqs = append(reqs, cometChatRequest{path: r.URL.Path, headers: r.Header.Clone(), body: body})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []cometChatRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]cometChatRequest(nil), reqs...)
	}
}

func TestCometChatSender_DeliverGroup(t *testing.T) {
	t.Parallel()
	srv, requests := newCometChatServer(t, http.StatusOK, `{"data":{"id":"777","receiver":"grp1"}}`)
	s := NewCometChatSender(CometChatConfig{
		APIKey:  "secret",
		BotUID:  "relay-bot",
		BaseURL: srv.URL + "/",
	}, srv.Client(), zerolog.Nop())

	id, err := s.Deliver(context.Background(), "grp1", relay.FormattedMessage{Text: "[Telegram] Alice: hi"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if id != "777" {
		t.Errorf("id = %q, want 777", id)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.path != "/v3/messages" {
		t.Errorf("path = %q", req.path)
	}
	if got := req.headers.Get("apikey"); got != "secret" {
		t.Errorf("apikey header = %q", got)
	}
	if got := req.headers.Get("onBehalfOf"); got != "relay-bot" {
		t.Errorf("onBehalfOf header = %q", got)
	}
	if req.body["receiver"] != "grp1" || req.body["receiverType"] != "group" {
		t.Errorf("receiver = %v/%v", req.body["receiver"], req.body["receiverType"])
	}
	if req.body["category"] != "message" || req.body["type"] != "text" {
		t.Errorf("category/type = %v/%v", req.body["category"], req.body["type"])
	}
	data, _ := req.body["data"].(map[string]any)
	if data["text"] != "[Telegram] Alice: hi" {
		t.Errorf("text = %v", data["text"])
	}
	metadata, _ := data["metadata"].(map[string]any)
	if metadata["relay"] != true {
		t.Errorf("metadata.relay = %v, want true", metadata["relay"])
	}
	if muid, _ := req.body["muid"].(string); muid == "" {
		t.Error("muid should be set")
	}
}

func TestCometChatSender_DeliverUser(t *testing.T) {
	t.Parallel()
	srv, requests := newCometChatServer(t, http.StatusOK, `{"data":{"id":"1"}}`)
	s := NewCometChatSender(CometChatConfig{BaseURL: srv.URL}, srv.Client(), zerolog.Nop())

	if _, err := s.Deliver(context.Background(), "user:alice", relay.FormattedMessage{Text: "x"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	req := requests()[0]
	if req.body["receiver"] != "alice" || req.body["receiverType"] != "user" {
		t.Errorf("receiver = %v/%v, want alice/user", req.body["receiver"], req.body["receiverType"])
	}
	if req.headers.Get("onBehalfOf") != "" {
		t.Error("onBehalfOf should be omitted without a bot uid")
	}
}

func TestCometChatSender_APIError(t *testing.T) {
	t.Parallel()
	srv, _ := newCometChatServer(t, http.StatusNotFound, `{"error":{"code":"ERR_GUID_NOT_FOUND","message":"The group does not exist."}}`)
	s := NewCometChatSender(CometChatConfig{BaseURL: srv.URL}, srv.Client(), zerolog.Nop())

	_, err := s.Deliver(context.Background(), "missing", relay.FormattedMessage{Text: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "ERR_GUID_NOT_FOUND" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestCometChatSender_MissingID(t *testing.T) {
	t.Parallel()
	srv, _ := newCometChatServer(t, http.StatusOK, `{"data":{}}`)
	s := NewCometChatSender(CometChatConfig{BaseURL: srv.URL}, srv.Client(), zerolog.Nop())

	_, err := s.Deliver(context.Background(), "grp1", relay.FormattedMessage{Text: "x"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestCometChatSender_EmptyReceiver(t *testing.T) {
	t.Parallel()
	srv, requests := newCometChatServer(t, http.StatusOK, `{"data":{"id":"1"}}`)
	s := NewCometChatSender(CometChatConfig{BaseURL: srv.URL}, srv.Client(), zerolog.Nop())

	_, err := s.Deliver(context.Background(), "user:", relay.FormattedMessage{Text: "x"})
	if !errors.Is(err, ErrInvalidDestination) {
		t.Errorf("err = %v, want ErrInvalidDestination", err)
	}
	if len(requests()) != 0 {
		t.Error("no request should be made")
	}
}

func TestCometChatBaseURL(t *testing.T) {
	t.Parallel()
	if got, want := CometChatBaseURL("12345abc", "eu"), "https://12345abc.api-eu.cometchat.io"; got != want {
		t.Errorf("CometChatBaseURL = %q, want %q", got, want)
	}
}
