package ekiden

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ekidenfi/ekiden-go/connection"
	"github.com/ekidenfi/ekiden-go/model"
)

var testMarket = "0x" + strings.Repeat("ab", 20)

// mockGateway serves the authorize endpoint under /api/v1 and the stream
// under /ws on one server, the same layout the real gateway uses.
func mockGateway(t *testing.T, stream func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/authorize/challenge", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"challenge": "nonce-1"})
	})
	mux.HandleFunc("/api/v1/authorize", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if !model.IsValidSignature(body["signature"]) || !model.IsValidPublicKey(body["public_key"]) {
			http.Error(w, "bad signature", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token":      "tok-e2e",
			"expires_at": time.Now().Add(time.Hour).UnixMilli(),
		})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		stream(conn)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testClientConfig(srv *httptest.Server) Config {
	cfg := Config{BaseURL: srv.URL + "/api/v1"}.withDefaults()
	cfg.Stream.ReconnectBaseWait = 20 * time.Millisecond
	cfg.Stream.ReconnectMaxWait = 100 * time.Millisecond
	return cfg
}

func TestNewClient_PublicOnly(t *testing.T) {
	client, err := NewClient(ProductionConfig())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Session() != nil {
		t.Error("public client should have no session")
	}
	if client.Address() != "" {
		t.Error("public client should have no address")
	}
	if _, err := client.SubscribeUserEvents(); !errors.Is(err, connection.ErrAuthRequired) {
		t.Errorf("SubscribeUserEvents err = %v, want ErrAuthRequired", err)
	}
}

func TestNewClient_WithPrivateKey(t *testing.T) {
	cfg := ProductionConfig()
	cfg.PrivateKey = strings.Repeat("cd", 32)

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Session() == nil {
		t.Fatal("expected a session manager")
	}
	if !model.IsValidAddress(client.Address()) {
		t.Errorf("Address() = %q", client.Address())
	}
}

func TestNewClient_BadPrivateKey(t *testing.T) {
	cfg := ProductionConfig()
	cfg.PrivateKey = "garbage"
	if _, err := NewClient(cfg); err == nil {
		t.Fatal("expected error for malformed private key")
	}
}

func TestClient_StreamEndToEnd(t *testing.T) {
	srv := mockGateway(t, func(conn *websocket.Conn) {
		for {
			var req struct {
				Type    string `json:"type"`
				Channel string `json:"channel"`
				Token   string `json:"token"`
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := json.Unmarshal(data, &req); err != nil {
				t.Errorf("gateway decode: %v", err)
				return
			}
			switch req.Type {
			case "ping":
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
			case "authorize":
				if req.Token != "tok-e2e" {
					t.Errorf("authorize token = %q", req.Token)
				}
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"authorized"}`))
			case "subscribe":
				ack, _ := json.Marshal(map[string]string{"type": "subscribed", "channel": req.Channel})
				conn.WriteMessage(websocket.TextMessage, ack)
				event, _ := json.Marshal(map[string]any{
					"type":    "event",
					"channel": req.Channel,
					"seq":     1,
					"data": map[string]any{
						"type":        "trade",
						"market_addr": testMarket,
						"price":       uint64(42),
						"size":        uint64(7),
						"side":        "buy",
						"timestamp":   uint64(1700000000000),
					},
				})
				conn.WriteMessage(websocket.TextMessage, event)
			}
		}
	})

	cfg := testClientConfig(srv)
	cfg.PrivateKey = strings.Repeat("ef", 32)
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close(context.Background())

	sub, err := client.SubscribeTrades(testMarket)
	if err != nil {
		t.Fatalf("SubscribeTrades: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.ConnectStream(ctx); err != nil {
		t.Fatalf("ConnectStream: %v", err)
	}

	wantCh := model.TradesChannel(testMarket)
	if got := client.ActiveSubscriptions(); len(got) != 1 || got[0] != wantCh {
		t.Errorf("ActiveSubscriptions = %v", got)
	}

	var trade *model.Event
	deadline := time.After(5 * time.Second)
	for trade == nil {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatal("event feed closed before a trade arrived")
			}
			if ev.Kind == model.EventTrade {
				trade = &ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for the trade event")
		}
	}
	if trade.Trade.Price != 42 || trade.Trade.Size != 7 {
		t.Errorf("trade = %+v", trade.Trade)
	}
	if trade.Channel != wantCh {
		t.Errorf("trade channel = %v", trade.Channel)
	}

	sub.Close()
	if got := client.ActiveSubscriptions(); len(got) != 0 {
		t.Errorf("ActiveSubscriptions after close = %v", got)
	}
}

func TestClient_CloseIsIdempotentEnough(t *testing.T) {
	srv := mockGateway(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := NewClient(testClientConfig(srv))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.ConnectStream(ctx); err != nil {
		t.Fatalf("ConnectStream: %v", err)
	}
	if err := client.Close(ctx); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := client.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
