package collectors

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/jkbrsn/httptap"
)

//
// Helper functions
//

// sampleRequest returns a request record with every capture field populated.
func sampleRequest() httptap.RequestRecord {
	body := `{"jsonrpc":"2.0","method":"eth_blockNumber","id":1}`
	return httptap.RequestRecord{
		Method:    http.MethodPost,
		URL:       &url.URL{Scheme: "https", Host: "rpc.example.test", Path: "/"},
		Header:    http.Header{"Content-Type": []string{"application/json"}},
		HasBody:   true,
		BodySize:  int64(len(body)),
		Body:      []byte(body),
		BodyText:  &body,
		RPCMethod: "eth_blockNumber",
	}
}

// sampleResponse returns a response record for a completed exchange.
func sampleResponse() httptap.ResponseRecord {
	body := `{"jsonrpc":"2.0","result":"0x10","id":1}`
	sent := time.Now().Add(-250 * time.Millisecond)
	return httptap.ResponseRecord{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		BodyText:   &body,
		BodySize:   int64(len(body)),
		RemoteAddr: &net.TCPAddr{IP: net.IPv4(192, 0, 2, 10), Port: 443},
		Times: httptap.RequestTimes{
			SentAt:     sent,
			ReceivedAt: sent.Add(250 * time.Millisecond),
			Latency:    250 * time.Millisecond,
		},
	}
}

// upgrader is used to upgrade the connection to a WebSocket.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// relaySink is a WebSocket endpoint collecting everything a Relay sends to it.
type relaySink struct {
	server     *httptest.Server
	events     chan Event
	closeCodes chan int
}

func newRelaySink() *relaySink {
	sink := &relaySink{
		events:     make(chan Event, 64),
		closeCodes: make(chan int, 4),
	}
	sink.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "could not open websocket connection", http.StatusBadRequest)
			return
		}
		defer conn.Close()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					sink.closeCodes <- ce.Code
				}
				return
			}
			var ev Event
			if err := sonic.Unmarshal(payload, &ev); err != nil {
				continue
			}
			sink.events <- ev
		}
	}))
	return sink
}

// url returns the sink's WebSocket address.
func (s *relaySink) url() string {
	return "ws" + s.server.URL[4:]
}

// next returns the next received event, failing the test on a timeout.
func (s *relaySink) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relay event")
		return Event{}
	}
}
