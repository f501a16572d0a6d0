package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/Baaaki/mealmender/internal/chat"
	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/service"
	"github.com/Baaaki/mealmender/internal/testutil"
	"github.com/gorilla/websocket"
)

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *APIIntegrationTestSuite) dial(server *httptest.Server, as *models.User) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?token=" + s.token(as)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.Equal(http.StatusSwitchingProtocols, resp.StatusCode)
	return conn
}

func (s *APIIntegrationTestSuite) send(conn *websocket.Conn, event string, data interface{}) {
	s.Require().NoError(conn.WriteJSON(map[string]interface{}{"event": event, "data": data}))
}

func (s *APIIntegrationTestSuite) next(conn *websocket.Conn) wsFrame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var f wsFrame
	s.Require().NoError(conn.ReadJSON(&f))
	return f
}

func (s *APIIntegrationTestSuite) TestWebSocketRejectsMissingToken() {
	server := httptest.NewServer(s.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Error(err)
	s.Require().NotNil(resp)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *APIIntegrationTestSuite) TestWebSocketChatRoom() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	r := testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestApproved)

	server := httptest.NewServer(s.router)
	defer server.Close()

	recipientConn := s.dial(server, s.recipient)
	defer recipientConn.Close()
	donorConn := s.dial(server, s.donor)
	defer donorConn.Close()

	s.send(recipientConn, chat.EventJoinRoom, r.ID.String())
	f := s.next(recipientConn)
	s.Require().Equal(chat.EventChatHistory, f.Event)
	var history service.ChatHistory
	s.Require().NoError(json.Unmarshal(f.Data, &history))
	s.Equal(r.ID, history.RequestID)
	s.Empty(history.Messages)

	s.send(donorConn, chat.EventJoinRoom, map[string]string{"requestId": r.ID.String()})
	s.Equal(chat.EventChatHistory, s.next(donorConn).Event)

	s.send(donorConn, chat.EventSendMessage, map[string]string{
		"requestId": r.ID.String(),
		"content":   "Pickup after 6pm works",
	})

	for _, conn := range []*websocket.Conn{recipientConn, donorConn} {
		f := s.next(conn)
		s.Require().Equal(chat.EventReceiveMessage, f.Event)
		var msg models.MessageView
		s.Require().NoError(json.Unmarshal(f.Data, &msg))
		s.Equal("Pickup after 6pm works", msg.Content)
		s.Equal(s.donor.ID, msg.SenderID)
	}

	s.send(recipientConn, chat.EventTyping, map[string]interface{}{"requestId": r.ID.String(), "isTyping": true})
	f = s.next(donorConn)
	s.Equal(chat.EventTyping, f.Event)
	var typing service.TypingSignal
	s.Require().NoError(json.Unmarshal(f.Data, &typing))
	s.True(typing.IsTyping)
	s.Equal(s.recipient.ID, typing.UserID)

	var count int64
	s.Require().NoError(s.db.Model(&models.Message{}).Where("request_id = ?", r.ID).Count(&count).Error)
	s.Equal(int64(1), count)
}

func (s *APIIntegrationTestSuite) TestWebSocketJoinErrors() {
	d := testutil.CreateDonation(s.T(), s.db, s.donor.ID)
	r := testutil.CreateRequest(s.T(), s.db, d, s.recipient.ID, models.RequestPending)

	server := httptest.NewServer(s.router)
	defer server.Close()

	conn := s.dial(server, s.other)
	defer conn.Close()

	tests := []struct {
		name string
		data interface{}
		want string
	}{
		{"outsider", r.ID.String(), "You are not authorized to join this chat."},
		{"unknown room", "00000000-0000-0000-0000-000000000001", "Chat room not found."},
		{"malformed id", "room-1", "Chat room not found."},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.send(conn, chat.EventJoinRoom, tt.data)
			f := s.next(conn)
			s.Require().Equal(chat.EventError, f.Event)
			var body map[string]string
			s.Require().NoError(json.Unmarshal(f.Data, &body))
			s.Equal(tt.want, body["message"])
		})
	}

	s.send(conn, "shout", nil)
	s.Equal(chat.EventError, s.next(conn).Event)
}
