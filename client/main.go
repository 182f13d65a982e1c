package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/careerchat/pkg/model"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr, userID, role string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID, "role": role})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}

	return loginResp.Token, nil
}

type session struct {
	conn *websocket.Conn
	mu   sync.Mutex // one writer at a time
	seq  atomic.Int64
	conv atomic.Int64
	// Request id of the pending conversation.start.
	startID atomic.Value
}

func (s *session) nextID() string {
	return strconv.FormatInt(s.seq.Add(1), 10)
}

func (s *session) send(id string, typ model.EventType, payload interface{}) error {
	raw, err := model.EncodeReply(id, typ, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *session) request(typ model.EventType, payload interface{}) error {
	return s.send(s.nextID(), typ, payload)
}

func (s *session) print(f model.Frame) {
	switch f.Type {
	case model.EventMessageNew:
		var m model.Message
		json.Unmarshal(f.Payload, &m)
		fmt.Printf("\r[%d] %s: %s\n> ", m.ID, m.SenderID, m.Content)
	case model.EventTypingUpdate:
		var ev model.TypingEvent
		json.Unmarshal(f.Payload, &ev)
		if ev.IsTyping {
			fmt.Printf("\rUser %s is typing...      \n> ", ev.UserID)
		}
	case model.EventPresenceOnline, model.EventPresenceOffline:
		var ev model.PresenceEvent
		json.Unmarshal(f.Payload, &ev)
		fmt.Printf("\r* %s is %s\n> ", ev.UserID, strings.TrimPrefix(string(f.Type), "presence."))
	case model.EventMessageReadReceipt:
		var ev model.ReadReceiptEvent
		json.Unmarshal(f.Payload, &ev)
		fmt.Printf("\r* %s read [%d]\n> ", ev.ReaderID, ev.MessageID)
	case model.EventMessageDeleted:
		var ev model.MessageDeletedEvent
		json.Unmarshal(f.Payload, &ev)
		fmt.Printf("\r* [%d] was deleted\n> ", ev.MessageID)
	case model.EventNotificationNew:
		var n model.Notification
		json.Unmarshal(f.Payload, &n)
		fmt.Printf("\r! %s: %s\n> ", n.Title, n.Content)
	case model.EventError:
		if f.Error == nil {
			return
		}
		fmt.Printf("\rerror (%s): %s\n> ", f.Error.Code, f.Error.Message)
	case model.EventAck:
		if id, _ := s.startID.Load().(string); id != "" && id == f.ID {
			var c model.Conversation
			json.Unmarshal(f.Payload, &c)
			s.conv.Store(c.ID)
			s.request(model.EventConversationJoin, model.ConversationRequest{ConversationID: c.ID})
			fmt.Printf("\rjoined conversation %d with %s and %s\n> ", c.ID, c.ParticipantA, c.ParticipantB)
		}
	case model.EventConnected:
	default:
		log.Printf("Received raw: %s", f.Payload)
	}
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	role := flag.String("role", string(model.RoleCandidate), "role to log in with")
	dmUser := flag.String("dm", "", "user id to chat with")
	flag.Parse()

	// 1. Login to get token
	log.Printf("Logging in as %s...", *userID)
	token, err := login(*apiAddr, *userID, *role)
	if err != nil {
		log.Fatal("Login failed:", err)
	}
	log.Printf("Login successful. Token: %s...", token[:10])

	// 2. Connect to WebSocket with token
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	s := &session{conn: c}
	done := make(chan struct{})

	// 3. Start goroutine to read frames
	go func() {
		defer close(done)
		for {
			var f model.Frame
			if err := c.ReadJSON(&f); err != nil {
				log.Println("read:", err)
				return
			}
			s.print(f)
		}
	}()

	if *dmUser != "" {
		id := s.nextID()
		s.startID.Store(id)
		if err := s.send(id, model.EventConversationStart, model.StartConversationRequest{PeerID: *dmUser}); err != nil {
			log.Fatal("start conversation:", err)
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// 4. Read from stdin and send requests
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				fmt.Print("> ")
				continue
			}
			if text == "/quit" {
				interrupt <- os.Interrupt
				return
			}

			conv := s.conv.Load()
			var err error
			switch {
			case text == "/typing":
				err = s.request(model.EventTypingStart, model.ConversationRequest{ConversationID: conv})
			case strings.HasPrefix(text, "/read "), strings.HasPrefix(text, "/delete "):
				cmd, arg, _ := strings.Cut(text, " ")
				id, perr := strconv.ParseInt(arg, 10, 64)
				if perr != nil {
					fmt.Print("usage: /read <message id> | /delete <message id>\n> ")
					continue
				}
				typ := model.EventMessageMarkRead
				if cmd == "/delete" {
					typ = model.EventMessageDelete
				}
				err = s.request(typ, model.MessageRequest{MessageID: id})
			default:
				if conv == 0 {
					fmt.Print("no conversation, start the client with -dm <user>\n> ")
					continue
				}
				err = s.request(model.EventMessageSend, model.SendMessageRequest{ConversationID: conv, Content: text})
			}
			if err != nil {
				log.Println("write:", err)
				return
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			s.mu.Lock()
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			s.mu.Unlock()
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
