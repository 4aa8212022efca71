// Command wsclient is a terminal learner client. It plays the browser's part
// in the session protocol: lines typed while listening are reported as
// recognized speech, and spoken replies are printed.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/speakup/domain/repositories"
	ws "github.com/satriahrh/speakup/internal/websocket"
	"github.com/satriahrh/speakup/usecase"
)

const usage = `Commands:
  /start    start talking
  /send     stop and send what you said
  /report   request a performance report
  /dismiss  dismiss the report
  /quit     leave
Anything else typed while listening is what you "say".`

type client struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	runID    string
	segments []repositories.RecognitionResult
	printed  int
	reported bool
	lastErr  string
}

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	learnerID := flag.String("learner", "terminal-learner", "learner id")
	accessKey := flag.String("access-key", os.Getenv("ACCESS_KEY"), "access key exchanged for a token; empty when auth is disabled")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	base, err := url.Parse(*server)
	if err != nil {
		logger.Fatal("Invalid server URL", zap.Error(err))
	}

	wsURL := *base
	wsURL.Scheme = "ws"
	if base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = "/ws"

	if *accessKey != "" {
		token, err := fetchToken(*base, *learnerID, *accessKey)
		if err != nil {
			logger.Fatal("Failed to authenticate", zap.Error(err))
		}
		q := wsURL.Query()
		q.Set("token", token)
		wsURL.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			logger.Fatal("Failed to connect", zap.Int("status", resp.StatusCode), zap.Error(err))
		}
		logger.Fatal("Failed to connect", zap.Error(err))
	}
	defer conn.Close()

	c := &client{conn: conn, logger: logger}
	c.send(map[string]interface{}{
		"type":        ws.MessageTypeCapabilities,
		"recognition": true,
		"synthesis":   true,
		"voices": []repositories.Voice{
			{Name: "Terminal US English", Locale: "en-US", Default: true},
		},
	})

	fmt.Println(usage)
	go c.readLoop()
	c.inputLoop()
}

func fetchToken(base url.URL, learnerID, accessKey string) (string, error) {
	body, err := json.Marshal(map[string]string{"learner_id": learnerID, "access_key": accessKey})
	if err != nil {
		return "", err
	}
	base.Path = "/api/v1/auth/token"
	resp, err := http.Post(base.String(), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("authentication failed with status %d", resp.StatusCode)
	}
	var token struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", err
	}
	return token.Token, nil
}

func (c *client) send(v interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Error("Failed to send message", zap.Error(err))
	}
}

func (c *client) inputLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit":
			return
		case "/start":
			c.send(map[string]string{"type": string(ws.MessageTypeStartTalking)})
		case "/send":
			c.send(map[string]string{"type": string(ws.MessageTypeStopAndSend)})
		case "/report":
			c.send(map[string]string{"type": string(ws.MessageTypeRequestReport)})
		case "/dismiss":
			c.send(map[string]string{"type": string(ws.MessageTypeDismissEvaluation)})
		default:
			c.say(line)
		}
	}
}

// say reports a typed line as a final recognition segment of the current run
func (c *client) say(text string) {
	c.mu.Lock()
	if c.runID == "" {
		c.mu.Unlock()
		fmt.Println("(not listening, type /start first)")
		return
	}
	index := len(c.segments)
	c.segments = append(c.segments, repositories.RecognitionResult{Transcript: text, IsFinal: true})
	results := append([]repositories.RecognitionResult(nil), c.segments...)
	runID := c.runID
	c.mu.Unlock()

	c.send(map[string]interface{}{
		"type":         ws.MessageTypeRecognitionResult,
		"run_id":       runID,
		"result_index": index,
		"results":      results,
	})
}

type inbound struct {
	Type      ws.MessageType         `json:"type"`
	RequestID string                 `json:"request_id"`
	RunID     string                 `json:"run_id"`
	State     usecase.Snapshot       `json:"state"`
	Utterance repositories.Utterance `json:"utterance"`
	Text      string                 `json:"text"`
	Code      string                 `json:"error_code"`
	Message   string                 `json:"message"`
}

func (c *client) readLoop() {
	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Info("Connection closed", zap.Error(err))
			os.Exit(0)
		}
		if messageType == websocket.BinaryMessage {
			continue
		}

		var msg inbound
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Warn("Undecodable message", zap.Error(err))
			continue
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg inbound) {
	switch msg.Type {
	case ws.MessageTypePermissionRequest:
		c.send(map[string]interface{}{
			"type":       ws.MessageTypePermissionResult,
			"request_id": msg.RequestID,
			"granted":    true,
		})

	case ws.MessageTypeRecognitionStart:
		c.mu.Lock()
		c.runID = msg.RunID
		c.segments = nil
		c.mu.Unlock()
		fmt.Println("(listening, type what you say)")

	case ws.MessageTypeRecognitionStop:
		c.mu.Lock()
		if c.runID == msg.RunID {
			c.runID = ""
		}
		c.mu.Unlock()
		c.send(map[string]interface{}{"type": ws.MessageTypeRecognitionEnd, "run_id": msg.RunID})

	case ws.MessageTypeSpeak:
		fmt.Printf("🔊 %s\n", msg.Utterance.Text)

	case ws.MessageTypeSpeakingStart:
		fmt.Printf("🔊 %s\n", msg.Text)

	case ws.MessageTypeState:
		c.printState(msg.State)

	case ws.MessageTypeError:
		fmt.Printf("! %s: %s\n", msg.Code, msg.Message)
	}
}

func (c *client) printState(state usecase.Snapshot) {
	c.mu.Lock()
	for _, m := range state.Messages[min(c.printed, len(state.Messages)):] {
		fmt.Printf("[%s] %s\n", m.Role, m.Content)
	}
	c.printed = len(state.Messages)
	showReport := state.Evaluation != nil && !c.reported
	c.reported = state.Evaluation != nil
	showErr := state.SpeechState.Error != c.lastErr
	c.lastErr = state.SpeechState.Error
	c.mu.Unlock()

	if showErr && state.SpeechState.Error != "" {
		fmt.Printf("! %s\n", state.SpeechState.Error)
	}
	if showReport {
		report, _ := json.MarshalIndent(state.Evaluation, "", "  ")
		fmt.Printf("Report:\n%s\n", report)
	}
}
