package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/speakup/domain/repositories"
	"github.com/satriahrh/speakup/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Time allowed for a learner action to be accepted by the session.
	actionTimeout = 5 * time.Second
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errSendClosed     = errors.New("connection closed")
)

// Providers holds what every new session is built from
type Providers struct {
	Conversation repositories.ConversationClient
	Evaluation   repositories.EvaluationClient

	// NewRecognizer builds a server-side recognizer for one session. When
	// nil, recognition runs in the browser.
	NewRecognizer func() repositories.Recognizer

	// TextToSpeech synthesizes replies on the server. When nil, replies are
	// spoken by the browser.
	TextToSpeech repositories.TextToSpeech

	Session usecase.SessionConfig
	Capture usecase.CaptureConfig
	Output  usecase.OutputConfig
}

// Hub maintains the set of active clients, one learner session each.
type Hub struct {
	// Registered clients, by session ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	upgrader  websocket.Upgrader
	providers Providers
	validator *MessageValidator
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(providers Providers, allowedOrigins []string, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		providers: providers,
		validator: NewMessageValidator(),
		logger:    logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Run starts the hub's main loop. Cancelling ctx disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.session.ID()] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("sessionID", client.session.ID()),
				zap.String("learnerID", client.learnerID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.session.ID()]; ok {
				delete(h.clients, client.session.ID())
			}
			h.mu.Unlock()
			client.shutdown()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.session.ID()))

		case <-ctx.Done():
			h.mu.Lock()
			clients := h.clients
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			for _, client := range clients {
				client.shutdown()
			}
			h.logger.Info("Hub stopped", zap.Int("disconnected", len(clients)))
			return
		}
	}
}

// SessionIDs lists the live sessions
func (h *Hub) SessionIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LearnerSession looks up a live session owned by learnerID
func (h *Hub) LearnerSession(learnerID, id string) (*usecase.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[id]
	if !ok || client.learnerID != learnerID {
		return nil, false
	}
	return client.session, true
}

// LearnerSessionIDs lists the live sessions owned by learnerID
func (h *Hub) LearnerSessionIDs(learnerID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := []string{}
	for id, client := range h.clients {
		if client.learnerID == learnerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// idleClients returns the clients without traffic since the cutoff
func (h *Hub) idleClients(cutoff time.Time) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var idle []*Client
	for _, client := range h.clients {
		if client.lastSeen().Before(cutoff) {
			idle = append(idle, client)
		}
	}
	return idle
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and its session.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send     chan WriteData
	sendMu   sync.RWMutex
	sendDone bool

	// Closed once the client is torn down.
	closed    chan struct{}
	closeOnce sync.Once

	learnerID string
	logger    *zap.Logger

	session    *usecase.Session
	cancel     context.CancelFunc
	microphone *BrowserMicrophone
	recognizer *BrowserRecognizer
	audioInput repositories.AudioInput

	capsMu    sync.Mutex
	caps      *CapabilitiesMessage
	capsReady chan struct{}

	activityMu   sync.Mutex
	lastActivity time.Time
}

// HandleWebSocket upgrades the request and starts a session for the learner
func HandleWebSocket(hub *Hub, c echo.Context, learnerID string, logger *zap.Logger) error {
	conn, err := hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := hub.newClient(conn, learnerID)
	ctx, cancel := context.WithCancel(context.Background())
	client.cancel = cancel

	client.hub.register <- client

	go client.session.Run(ctx)
	client.sendJSON(CreateStateMessage(client.session.Snapshot()))

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

func (h *Hub) newClient(conn *websocket.Conn, learnerID string) *Client {
	client := &Client{
		hub:          h,
		conn:         conn,
		send:         make(chan WriteData, 256),
		closed:       make(chan struct{}),
		learnerID:    learnerID,
		logger:       h.logger.With(zap.String("learnerID", learnerID)),
		capsReady:    make(chan struct{}),
		lastActivity: time.Now(),
	}
	client.microphone = newBrowserMicrophone(client)

	var recognizer repositories.Recognizer
	if h.providers.NewRecognizer != nil {
		streaming := &AudioStreamRecognizer{client: client, recognizer: h.providers.NewRecognizer()}
		client.audioInput = streaming
		recognizer = streaming
	} else {
		client.recognizer = &BrowserRecognizer{client: client}
		recognizer = client.recognizer
	}

	var synthesizer repositories.SpeechSynthesizer
	if h.providers.TextToSpeech != nil {
		synthesizer = &AudioStreamSynthesizer{client: client, tts: h.providers.TextToSpeech}
	} else {
		synthesizer = &BrowserSynthesizer{client: client}
	}

	capture := usecase.NewSpeechCapture(client.microphone, recognizer, h.providers.Capture, client.logger)
	output := usecase.NewSpeechOutput(synthesizer, h.providers.Output, client.logger)
	client.session = usecase.NewSession(
		h.providers.Session,
		capture,
		output,
		h.providers.Conversation,
		h.providers.Evaluation,
		client.logger,
	)
	client.logger = client.logger.With(zap.String("sessionID", client.session.ID()))
	client.session.OnChange(func(snapshot usecase.Snapshot) {
		if err := client.sendJSON(CreateStateMessage(snapshot)); err != nil {
			client.logger.Debug("Failed to push state", zap.Error(err))
		}
	})

	return client
}

// shutdown stops the session and closes the outbound queue
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.cancel != nil {
			c.cancel()
		}
		if c.recognizer != nil {
			c.recognizer.abort()
		}

		c.sendMu.Lock()
		c.sendDone = true
		close(c.send)
		c.sendMu.Unlock()
	})
}

func (c *Client) enqueue(data WriteData) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.sendDone {
		return errSendClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// enqueueWait blocks until the write pump has room for data. shutdown closes
// c.closed before taking sendMu, which releases a blocked sender.
func (c *Client) enqueueWait(ctx context.Context, data WriteData) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.sendDone {
		return errSendClosed
	}
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return errSendClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) sendJSONWait(ctx context.Context, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueueWait(ctx, WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Client) sendBinaryWait(ctx context.Context, data []byte) error {
	return c.enqueueWait(ctx, WriteData{Type: websocket.BinaryMessage, Payload: data})
}

func (c *Client) sendJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Client) touch() {
	c.activityMu.Lock()
	c.lastActivity = time.Now()
	c.activityMu.Unlock()
}

func (c *Client) lastSeen() time.Time {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	return c.lastActivity
}

func (c *Client) capabilities() (*CapabilitiesMessage, bool) {
	c.capsMu.Lock()
	defer c.capsMu.Unlock()
	return c.caps, c.caps != nil
}

// waitCapabilities waits for the first capabilities message
func (c *Client) waitCapabilities(ctx context.Context) (*CapabilitiesMessage, bool) {
	timer := time.NewTimer(capabilityWait)
	defer timer.Stop()

	select {
	case <-c.capsReady:
	case <-timer.C:
	case <-c.closed:
	case <-ctx.Done():
	}
	return c.capabilities()
}

func (c *Client) setCapabilities(msg *CapabilitiesMessage) {
	c.capsMu.Lock()
	first := c.caps == nil
	c.caps = msg
	c.capsMu.Unlock()

	if first {
		close(c.capsReady)
	}
	c.logger.Info("Client capabilities received",
		zap.Bool("recognition", msg.Recognition),
		zap.Bool("synthesis", msg.Synthesis),
		zap.Int("voices", len(msg.Voices)))
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.closed:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.touch()

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage routes a text frame to the relay or the session
func (c *Client) processMessage(message []byte) {
	parsed, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendJSON(CreateErrorMessage("invalid_message", "Message could not be processed", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *CapabilitiesMessage:
		c.setCapabilities(msg)
	case *PermissionResultMessage:
		c.microphone.resolve(msg)
	case *RecognitionResultMessage:
		if c.recognizer != nil {
			c.recognizer.deliverResult(msg)
		}
	case *RecognitionErrorMessage:
		if c.recognizer != nil {
			c.recognizer.deliverError(msg)
		}
	case *RecognitionEndMessage:
		if c.recognizer != nil {
			c.recognizer.deliverEnd(msg)
		}
	case *ActionMessage:
		c.handleAction(msg.Type)
	case *PingMessage:
		c.sendJSON(CreatePongMessage(msg.Data))
	}
}

func (c *Client) handleAction(action MessageType) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	var err error
	switch action {
	case MessageTypeStartTalking:
		err = c.session.StartTalking(ctx)
	case MessageTypeStopAndSend:
		err = c.session.StopAndSend(ctx)
	case MessageTypeRequestReport:
		err = c.session.RequestReport(ctx)
	case MessageTypeDismissEvaluation:
		err = c.session.DismissEvaluation(ctx)
	}
	if err == nil {
		return
	}

	c.logger.Info("Action not performed", zap.String("action", string(action)), zap.Error(err))
	switch {
	case errors.Is(err, usecase.ErrNothingToEvaluate):
		c.sendJSON(CreateErrorMessage("nothing_to_evaluate", err.Error(), string(action)))
	case errors.Is(err, usecase.ErrActionRejected):
		c.sendJSON(CreateErrorMessage("action_rejected", err.Error(), string(action)))
	default:
		c.sendJSON(CreateErrorMessage("action_failed", err.Error(), string(action)))
	}
}

// processBinaryAudioChunk forwards captured audio to a server-side recognizer
func (c *Client) processBinaryAudioChunk(data []byte) {
	if c.audioInput == nil {
		c.logger.Debug("Dropping binary frame, recognition runs in the browser", zap.Int("size", len(data)))
		return
	}
	if err := c.audioInput.WriteAudio(data); err != nil {
		c.logger.Debug("Failed to forward audio chunk", zap.Int("size", len(data)), zap.Error(err))
	}
}
