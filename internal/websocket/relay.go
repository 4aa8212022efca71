package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/speakup/domain/repositories"
)

// capabilityWait bounds how long a relay waits for the client to advertise
// its capabilities
const capabilityWait = 3 * time.Second

var errClientGone = errors.New("client disconnected")

// BrowserMicrophone asks the connected client for microphone access
type BrowserMicrophone struct {
	client *Client

	mu      sync.Mutex
	pending map[string]chan *PermissionResultMessage
}

var _ repositories.Microphone = (*BrowserMicrophone)(nil)

func newBrowserMicrophone(client *Client) *BrowserMicrophone {
	return &BrowserMicrophone{
		client:  client,
		pending: make(map[string]chan *PermissionResultMessage),
	}
}

// RequestPermission sends a permission_request and waits for the answer
func (m *BrowserMicrophone) RequestPermission(ctx context.Context) error {
	requestID := uuid.NewString()
	result := make(chan *PermissionResultMessage, 1)

	m.mu.Lock()
	m.pending[requestID] = result
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, requestID)
		m.mu.Unlock()
	}()

	if err := m.client.sendJSON(&PermissionRequestMessage{
		BaseMessage: newBase(MessageTypePermissionRequest),
		RequestID:   requestID,
	}); err != nil {
		return err
	}

	select {
	case msg := <-result:
		return permissionError(msg)
	case <-m.client.closed:
		return errClientGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *BrowserMicrophone) resolve(msg *PermissionResultMessage) {
	m.mu.Lock()
	result, ok := m.pending[msg.RequestID]
	m.mu.Unlock()

	if !ok {
		m.client.logger.Debug("Dropping permission result for unknown request", zap.String("requestID", msg.RequestID))
		return
	}
	select {
	case result <- msg:
	default:
	}
}

func permissionError(msg *PermissionResultMessage) error {
	if msg.Granted {
		return nil
	}
	switch msg.Reason {
	case PermissionReasonNotFound:
		return repositories.ErrMicrophoneNotFound
	case PermissionReasonUnsupported:
		return repositories.ErrUnsupported
	default:
		return repositories.ErrPermissionDenied
	}
}

// BrowserRecognizer drives the client's native speech recognizer. Messages
// carrying another run's id are dropped.
type BrowserRecognizer struct {
	client *Client

	mu      sync.Mutex
	runID   string
	handler repositories.RecognitionHandler
}

var _ repositories.Recognizer = (*BrowserRecognizer)(nil)

func (r *BrowserRecognizer) Start(ctx context.Context, config repositories.RecognitionConfig, handler repositories.RecognitionHandler) error {
	caps, ok := r.client.waitCapabilities(ctx)
	if !ok || !caps.Recognition {
		return repositories.ErrUnsupported
	}

	runID := uuid.NewString()
	r.mu.Lock()
	r.runID = runID
	r.handler = handler
	r.mu.Unlock()

	return r.client.sendJSON(&RecognitionStartMessage{
		BaseMessage: newBase(MessageTypeRecognitionStart),
		RunID:       runID,
		Mode:        RecognitionModeBrowser,
		Config:      config,
	})
}

func (r *BrowserRecognizer) Stop() error {
	r.mu.Lock()
	runID := r.runID
	r.mu.Unlock()

	if runID == "" {
		return nil
	}
	return r.client.sendJSON(&RecognitionStopMessage{
		BaseMessage: newBase(MessageTypeRecognitionStop),
		RunID:       runID,
	})
}

func (r *BrowserRecognizer) current(runID string) (repositories.RecognitionHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if runID == "" || runID != r.runID {
		return repositories.RecognitionHandler{}, false
	}
	return r.handler, true
}

func (r *BrowserRecognizer) deliverResult(msg *RecognitionResultMessage) {
	if handler, ok := r.current(msg.RunID); ok && handler.OnResult != nil {
		handler.OnResult(msg.ResultIndex, msg.Results)
	}
}

func (r *BrowserRecognizer) deliverError(msg *RecognitionErrorMessage) {
	if handler, ok := r.current(msg.RunID); ok && handler.OnError != nil {
		handler.OnError(repositories.RecognitionErrorCode(msg.Error))
	}
}

func (r *BrowserRecognizer) deliverEnd(msg *RecognitionEndMessage) {
	r.mu.Lock()
	if msg.RunID == "" || msg.RunID != r.runID {
		r.mu.Unlock()
		return
	}
	handler := r.handler
	r.runID = ""
	r.handler = repositories.RecognitionHandler{}
	r.mu.Unlock()

	if handler.OnEnd != nil {
		handler.OnEnd()
	}
}

// abort ends the current run locally when the client is gone
func (r *BrowserRecognizer) abort() {
	r.deliverEnd(&RecognitionEndMessage{RunID: r.activeRun()})
}

func (r *BrowserRecognizer) activeRun() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// AudioStreamRecognizer runs a server-side recognizer fed with the raw
// microphone audio the client streams as binary frames
type AudioStreamRecognizer struct {
	client     *Client
	recognizer repositories.Recognizer

	mu    sync.Mutex
	runID string
}

var (
	_ repositories.Recognizer = (*AudioStreamRecognizer)(nil)
	_ repositories.AudioInput = (*AudioStreamRecognizer)(nil)
)

func (r *AudioStreamRecognizer) Start(ctx context.Context, config repositories.RecognitionConfig, handler repositories.RecognitionHandler) error {
	if _, ok := r.recognizer.(repositories.AudioInput); !ok {
		return repositories.ErrUnsupported
	}
	if err := r.recognizer.Start(ctx, config, handler); err != nil {
		return err
	}

	runID := uuid.NewString()
	r.mu.Lock()
	r.runID = runID
	r.mu.Unlock()

	return r.client.sendJSON(&RecognitionStartMessage{
		BaseMessage: newBase(MessageTypeRecognitionStart),
		RunID:       runID,
		Mode:        RecognitionModeAudio,
		Config:      config,
	})
}

func (r *AudioStreamRecognizer) Stop() error {
	r.mu.Lock()
	runID := r.runID
	r.runID = ""
	r.mu.Unlock()

	if runID != "" {
		if err := r.client.sendJSON(&RecognitionStopMessage{
			BaseMessage: newBase(MessageTypeRecognitionStop),
			RunID:       runID,
		}); err != nil {
			r.client.logger.Debug("Failed to send recognition stop", zap.Error(err))
		}
	}
	return r.recognizer.Stop()
}

func (r *AudioStreamRecognizer) WriteAudio(data []byte) error {
	input, ok := r.recognizer.(repositories.AudioInput)
	if !ok {
		return repositories.ErrUnsupported
	}
	return input.WriteAudio(data)
}

// BrowserSynthesizer speaks through the client's native speech synthesis
type BrowserSynthesizer struct {
	client *Client
}

var _ repositories.SpeechSynthesizer = (*BrowserSynthesizer)(nil)

// Voices returns the voice list the client advertised
func (s *BrowserSynthesizer) Voices(ctx context.Context) ([]repositories.Voice, error) {
	caps, ok := s.client.waitCapabilities(ctx)
	if !ok || !caps.Synthesis {
		return nil, repositories.ErrUnsupported
	}
	return caps.Voices, nil
}

func (s *BrowserSynthesizer) Speak(ctx context.Context, utterance repositories.Utterance) error {
	if caps, ok := s.client.capabilities(); ok && !caps.Synthesis {
		return repositories.ErrUnsupported
	}
	return s.client.sendJSON(&SpeakMessage{
		BaseMessage: newBase(MessageTypeSpeak),
		Utterance:   utterance,
	})
}

func (s *BrowserSynthesizer) Cancel() error {
	return s.client.sendJSON(&ActionMessage{BaseMessage: newBase(MessageTypeSpeakCancel)})
}

// AudioStreamSynthesizer synthesizes on the server and streams the audio to
// the client between speaking_start and speaking_end. Every started
// utterance is closed by speaking_end, or speaking_cancel when it was
// interrupted.
type AudioStreamSynthesizer struct {
	client *Client
	tts    repositories.TextToSpeech

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ repositories.SpeechSynthesizer = (*AudioStreamSynthesizer)(nil)

func (s *AudioStreamSynthesizer) Voices(ctx context.Context) ([]repositories.Voice, error) {
	return s.tts.Voices(ctx)
}

func (s *AudioStreamSynthesizer) Speak(ctx context.Context, utterance repositories.Utterance) error {
	s.Cancel()

	s.mu.Lock()
	previous := s.done
	s.mu.Unlock()

	// the previous utterance's terminal frame goes out before the next start
	if previous != nil {
		select {
		case <-previous:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	audio, err := s.tts.ConvertTextToSpeech(ctx, utterance)
	if err != nil {
		s.clear(done)
		return err
	}

	utteranceID := uuid.NewString()
	if err := s.client.sendJSONWait(ctx, &SpeakingStartMessage{
		BaseMessage: newBase(MessageTypeSpeakingStart),
		UtteranceID: utteranceID,
		Text:        utterance.Text,
		Format:      s.tts.Format(),
	}); err != nil {
		s.clear(done)
		return err
	}

	go func() {
		defer s.clear(done)

		terminal := MessageTypeSpeakingEnd
		if !s.stream(ctx, audio) {
			terminal = MessageTypeSpeakingCancel
		}

		endCtx, endCancel := context.WithTimeout(context.Background(), writeWait)
		defer endCancel()
		if err := s.client.sendJSONWait(endCtx, &SpeakingEndMessage{
			BaseMessage: newBase(terminal),
			UtteranceID: utteranceID,
		}); err != nil {
			s.client.logger.Debug("Failed to close utterance", zap.String("type", string(terminal)), zap.Error(err))
		}
	}()

	return nil
}

// stream forwards audio chunks, waiting for the write pump when the send
// buffer is full. It reports whether the utterance was sent completely.
func (s *AudioStreamSynthesizer) stream(ctx context.Context, audio <-chan []byte) bool {
	failed := false
	for chunk := range audio {
		if failed || ctx.Err() != nil {
			continue
		}
		if err := s.client.sendBinaryWait(ctx, chunk); err != nil {
			if ctx.Err() == nil {
				s.client.logger.Warn("Failed to send audio chunk", zap.Error(err))
			}
			failed = true
		}
	}
	return !failed && ctx.Err() == nil
}

// Cancel interrupts the utterance being streamed, if any. The streaming
// goroutine reports speaking_cancel.
func (s *AudioStreamSynthesizer) Cancel() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *AudioStreamSynthesizer) clear(done chan struct{}) {
	s.mu.Lock()
	if s.done == done {
		if s.cancel != nil {
			s.cancel()
		}
		s.cancel = nil
	}
	s.mu.Unlock()
	close(done)
}
