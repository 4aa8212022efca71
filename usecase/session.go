package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/speakup/domain/entities"
	"github.com/satriahrh/speakup/domain/repositories"
)

// DefaultGreeting opens every session
const DefaultGreeting = "Hi! I'm your English speaking partner. Press the button and tell me a little about yourself. What do you enjoy doing in your free time?"

// Phase is the session's position in the talk cycle
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListening  Phase = "listening"
	PhaseFinalizing Phase = "finalizing"
	PhaseProcessing Phase = "processing"
)

var (
	// ErrActionRejected is returned for an action the current state does not accept
	ErrActionRejected = errors.New("action not allowed in current state")
	// ErrNothingToEvaluate is returned when a report is requested before the learner spoke
	ErrNothingToEvaluate = errors.New("no learner message to evaluate")
	// ErrSessionClosed is returned once the session loop has stopped
	ErrSessionClosed = errors.New("session closed")
)

// Snapshot is a copy of the session state for the presentation layer
type Snapshot struct {
	SessionID    string                     `json:"session_id"`
	Phase        Phase                      `json:"phase"`
	Messages     []entities.Message         `json:"messages"`
	SpeechState  entities.SpeechState       `json:"speech_state"`
	Evaluation   *entities.EvaluationResult `json:"evaluation"`
	IsEvaluating bool                       `json:"is_evaluating"`
}

// SessionConfig holds per-session settings
type SessionConfig struct {
	Greeting string
}

// Session owns one learner's conversation. Every transition runs on the
// goroutine executing Run; actions and async completions are posted to it.
type Session struct {
	id           string
	capture      *SpeechCapture
	output       *SpeechOutput
	conversation repositories.ConversationClient
	evaluation   repositories.EvaluationClient
	logger       *zap.Logger
	now          func() time.Time

	events   chan func()
	done     chan struct{}
	onChange func(Snapshot)

	// owned by the loop
	ctx               context.Context
	phase             Phase
	history           *entities.History
	speech            entities.SpeechState
	result            *entities.EvaluationResult
	evaluating        bool
	startPending      bool
	uncommittedSpeech bool

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewSession creates an idle session seeded with the assistant greeting
func NewSession(
	config SessionConfig,
	capture *SpeechCapture,
	output *SpeechOutput,
	conversation repositories.ConversationClient,
	evaluation repositories.EvaluationClient,
	logger *zap.Logger,
) *Session {
	greeting := config.Greeting
	if greeting == "" {
		greeting = DefaultGreeting
	}

	id := uuid.NewString()
	s := &Session{
		id:           id,
		capture:      capture,
		output:       output,
		conversation: conversation,
		evaluation:   evaluation,
		logger:       logger.With(zap.String("sessionID", id)),
		now:          time.Now,
		events:       make(chan func()),
		done:         make(chan struct{}),
		phase:        PhaseIdle,
	}
	s.history = entities.NewHistory(entities.NewMessage(entities.MessageRoleAssistant, greeting, s.now()))
	s.snapshot = s.buildSnapshot()
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// OnChange registers a callback invoked on the loop after every transition.
// It must be set before Run and must not block.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.onChange = fn
}

// Done is closed when Run returns
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot returns the latest published state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Run processes events until ctx is cancelled. Cancelling ctx also cancels
// every outstanding external call.
func (s *Session) Run(ctx context.Context) {
	s.ctx = ctx
	defer close(s.done)
	defer s.shutdown()

	s.logger.Info("Session started")
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.events:
			fn()
		}
	}
}

func (s *Session) shutdown() {
	if s.capture != nil {
		s.capture.Close()
	}
	if s.output != nil {
		s.output.Stop()
	}
	s.logger.Info("Session closed", zap.Int("messages", s.history.Len()))
}

// StartTalking requests microphone access and, once granted, starts listening
func (s *Session) StartTalking(ctx context.Context) error {
	return s.dispatch(ctx, func() error {
		if s.phase != PhaseIdle || s.evaluating || s.startPending {
			return ErrActionRejected
		}

		s.startPending = true
		s.speech.ClearError()
		s.publish()

		loopCtx := s.ctx
		events := &captureEvents{}
		go func() {
			// permission and recognizer start may wait on the client or the
			// network, so neither runs on the loop
			if err := s.capture.RequestPermission(loopCtx); err != nil {
				s.post(func() { s.permissionDenied(err) })
				return
			}
			err := s.capture.Start(loopCtx, s.captureListener(events))
			s.post(func() { s.captureStarted(err, events) })
		}()
		return nil
	})
}

func (s *Session) permissionDenied(err error) {
	s.startPending = false
	s.logger.Info("Microphone permission not granted", zap.Error(err))
	s.speech.SetError(errorCode(err, entities.ErrorPermissionDenied))
	s.publish()
}

func (s *Session) captureStarted(err error, events *captureEvents) {
	s.startPending = false

	if err != nil {
		s.logger.Warn("Failed to start speech capture", zap.Error(err))
		s.speech.SetError(errorCode(err, entities.ErrorUnsupported))
		s.publish()
		return
	}

	s.phase = PhaseListening
	s.speech.Transcript = ""
	s.speech.IsListening = true
	s.speech.ClearError()
	s.uncommittedSpeech = false
	s.publish()

	// recognizer events raised while the start was in flight
	for _, fn := range events.open() {
		fn()
	}
}

// captureEvents holds recognizer events that arrive before the loop has
// handled the capture start, so they are never applied out of order.
type captureEvents struct {
	mu     sync.Mutex
	opened bool
	queued []func()
}

func (e *captureEvents) open() []func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = true
	queued := e.queued
	e.queued = nil
	return queued
}

func (s *Session) deliver(events *captureEvents, fn func()) {
	events.mu.Lock()
	if !events.opened {
		events.queued = append(events.queued, fn)
		events.mu.Unlock()
		return
	}
	events.mu.Unlock()
	s.post(fn)
}

func (s *Session) captureListener(events *captureEvents) CaptureListener {
	return CaptureListener{
		OnTranscript: func(transcript string) {
			s.deliver(events, func() {
				if s.phase == PhaseListening {
					s.speech.Transcript = transcript
					s.publish()
				}
			})
		},
		OnError: func(code entities.ErrorCode) {
			s.deliver(events, func() { s.captureFailed(code) })
		},
		OnEnd: func() {
			s.deliver(events, s.captureEnded)
		},
	}
}

func (s *Session) captureFailed(code entities.ErrorCode) {
	if s.phase != PhaseListening {
		return
	}
	s.capture.Abort()
	s.phase = PhaseIdle
	s.speech.IsListening = false
	s.speech.Transcript = ""
	s.speech.SetError(code)
	s.publish()
}

func (s *Session) captureEnded() {
	if s.phase != PhaseListening {
		return
	}
	s.phase = PhaseIdle
	s.speech.IsListening = false
	s.uncommittedSpeech = strings.TrimSpace(s.speech.Transcript) != ""
	s.publish()
}

// StopAndSend stops listening and sends the final transcript to the
// conversation service. Calls while a send is underway are no-ops.
func (s *Session) StopAndSend(ctx context.Context) error {
	return s.dispatch(ctx, func() error {
		switch {
		case s.phase == PhaseListening:
		case s.phase == PhaseIdle && s.uncommittedSpeech && !s.evaluating && !s.startPending:
		case s.phase == PhaseFinalizing, s.phase == PhaseProcessing:
			return nil
		default:
			return ErrActionRejected
		}

		s.phase = PhaseFinalizing
		s.speech.IsListening = false
		s.uncommittedSpeech = false
		s.publish()

		loopCtx := s.ctx
		go func() {
			transcript, err := s.capture.Stop(loopCtx)
			s.post(func() { s.commitTranscript(transcript, err) })
		}()
		return nil
	})
}

func (s *Session) commitTranscript(transcript string, err error) {
	if s.phase != PhaseFinalizing {
		return
	}

	if err != nil {
		s.phase = PhaseIdle
		s.speech.Transcript = ""
		s.publish()
		return
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		s.phase = PhaseIdle
		s.speech.Transcript = ""
		s.speech.SetError(entities.ErrorEmptyUtterance)
		s.publish()
		return
	}

	s.result = nil
	s.history.Append(entities.NewMessage(entities.MessageRoleUser, transcript, s.now()))
	s.speech.Transcript = ""
	s.phase = PhaseProcessing
	s.speech.IsProcessing = true
	s.publish()

	s.logger.Info("Sending learner turn",
		zap.Int("historyLength", s.history.Len()),
		zap.Int("transcriptLength", len(transcript)))

	history := s.history.Messages()
	loopCtx := s.ctx
	go func() {
		reply, err := s.conversation.SendTurn(loopCtx, history)
		s.post(func() { s.replyReceived(reply, err) })
	}()
}

func (s *Session) replyReceived(reply string, err error) {
	s.phase = PhaseIdle
	s.speech.IsProcessing = false

	if err != nil {
		s.logger.Error("Conversation turn failed", zap.Error(err))
		s.speech.SetError(entities.ErrorConversationFailed)
		s.publish()
		return
	}

	s.history.Append(entities.NewMessage(entities.MessageRoleAssistant, reply, s.now()))
	s.publish()

	if s.output != nil {
		s.output.Speak(s.ctx, reply)
	}
}

// RequestReport evaluates the learner's most recent message
func (s *Session) RequestReport(ctx context.Context) error {
	return s.dispatch(ctx, func() error {
		if s.phase != PhaseIdle || s.evaluating || s.startPending {
			return ErrActionRejected
		}

		last, ok := s.history.LastUserMessage()
		if !ok {
			s.speech.SetError(entities.ErrorNothingToEvaluate)
			s.publish()
			return ErrNothingToEvaluate
		}

		s.speech.ClearError()
		s.evaluating = true
		s.publish()

		loopCtx := s.ctx
		go func() {
			result, err := s.evaluation.Evaluate(loopCtx, last.Content)
			s.post(func() { s.evaluationReceived(result, err) })
		}()
		return nil
	})
}

func (s *Session) evaluationReceived(result *entities.EvaluationResult, err error) {
	s.evaluating = false

	if err != nil {
		s.logger.Error("Evaluation failed", zap.Error(err))
		s.result = nil
		s.speech.SetError(entities.ErrorEvaluationFailed)
		s.publish()
		return
	}

	s.result = result
	s.publish()
}

// DismissEvaluation clears the stored performance report
func (s *Session) DismissEvaluation(ctx context.Context) error {
	return s.dispatch(ctx, func() error {
		s.result = nil
		s.publish()
		return nil
	})
}

// dispatch runs fn on the loop and waits for its outcome
func (s *Session) dispatch(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case s.events <- func() { result <- fn() }:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// post queues fn on the loop; it is dropped once the loop has stopped
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

func (s *Session) publish() {
	snapshot := s.buildSnapshot()

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(snapshot)
	}
}

func (s *Session) buildSnapshot() Snapshot {
	var result *entities.EvaluationResult
	if s.result != nil {
		copied := *s.result
		result = &copied
	}
	return Snapshot{
		SessionID:    s.id,
		Phase:        s.phase,
		Messages:     s.history.Messages(),
		SpeechState:  s.speech,
		Evaluation:   result,
		IsEvaluating: s.evaluating,
	}
}

func errorCode(err error, fallback entities.ErrorCode) entities.ErrorCode {
	if code, ok := ErrorCodeOf(err); ok {
		return code
	}
	return fallback
}
