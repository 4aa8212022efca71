package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/satriahrh/speakup/domain/entities"
	"github.com/satriahrh/speakup/domain/repositories"
)

type fakeMicrophone struct {
	mu  sync.Mutex
	err error
}

func (f *fakeMicrophone) RequestPermission(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeMicrophone) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// fakeRecognizer hands control of the callbacks to the test. Stop ends the
// run asynchronously unless holdEnd is set.
type fakeRecognizer struct {
	mu       sync.Mutex
	handler  repositories.RecognitionHandler
	config   repositories.RecognitionConfig
	calls    int
	starts   int
	stops    int
	startErr error
	holdEnd  bool
	segments []repositories.RecognitionResult

	// gate, when set, holds Start until it is closed
	gate chan struct{}
	// early is delivered from inside Start, before it returns
	early string
}

func (f *fakeRecognizer) Start(ctx context.Context, config repositories.RecognitionConfig, handler repositories.RecognitionHandler) error {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	if f.startErr != nil {
		f.mu.Unlock()
		return f.startErr
	}
	f.handler = handler
	f.config = config
	f.starts++
	f.segments = nil
	early := f.early
	f.mu.Unlock()

	if early != "" {
		f.say(early)
	}
	return nil
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	f.stops++
	handler := f.handler
	hold := f.holdEnd
	f.mu.Unlock()

	if !hold && handler.OnEnd != nil {
		go handler.OnEnd()
	}
	return nil
}

func (f *fakeRecognizer) current() repositories.RecognitionHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

// say appends a final segment and delivers the cumulative results
func (f *fakeRecognizer) say(text string) {
	f.mu.Lock()
	f.segments = append(f.segments, repositories.RecognitionResult{Transcript: text, IsFinal: true})
	results := append([]repositories.RecognitionResult(nil), f.segments...)
	handler := f.handler
	f.mu.Unlock()

	handler.OnResult(len(results)-1, results)
}

func (f *fakeRecognizer) fail(code repositories.RecognitionErrorCode) {
	f.current().OnError(code)
}

func (f *fakeRecognizer) end() {
	f.current().OnEnd()
}

func (f *fakeRecognizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRecognizer) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeRecognizer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type fakeConversation struct {
	mu          sync.Mutex
	calls       [][]entities.Message
	reply       string
	err         error
	release     chan struct{}
	inFlight    int32
	maxInFlight int32
}

func (f *fakeConversation) SendTurn(ctx context.Context, history []entities.Message) (string, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxInFlight, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, history)
	release := f.release
	reply, err := f.reply, f.err
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (f *fakeConversation) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeConversation) history(call int) []entities.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeConversation) set(reply string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply, f.err = reply, err
}

type fakeEvaluation struct {
	mu         sync.Mutex
	utterances []string
	result     *entities.EvaluationResult
	err        error
	release    chan struct{}
}

func (f *fakeEvaluation) Evaluate(ctx context.Context, utterance string) (*entities.EvaluationResult, error) {
	f.mu.Lock()
	f.utterances = append(f.utterances, utterance)
	release := f.release
	result, err := f.result, f.err
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result, err
}

func (f *fakeEvaluation) set(result *entities.EvaluationResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.err = result, err
}

func (f *fakeEvaluation) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.utterances...)
}

type fakeSynthesizer struct {
	mu         sync.Mutex
	voices     []repositories.Voice
	voiceCalls int
	spoken     []repositories.Utterance
	cancels    int
	err        error
}

func (f *fakeSynthesizer) Voices(ctx context.Context) ([]repositories.Voice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voiceCalls++
	return f.voices, nil
}

func (f *fakeSynthesizer) Speak(ctx context.Context, utterance repositories.Utterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, utterance)
	return f.err
}

func (f *fakeSynthesizer) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeSynthesizer) utterances() []repositories.Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repositories.Utterance(nil), f.spoken...)
}
