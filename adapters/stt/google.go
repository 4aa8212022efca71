package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/satriahrh/speakup/domain/repositories"
)

const (
	defaultSampleRate = 48000
	defaultEncoding   = "WEBM_OPUS"
)

// GoogleConfig holds the audio format the browser streams to the server
type GoogleConfig struct {
	SampleRate int
	Encoding   string
}

type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

type streamOpener func(ctx context.Context) (recognizeStream, func() error, error)

// GoogleRecognizer implements Recognizer on Google Cloud streaming recognition.
// Audio arrives through WriteAudio; one recognizer serves one session.
type GoogleRecognizer struct {
	open       streamOpener
	sampleRate int
	encoding   string
	logger     *zap.Logger

	mu     sync.Mutex
	stream recognizeStream
}

var (
	_ repositories.Recognizer = (*GoogleRecognizer)(nil)
	_ repositories.AudioInput = (*GoogleRecognizer)(nil)
)

// NewGoogleRecognizer creates a recognizer backed by Google Cloud Speech
func NewGoogleRecognizer(config GoogleConfig, logger *zap.Logger) *GoogleRecognizer {
	return newGoogleRecognizer(openGoogleStream, config, logger)
}

func newGoogleRecognizer(open streamOpener, config GoogleConfig, logger *zap.Logger) *GoogleRecognizer {
	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}
	encoding := config.Encoding
	if encoding == "" {
		encoding = defaultEncoding
	}
	return &GoogleRecognizer{
		open:       open,
		sampleRate: sampleRate,
		encoding:   encoding,
		logger:     logger,
	}
}

func openGoogleStream(ctx context.Context) (recognizeStream, func() error, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	return stream, client.Close, nil
}

// Start opens a streaming session and sends the recognition configuration
func (g *GoogleRecognizer) Start(ctx context.Context, config repositories.RecognitionConfig, handler repositories.RecognitionHandler) error {
	encoding, err := getAudioEncoding(g.encoding)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stream != nil {
		return errors.New("recognition already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, closeClient, err := g.open(ctx)
	if err != nil {
		cancel()
		return err
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   encoding,
					SampleRateHertz:            int32(g.sampleRate),
					LanguageCode:               config.Language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults:  config.InterimResults,
				SingleUtterance: !config.Continuous,
			},
		},
	}); err != nil {
		stream.CloseSend()
		closeClient()
		cancel()
		return fmt.Errorf("failed to send streaming config: %w", err)
	}

	g.stream = stream
	go g.receiveResults(ctx, stream, handler, func() {
		closeClient()
		cancel()
	})

	g.logger.Info("Google streaming recognition started",
		zap.String("language", config.Language),
		zap.String("encoding", g.encoding),
		zap.Int("sampleRate", g.sampleRate))

	return nil
}

// WriteAudio forwards a chunk of captured audio to the active stream
func (g *GoogleRecognizer) WriteAudio(data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stream == nil {
		return errors.New("no active recognition stream")
	}
	if len(data) == 0 {
		return nil
	}

	if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

// Stop closes the send side; the final results and OnEnd follow from the receiver
func (g *GoogleRecognizer) Stop() error {
	g.mu.Lock()
	stream := g.stream
	g.stream = nil
	g.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send stream: %w", err)
	}
	return nil
}

func (g *GoogleRecognizer) receiveResults(ctx context.Context, stream recognizeStream, handler repositories.RecognitionHandler, cleanup func()) {
	defer func() {
		g.mu.Lock()
		if g.stream == stream {
			g.stream = nil
		}
		g.mu.Unlock()

		cleanup()
		if handler.OnEnd != nil {
			handler.OnEnd()
		}
	}()

	var finals []repositories.RecognitionResult

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			code := recognitionErrorCode(err)
			if ctx.Err() != nil {
				code = repositories.RecognitionErrorAborted
			}
			g.logger.Warn("Streaming recognition failed", zap.String("code", string(code)), zap.Error(err))
			if handler.OnError != nil {
				handler.OnError(code)
			}
			return
		}

		changed := len(finals)
		var interim string
		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			text := result.Alternatives[0].Transcript
			if result.IsFinal {
				finals = append(finals, repositories.RecognitionResult{Transcript: text, IsFinal: true})
			} else {
				interim += text
			}
		}

		results := make([]repositories.RecognitionResult, len(finals), len(finals)+1)
		copy(results, finals)
		if interim != "" {
			results = append(results, repositories.RecognitionResult{Transcript: interim})
		}

		if handler.OnResult != nil && len(results) > 0 {
			handler.OnResult(changed, results)
		}
	}
}

// recognitionErrorCode maps gRPC failures onto recognizer error categories
func recognitionErrorCode(err error) repositories.RecognitionErrorCode {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return repositories.RecognitionErrorServiceNotAllowed
	case codes.OutOfRange:
		return repositories.RecognitionErrorNoSpeech
	case codes.InvalidArgument:
		return repositories.RecognitionErrorAudioCapture
	case codes.Canceled:
		return repositories.RecognitionErrorAborted
	default:
		return repositories.RecognitionErrorNetwork
	}
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
