package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mininerva/openclaw-cardputer/domain/repositories"
	"github.com/mininerva/openclaw-cardputer/internal/metrics"
	"github.com/mininerva/openclaw-cardputer/internal/protocol"
)

// Collaborator timeouts. Both calls happen outside any registry lock, so a
// slow backend only ever stalls its own connection loop.
const (
	transcribeTimeout = 30 * time.Second
	relayTimeout      = 60 * time.Second
)

// Router dispatches decoded frames to their handlers. Exchanges on one
// session run sequentially; the per-connection read loop provides the
// ordering, there is no parallel fan-out per session.
type Router struct {
	registry     *Registry
	stt          repositories.SpeechToText
	relay        repositories.MessageRelay
	history      repositories.ConversationHistory
	audioEnabled bool
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// NewRouter wires the router to its collaborators.
func NewRouter(
	registry *Registry,
	stt repositories.SpeechToText,
	relay repositories.MessageRelay,
	history repositories.ConversationHistory,
	audioEnabled bool,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Router {
	return &Router{
		registry:     registry,
		stt:          stt,
		relay:        relay,
		history:      history,
		audioEnabled: audioEnabled,
		logger:       logger,
		metrics:      m,
	}
}

// HandleFrame processes one steady-state frame. Auth frames belong to the
// handshake and are not accepted here. Returned errors are reported to the
// device by the supervisor; they never close the connection.
func (rt *Router) HandleFrame(ctx context.Context, sess *Session, f protocol.Frame) error {
	switch f.Type {
	case protocol.TypeText:
		return rt.handleText(ctx, sess, f)
	case protocol.TypeAudio:
		return rt.handleAudio(ctx, sess, f)
	case protocol.TypePing:
		rt.handlePing(sess, f)
		return nil
	case protocol.TypeAudioConfig:
		rt.handleAudioConfig(sess, f)
		return nil
	default:
		rt.logger.Warn("Dropping frame of unexpected type",
			zap.String("session_id", sess.ID),
			zap.Stringer("type", f.Type))
		return nil
	}
}

func (rt *Router) handleText(ctx context.Context, sess *Session, f protocol.Frame) error {
	text := protocol.ParseText(f.Payload).Text
	if text == "" {
		return nil
	}

	rt.logger.Info("Text from device",
		zap.String("device_id", sess.DeviceID()),
		zap.Int("length", len(text)))

	reply := rt.relayText(ctx, sess, repositories.ExchangeSourceText, text)
	rt.registry.SendToSession(sess.ID, protocol.ResponseFrame(reply, true))
	return nil
}

func (rt *Router) handleAudio(ctx context.Context, sess *Session, f protocol.Frame) error {
	if !rt.audioEnabled {
		rt.registry.SendToSession(sess.ID, protocol.NewFrame(
			protocol.TypeError, protocol.ErrorPayload("Audio input is disabled")))
		return nil
	}

	chunk, err := protocol.ParseAudio(f.Payload)
	if err != nil {
		// Reject just this chunk; the buffered clip stays intact.
		rt.logger.Error("Audio chunk rejected",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		return nil
	}

	if len(chunk.Data) > 0 {
		if err := sess.Audio.Append(chunk.Data); err != nil {
			rt.logger.Warn("Audio chunk dropped",
				zap.String("session_id", sess.ID),
				zap.Int("chunk_bytes", len(chunk.Data)),
				zap.Error(err))
		} else {
			sess.RecordAudioReceived(len(chunk.Data))
			rt.metrics.AudioBytesBuffered.Add(float64(len(chunk.Data)))
		}
	}

	if !chunk.IsFinal || sess.Audio.Len() == 0 {
		return nil
	}

	rt.registry.SendToSession(sess.ID, protocol.NewFrame(
		protocol.TypeStatus, protocol.StatusPayload("Transcribing...")))

	clip := sess.Audio.Finalize()
	rt.logger.Info("Processing audio clip",
		zap.String("device_id", sess.DeviceID()),
		zap.Int("bytes", len(clip)),
		zap.String("codec", chunk.Codec))

	text, err := rt.transcribe(ctx, clip, chunk.Codec)
	if err != nil || text == "" {
		rt.metrics.TranscriptionErrs.Inc()
		if err != nil {
			rt.logger.Error("Transcription failed",
				zap.String("session_id", sess.ID),
				zap.Error(err))
		}
		rt.registry.SendToSession(sess.ID, protocol.NewFrame(
			protocol.TypeError, protocol.ErrorPayload("Could not transcribe audio")))
		return nil
	}

	rt.logger.Info("Transcribed", zap.String("text", text))
	rt.registry.SendToSession(sess.ID,
		protocol.ResponseFrame(fmt.Sprintf("[You said: %s]", text), false))

	reply := rt.relayText(ctx, sess, repositories.ExchangeSourceAudio, text)
	rt.registry.SendToSession(sess.ID, protocol.ResponseFrame(reply, true))
	return nil
}

// handlePing answers immediately; pings never reach the relay or the STT
// backend and do not count into exchange stats beyond the frame counters.
func (rt *Router) handlePing(sess *Session, f protocol.Frame) {
	pingTS, ok := protocol.PingTimestamp(f.Payload)
	if !ok {
		pingTS = int64(f.Timestamp)
	}
	rt.registry.SendToSession(sess.ID, protocol.NewFrame(
		protocol.TypePong, protocol.PongPayload(pingTS)))
}

func (rt *Router) handleAudioConfig(sess *Session, f protocol.Frame) {
	cfg := protocol.ParseAudioConfig(f.Payload)
	sess.SetAudioConfig(cfg)
	rt.logger.Info("Audio config stored",
		zap.String("session_id", sess.ID),
		zap.Int("sample_rate", cfg.SampleRate),
		zap.String("codec", cfg.Codec))
}

func (rt *Router) transcribe(ctx context.Context, clip []byte, codec string) (string, error) {
	rt.metrics.Transcriptions.Inc()

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()
	return rt.stt.Transcribe(ctx, clip, codec)
}

// relayText forwards one utterance and always returns something to say back.
// Relay failures become a descriptive reply rather than an error so the
// device is never left hanging.
func (rt *Router) relayText(ctx context.Context, sess *Session, source repositories.ExchangeSource, text string) string {
	rt.metrics.RelayRequests.Inc()
	started := time.Now()

	relayCtx, cancel := context.WithTimeout(ctx, relayTimeout)
	defer cancel()

	reply, err := rt.relay.Relay(relayCtx, sess.DeviceID(), text)
	if err != nil {
		rt.metrics.RelayErrors.Inc()
		rt.logger.Error("Relay failed",
			zap.String("device_id", sess.DeviceID()),
			zap.Error(err))
		reply = fmt.Sprintf("Gateway error: %v", err)
	}

	rt.recordExchange(sess, source, text, reply, time.Since(started))
	return reply
}

func (rt *Router) recordExchange(sess *Session, source repositories.ExchangeSource, request, reply string, took time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := rt.history.Record(ctx, repositories.Exchange{
		DeviceID:   sess.DeviceID(),
		SessionID:  sess.ID,
		Source:     source,
		Request:    request,
		Reply:      reply,
		OccurredAt: time.Now(),
		DurationMs: took.Milliseconds(),
	})
	if err != nil {
		rt.logger.Error("Failed to record exchange",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}
}
