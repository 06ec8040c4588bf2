// Package gateway exposes the turn pipeline over an OpenAI-compatible HTTP
// API, so existing voice satellites and chat clients can point at voxgate
// without a custom integration:
//
//   - POST /v1/chat/completions — one request is one conversational turn
//   - GET  /v1/models           — reports the configured model
//   - POST /v1/audio/transcriptions — WAV upload to text (when STT is configured)
//   - POST /v1/audio/speech     — text to WAV (when TTS is configured)
//
// The OpenAI "user" field doubles as the session identifier; turns sharing it
// are ordered and share conversation history. Requests without it are
// anonymous: unordered and never recorded.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxgate/voxgate/internal/turn"
	"github.com/voxgate/voxgate/pkg/audio"
	"github.com/voxgate/voxgate/pkg/history"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	"github.com/voxgate/voxgate/pkg/provider/stt"
	"github.com/voxgate/voxgate/pkg/provider/tts"
)

// sttSampleRate is what the transcription backend consumes; uploads are
// resampled to it.
const sttSampleRate = 16000

// maxUploadBytes bounds audio uploads.
const maxUploadBytes = 32 << 20

const defaultHistoryWindow = 12

// Server handles the HTTP surface. Construct with New, mount via Handler.
type Server struct {
	orch    *turn.Orchestrator
	history history.Store
	window  int

	sttP   stt.Provider
	ttsP   tts.Provider
	apiKey string
	model  string
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithSTT enables the /v1/audio/transcriptions endpoint.
func WithSTT(p stt.Provider) Option {
	return func(s *Server) { s.sttP = p }
}

// WithTTS enables the /v1/audio/speech endpoint.
func WithTTS(p tts.Provider) Option {
	return func(s *Server) { s.ttsP = p }
}

// WithAPIKey requires a matching Bearer token on every /v1/* request.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithHistoryWindow sets how many stored entries accompany a turn. Default 12.
func WithHistoryWindow(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithModelName sets the model identifier reported by /v1/models and echoed
// in completion responses.
func WithModelName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.model = name
		}
	}
}

// New creates a Server over the turn orchestrator and history store.
func New(orch *turn.Orchestrator, store history.Store, opts ...Option) *Server {
	s := &Server{
		orch:    orch,
		history: store,
		window:  defaultHistoryWindow,
		model:   "voxgate",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the route table with auth applied to the /v1 surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat/completions", s.auth(http.HandlerFunc(s.handleChatCompletions)))
	mux.Handle("GET /v1/models", s.auth(http.HandlerFunc(s.handleModels)))
	mux.Handle("POST /v1/audio/transcriptions", s.auth(http.HandlerFunc(s.handleTranscriptions)))
	mux.Handle("POST /v1/audio/speech", s.auth(http.HandlerFunc(s.handleSpeech)))
	return mux
}

// auth enforces the Bearer token when one is configured.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token != s.apiKey {
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ─── /v1/chat/completions ─────────────────────────────────────────────────────

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	User     string        `json:"user"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Voxgate *turnMeta    `json:"voxgate,omitempty"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	Message      *chatMessage `json:"message,omitempty"`
	Delta        *chatMessage `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

// turnMeta is a voxgate extension carrying turn provenance alongside the
// OpenAI-shaped payload.
type turnMeta struct {
	TurnID     string `json:"turn_id"`
	ResolvedBy string `json:"resolved_by"`
	Capability string `json:"capability,omitempty"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	text, ok := lastUserMessage(req.Messages)
	if !ok {
		writeError(w, http.StatusBadRequest, "messages must contain a user message")
		return
	}

	ctx := r.Context()
	utt := turn.Utterance{
		Text:      text,
		SessionID: req.User,
		Source:    "text",
		Context:   s.turnContext(r, req),
	}

	resp := s.orch.HandleTurn(ctx, utt)
	s.recordTurn(r, req.User, text, resp.Reply)

	meta := &turnMeta{TurnID: resp.TurnID, ResolvedBy: resp.ResolvedBy, Capability: resp.Capability}
	if req.Stream {
		s.writeStream(w, resp.Reply, meta)
		return
	}

	finish := "stop"
	writeJSON(w, http.StatusOK, chatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   s.model,
		Choices: []chatChoice{{
			Message:      &chatMessage{Role: "assistant", Content: resp.Reply},
			FinishReason: &finish,
		}},
		Voxgate: meta,
	})
}

// turnContext assembles the conversation window for the resolver. A client
// that sends its own history gets it passed through; otherwise the stored
// session transcript is used. Anonymous requests get no stored context —
// session "" would be shared by every client without a user field.
func (s *Server) turnContext(r *http.Request, req chatRequest) []llm.Message {
	if len(req.Messages) > 1 {
		msgs := make([]llm.Message, 0, len(req.Messages)-1)
		for _, m := range req.Messages[:len(req.Messages)-1] {
			if m.Role == "user" || m.Role == "assistant" {
				msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
			}
		}
		return msgs
	}
	if req.User == "" {
		return nil
	}

	entries, err := s.history.Recent(r.Context(), req.User, s.window)
	if err != nil {
		slog.Warn("loading session history failed", "session", req.User, "error", err)
		return nil
	}
	msgs := make([]llm.Message, len(entries))
	for i, e := range entries {
		msgs[i] = llm.Message{Role: e.Role, Content: e.Content}
	}
	return msgs
}

// recordTurn appends both sides of the exchange to the session transcript.
// Best effort; a failing store must not fail the turn. Anonymous turns are
// not recorded.
func (s *Server) recordTurn(r *http.Request, sessionID, text, reply string) {
	if sessionID == "" {
		return
	}
	ctx := r.Context()
	if err := s.history.Append(ctx, sessionID, history.Entry{Role: "user", Content: text}); err != nil {
		slog.Warn("appending user entry failed", "session", sessionID, "error", err)
		return
	}
	if err := s.history.Append(ctx, sessionID, history.Entry{Role: "assistant", Content: reply}); err != nil {
		slog.Warn("appending assistant entry failed", "session", sessionID, "error", err)
	}
}

// writeStream emits the reply as a minimal SSE completion stream: one content
// chunk, one finish chunk, then [DONE]. The reply is already complete when
// this runs; streaming exists for client compatibility, not latency.
func (s *Server) writeStream(w http.ResponseWriter, reply string, meta *turnMeta) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	content := chatResponse{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: s.model,
		Choices: []chatChoice{{Delta: &chatMessage{Role: "assistant", Content: reply}}},
		Voxgate: meta,
	}
	finish := "stop"
	final := chatResponse{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: s.model,
		Choices: []chatChoice{{Delta: &chatMessage{}, FinishReason: &finish}},
	}

	flusher, _ := w.(http.Flusher)
	for _, chunk := range []chatResponse{content, final} {
		data, err := json.Marshal(chunk)
		if err != nil {
			slog.Error("encoding stream chunk failed", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func lastUserMessage(messages []chatMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content, true
		}
	}
	return "", false
}

// ─── /v1/models ───────────────────────────────────────────────────────────────

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	type model struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Created int64  `json:"created"`
		OwnedBy string `json:"owned_by"`
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []model{
			{ID: s.model, Object: "model", Created: time.Now().Unix(), OwnedBy: "voxgate"},
		},
	})
}

// ─── /v1/audio/transcriptions ─────────────────────────────────────────────────

func (s *Server) handleTranscriptions(w http.ResponseWriter, r *http.Request) {
	if s.sttP == nil {
		writeError(w, http.StatusServiceUnavailable, "transcription is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload failed: "+err.Error())
		return
	}

	clip, err := audio.DecodeWAV(data)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "only 16-bit PCM WAV is supported: "+err.Error())
		return
	}

	samples := audio.PrepareForSTT(clip, sttSampleRate)
	transcript, err := s.sttP.Transcribe(r.Context(), samples, sttSampleRate)
	if err != nil {
		slog.Error("transcription failed", "error", err)
		writeError(w, http.StatusInternalServerError, "transcription failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": transcript.Text})
}

// ─── /v1/audio/speech ─────────────────────────────────────────────────────────

type speechRequest struct {
	Input string  `json:"input"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if s.ttsP == nil {
		writeError(w, http.StatusServiceUnavailable, "speech synthesis is not configured")
		return
	}

	var req speechRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input must not be empty")
		return
	}

	clip, err := s.ttsP.Synthesize(r.Context(), tts.Request{
		Text:  req.Input,
		Voice: req.Voice,
		Speed: req.Speed,
	})
	if err != nil {
		slog.Error("speech synthesis failed", "error", err)
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}

	mime := clip.MIMEType
	if mime == "" {
		mime = "audio/wav"
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(clip.Audio); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Debug("writing audio response failed", "error", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// apiError follows the OpenAI error envelope so client SDKs surface it.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	var e apiError
	e.Error.Message = message
	e.Error.Type = "invalid_request_error"
	if status >= 500 {
		e.Error.Type = "server_error"
	}
	writeJSON(w, status, e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}
