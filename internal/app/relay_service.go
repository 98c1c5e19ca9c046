package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Relay errors surfaced verbatim to clients.
var (
	ErrEmptyMessage      = errors.New("Message cannot be empty")
	ErrRelayUnconfigured = errors.New("Chat is not configured")
)

// AnonymousUserID tags chat sessions opened without an authenticated user.
const AnonymousUserID = "anonymous"

// RelayService forwards user messages to the external conversational webhook
// and accumulates its streamed newline-delimited JSON reply.
type RelayService struct {
	webhookURL string
	client     *http.Client
	log        *slog.Logger
	now        Clock
}

// NewRelayService creates a relay for the given webhook URL. The HTTP client
// carries no timeout of its own: a hung endpoint is bounded only by the
// request context.
func NewRelayService(webhookURL string, log *slog.Logger, now Clock) *RelayService {
	if now == nil {
		now = time.Now
	}
	return &RelayService{
		webhookURL: webhookURL,
		client:     &http.Client{},
		log:        log,
		now:        now,
	}
}

// NewChatSessionID mints a chat session identifier for the given user id,
// or for an anonymous visitor when the id is empty.
func NewChatSessionID(userID string) string {
	if userID == "" {
		userID = AnonymousUserID
	}
	return userID + "_" + uuid.NewString()
}

// RelayReply is the normalized result of one webhook exchange.
type RelayReply struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
}

type relayMetadata struct {
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
	Timestamp string `json:"timestamp"`
}

type relayRequest struct {
	Action    string        `json:"action"`
	SessionID string        `json:"sessionId"`
	ChatInput string        `json:"chatInput"`
	Metadata  relayMetadata `json:"metadata"`
}

// relayLine is one newline-delimited frame of the webhook's reply stream.
type relayLine struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// SendMessage posts text to the webhook and accumulates the streamed reply.
// A missing sessionID is minted from userID. The relay carries no in-flight
// guard; serializing calls is the caller's concern.
func (s *RelayService) SendMessage(ctx context.Context, sessionID, userID, userEmail, text string) (*RelayReply, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if s.webhookURL == "" {
		return nil, ErrRelayUnconfigured
	}
	if sessionID == "" {
		sessionID = NewChatSessionID(userID)
	}

	payload := relayRequest{
		Action:    "sendMessage",
		SessionID: sessionID,
		ChatInput: text,
		Metadata: relayMetadata{
			UserID:    userID,
			UserEmail: userEmail,
			Timestamp: s.now().UTC().Format(time.RFC3339),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("chat webhook: unexpected status %d", resp.StatusCode)
	}

	reply, err := accumulateStream(resp.Body)
	if err != nil {
		return nil, err
	}
	return &RelayReply{SessionID: sessionID, Reply: reply}, nil
}

// accumulateStream consumes a newline-delimited JSON stream. "item" frames
// contribute content in arrival order; an "error" frame aborts; unparseable
// lines are skipped. When nothing structured accumulated and exactly one
// line was present, that line is retried as a plain JSON payload, and
// failing that the raw text is returned verbatim.
func accumulateStream(r io.Reader) (string, error) {
	var out strings.Builder
	var raw strings.Builder
	var lines []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if raw.Len() > 0 {
			raw.WriteByte('\n')
		}
		raw.WriteString(line)

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lines = append(lines, trimmed)

		var frame relayLine
		if err := json.Unmarshal([]byte(trimmed), &frame); err != nil {
			// Malformed-input tolerance, not a validation boundary.
			continue
		}
		switch frame.Type {
		case "item":
			out.WriteString(contentToString(frame.Content))
		case "error":
			msg := contentToString(frame.Content)
			if msg == "" {
				msg = "chat service error"
			}
			return "", errors.New(msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("chat webhook: read stream: %w", err)
	}

	if out.Len() > 0 {
		return out.String(), nil
	}
	if len(lines) == 1 {
		if reply, ok := parsePlainPayload(lines[0]); ok {
			return reply, nil
		}
	}
	return strings.TrimSpace(raw.String()), nil
}

// parsePlainPayload handles non-streamed webhook replies: either a bare JSON
// string or an object with one of the usual reply fields.
func parsePlainPayload(line string) (string, bool) {
	var str string
	if err := json.Unmarshal([]byte(line), &str); err == nil {
		return str, true
	}

	var obj struct {
		Output  string `json:"output"`
		Message string `json:"message"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return "", false
	}
	for _, v := range []string{obj.Output, obj.Message, obj.Text} {
		if v != "" {
			return v, true
		}
	}
	return "", false
}

// contentToString renders a frame's content: JSON strings are unwrapped,
// anything else keeps its raw JSON encoding.
func contentToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return string(raw)
}
