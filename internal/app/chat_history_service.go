package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"family6/internal/domain"
)

// Chat history validation errors, surfaced verbatim to clients.
var (
	ErrChatSessionRequired = errors.New("A chat session id is required")
	ErrBadMessageType      = errors.New("Message type must be \"human\" or \"ai\"")
)

// Limits applied when deriving conversation titles and previews.
const (
	titleMaxRunes   = 50
	previewMaxRunes = 100

	recentSessionLimit = 5
	activityWindowDays = 7

	untitledConversation = "New conversation"
)

// ChatMessageView is the client-facing view of a stored message.
type ChatMessageView struct {
	ID        string             `json:"id"`
	Type      domain.MessageType `json:"type"`
	Content   string             `json:"content"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Conversation is a group of messages sharing a session id, in insertion
// order.
type Conversation struct {
	SessionID string            `json:"sessionId"`
	Title     string            `json:"title"`
	Preview   string            `json:"preview"`
	StartedAt time.Time         `json:"startedAt"`
	Messages  []ChatMessageView `json:"messages"`
}

// DayActivity is one bucket of the trailing activity histogram. Percent is
// normalized against the busiest day in the window.
type DayActivity struct {
	Day     string `json:"day"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// SessionActivity pairs a session id with its message count.
type SessionActivity struct {
	SessionID     string    `json:"sessionId"`
	Messages      int       `json:"messages"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// ChatStats summarizes a user's stored chat history.
type ChatStats struct {
	Conversations  int               `json:"conversations"`
	HumanMessages  int               `json:"humanMessages"`
	AIMessages     int               `json:"aiMessages"`
	Activity       []DayActivity     `json:"activity"`
	RecentSessions []SessionActivity `json:"recentSessions"`
	FirstMessageAt *time.Time        `json:"firstMessageAt,omitempty"`
	LastMessageAt  *time.Time        `json:"lastMessageAt,omitempty"`
}

// ChatHistoryService stores relay exchanges and derives per-user statistics.
type ChatHistoryService struct {
	chats    domain.ChatRepository
	sessions *SessionManager
	now      Clock
}

// NewChatHistoryService creates a chat history service. A nil clock defaults
// to time.Now.
func NewChatHistoryService(chats domain.ChatRepository, sessions *SessionManager, now Clock) *ChatHistoryService {
	if now == nil {
		now = time.Now
	}
	return &ChatHistoryService{chats: chats, sessions: sessions, now: now}
}

// newMessageID builds a time-plus-random composite id. Collisions are
// treated as negligible, not eliminated.
func newMessageID(now time.Time) string {
	return fmt.Sprintf("%d_%s", now.UnixMilli(), GenerateToken(8))
}

// SaveMessage validates the session and appends one message to the user's
// history.
func (s *ChatHistoryService) SaveMessage(ctx context.Context, sessionToken, chatSessionID string, msgType domain.MessageType, content string) (*domain.ChatMessage, error) {
	sess, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if chatSessionID == "" {
		return nil, ErrChatSessionRequired
	}
	if !msgType.Valid() {
		return nil, ErrBadMessageType
	}

	now := s.now()
	m := domain.ChatMessage{
		ID:        newMessageID(now),
		SessionID: chatSessionID,
		UserEmail: sess.UserEmail,
		Type:      msgType,
		Content:   content,
		CreatedAt: now,
	}
	if err := s.chats.Append(ctx, m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetHistory returns the user's conversations, most recent first. Title and
// preview come from the first human message of each conversation.
func (s *ChatHistoryService) GetHistory(ctx context.Context, sessionToken string) ([]Conversation, error) {
	sess, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	msgs, err := s.chats.ListByUser(ctx, sess.UserEmail)
	if err != nil {
		return nil, err
	}

	return groupConversations(msgs), nil
}

// groupConversations groups rows by session id preserving per-group
// insertion order. Interleaving with other sessions' rows never splits a
// group.
func groupConversations(msgs []domain.ChatMessage) []Conversation {
	bySession := make(map[string]*Conversation)
	order := make([]string, 0)

	for _, m := range msgs {
		conv, ok := bySession[m.SessionID]
		if !ok {
			conv = &Conversation{
				SessionID: m.SessionID,
				Title:     untitledConversation,
				Preview:   untitledConversation,
				StartedAt: m.CreatedAt,
			}
			bySession[m.SessionID] = conv
			order = append(order, m.SessionID)
		}
		conv.Messages = append(conv.Messages, ChatMessageView{
			ID:        m.ID,
			Type:      m.Type,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	for _, id := range order {
		conv := bySession[id]
		for _, mv := range conv.Messages {
			if mv.Type == domain.MessageHuman {
				conv.Title = truncateRunes(mv.Content, titleMaxRunes)
				conv.Preview = truncateRunes(mv.Content, previewMaxRunes)
				break
			}
		}
	}

	out := make([]Conversation, 0, len(order))
	for _, id := range order {
		out = append(out, *bySession[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// GetStats computes message counts, the trailing 7-day activity histogram
// and the most recently active conversations.
func (s *ChatHistoryService) GetStats(ctx context.Context, sessionToken string) (*ChatStats, error) {
	sess, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	msgs, err := s.chats.ListByUser(ctx, sess.UserEmail)
	if err != nil {
		return nil, err
	}

	stats := &ChatStats{}
	distinct := make(map[string]struct{})
	lastBySession := make(map[string]*SessionActivity)
	countByDay := make(map[string]int)

	now := s.now()
	windowStart := startOfDay(now).AddDate(0, 0, -(activityWindowDays - 1))

	for i := range msgs {
		m := &msgs[i]
		distinct[m.SessionID] = struct{}{}

		switch m.Type {
		case domain.MessageHuman:
			stats.HumanMessages++
		case domain.MessageAI:
			stats.AIMessages++
		}

		if !m.CreatedAt.Before(windowStart) {
			countByDay[m.CreatedAt.Format("2006-01-02")]++
		}

		if sa, ok := lastBySession[m.SessionID]; ok {
			sa.Messages++
			if m.CreatedAt.After(sa.LastMessageAt) {
				sa.LastMessageAt = m.CreatedAt
			}
		} else {
			lastBySession[m.SessionID] = &SessionActivity{
				SessionID:     m.SessionID,
				Messages:      1,
				LastMessageAt: m.CreatedAt,
			}
		}

		if stats.FirstMessageAt == nil || m.CreatedAt.Before(*stats.FirstMessageAt) {
			t := m.CreatedAt
			stats.FirstMessageAt = &t
		}
		if stats.LastMessageAt == nil || m.CreatedAt.After(*stats.LastMessageAt) {
			t := m.CreatedAt
			stats.LastMessageAt = &t
		}
	}

	stats.Conversations = len(distinct)

	// Trailing window, oldest day first, normalized 0-100 against the
	// busiest day.
	maxCount := 0
	for i := 0; i < activityWindowDays; i++ {
		day := windowStart.AddDate(0, 0, i).Format("2006-01-02")
		if c := countByDay[day]; c > maxCount {
			maxCount = c
		}
	}
	stats.Activity = make([]DayActivity, 0, activityWindowDays)
	for i := 0; i < activityWindowDays; i++ {
		day := windowStart.AddDate(0, 0, i).Format("2006-01-02")
		c := countByDay[day]
		pct := 0
		if maxCount > 0 {
			pct = c * 100 / maxCount
		}
		stats.Activity = append(stats.Activity, DayActivity{Day: day, Count: c, Percent: pct})
	}

	recent := make([]SessionActivity, 0, len(lastBySession))
	for _, sa := range lastBySession {
		recent = append(recent, *sa)
	}
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].LastMessageAt.After(recent[j].LastMessageAt)
	})
	if len(recent) > recentSessionLimit {
		recent = recent[:recentSessionLimit]
	}
	stats.RecentSessions = recent

	return stats, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
