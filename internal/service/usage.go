package service

import (
	"context"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/pkg/metrics"
)

const (
	// DefaultCostPerToken prices the token estimate.
	DefaultCostPerToken = 0.000002

	DashboardActivityLimit = 6
	DashboardPromptLimit   = 6
	UserPromptLimit        = 10
	APILogLimit            = 12

	activityPreviewRunes = 120
	logPreviewRunes      = 80
)

// UsageService derives analytics from the user and conversation stores.
// It never mutates either.
type UsageService struct {
	users         *UserService
	conversations *ConversationService
	costPerToken  float64
}

// NewUsageService creates a new usage service. A non-positive costPerToken
// falls back to DefaultCostPerToken.
func NewUsageService(users *UserService, conversations *ConversationService, costPerToken float64) *UsageService {
	if costPerToken <= 0 {
		costPerToken = DefaultCostPerToken
	}
	return &UsageService{
		users:         users,
		conversations: conversations,
		costPerToken:  costPerToken,
	}
}

// scannedMessage is a message with its owner, in scan order.
type scannedMessage struct {
	userID string
	msg    *model.Message
}

// each walks every message in scan order.
func (s *UsageService) each(fn func(userID string, msg *model.Message)) {
	s.conversations.Scan(func(userID string, conv *model.Conversation) {
		for i := range conv.Messages {
			fn(userID, &conv.Messages[i])
		}
	})
}

// collect copies every message matching keep, in scan order.
func (s *UsageService) collect(keep func(userID string, msg *model.Message) bool) []scannedMessage {
	var out []scannedMessage
	s.each(func(userID string, msg *model.Message) {
		if keep == nil || keep(userID, msg) {
			m := *msg
			out = append(out, scannedMessage{userID: userID, msg: &m})
		}
	})
	return out
}

// CountMessages returns the number of messages userID has across conversations.
func (s *UsageService) CountMessages(userID string) int {
	return s.conversations.CountMessages(userID)
}

// CountPrompts returns the number of user-role messages system-wide.
func (s *UsageService) CountPrompts() int {
	n := 0
	s.each(func(_ string, msg *model.Message) {
		if msg.Role == model.RoleUser {
			n++
		}
	})
	return n
}

// TotalContentChars sums the rune length of every message.
func (s *UsageService) TotalContentChars() int {
	n := 0
	s.each(func(_ string, msg *model.Message) {
		n += utf8.RuneCountInString(msg.Content)
	})
	return n
}

// EstimatedTokens applies the chars/4 heuristic.
func (s *UsageService) EstimatedTokens() int {
	return s.TotalContentChars() / 4
}

// EstimatedCost prices EstimatedTokens.
func (s *UsageService) EstimatedCost() float64 {
	return float64(s.EstimatedTokens()) * s.costPerToken
}

// RecentActivity returns the n newest messages with their owner's name.
// Equal timestamps put the later insertion first.
func (s *UsageService) RecentActivity(ctx context.Context, n int) []model.ActivityItem {
	all := s.collect(nil)

	// Reverse first so the stable sort keeps later insertions ahead on ties.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].msg.CreatedAt.After(all[j].msg.CreatedAt)
	})
	n = max(n, 0)
	if len(all) > n {
		all = all[:n]
	}

	names := make(map[string]string)
	items := make([]model.ActivityItem, 0, len(all))
	for _, m := range all {
		name, ok := names[m.userID]
		if !ok {
			name = m.userID
			if u, err := s.users.Get(ctx, m.userID); err == nil {
				name = u.Name
			}
			names[m.userID] = name
		}
		items = append(items, model.ActivityItem{
			UserID:    m.userID,
			UserName:  name,
			Role:      m.msg.Role,
			Content:   truncateRunes(m.msg.Content, activityPreviewRunes),
			CreatedAt: m.msg.CreatedAt,
		})
	}
	return items
}

// RecentPrompts returns the last n prompts in scan order, newest first.
func (s *UsageService) RecentPrompts(n int) []string {
	return lastPrompts(s.collect(func(_ string, msg *model.Message) bool {
		return msg.Role == model.RoleUser
	}), n)
}

// UserPrompts returns the last n prompts of userID, newest first.
func (s *UsageService) UserPrompts(userID string, n int) []string {
	return lastPrompts(s.collect(func(owner string, msg *model.Message) bool {
		return owner == userID && msg.Role == model.RoleUser
	}), n)
}

func lastPrompts(msgs []scannedMessage, n int) []string {
	n = max(n, 0)
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]string, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, msgs[i].msg.Content)
	}
	return out
}

// WeeklySeries is the synthetic seven-point trend drawn from a total.
func WeeklySeries(total int) model.WeekSeries {
	base := max(total, 1)
	var series model.WeekSeries
	for i := range series {
		series[i] = max(0, int(float64(base)*0.08)+3*i)
	}
	return series
}

// Dashboard assembles the admin landing view.
func (s *UsageService) Dashboard(ctx context.Context) *model.DashboardStats {
	members := s.users.Members(ctx)
	active := 0
	for _, m := range members {
		if s.conversations.CountMessages(m.ID) > 0 {
			active++
		}
	}
	prompts := s.CountPrompts()

	return &model.DashboardStats{
		TotalUsers:      len(members),
		ActiveUsers:     active,
		TotalPrompts:    prompts,
		EstimatedTokens: s.EstimatedTokens(),
		WeeklyPrompts:   WeeklySeries(prompts),
		WeeklyActive:    WeeklySeries(active),
		RecentActivity:  s.RecentActivity(ctx, DashboardActivityLimit),
		RecentPrompts:   s.RecentPrompts(DashboardPromptLimit),
	}
}

// TokensAndCosts assembles the token usage view.
func (s *UsageService) TokensAndCosts() *model.TokenUsage {
	tokens := s.EstimatedTokens()
	return &model.TokenUsage{
		EstimatedTokens: tokens,
		EstimatedCost:   float64(tokens) * s.costPerToken,
		PromptVolume:    s.CountPrompts(),
		WeeklyTokens:    WeeklySeries(tokens),
	}
}

// APILogs returns the last n messages in scan order with shortened content.
func (s *UsageService) APILogs(n int) []model.LogEntry {
	all := s.collect(nil)
	n = max(n, 0)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	logs := make([]model.LogEntry, 0, len(all))
	for _, m := range all {
		content := m.msg.Content
		if utf8.RuneCountInString(content) > logPreviewRunes {
			content = truncateRunes(content, logPreviewRunes) + "..."
		}
		logs = append(logs, model.LogEntry{Role: m.msg.Role, Content: content})
	}
	return logs
}

// UserRows returns the member table with freshly counted messages.
func (s *UsageService) UserRows(ctx context.Context) []model.UserRow {
	members := s.users.Members(ctx)
	rows := make([]model.UserRow, 0, len(members))
	for _, u := range members {
		rows = append(rows, toUserRow(u, s.conversations.CountMessages(u.ID)))
	}
	return rows
}

// UserUsage returns the usage view of one member.
func (s *UsageService) UserUsage(ctx context.Context, userID string) (*model.UserUsage, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.UserUsage{
		User:          toUserRow(*u, s.conversations.CountMessages(u.ID)),
		Conversations: s.conversations.CountConversations(u.ID),
		RecentPrompts: s.UserPrompts(u.ID, UserPromptLimit),
	}, nil
}

// RefreshMetrics publishes the headline numbers as gauges.
func (s *UsageService) RefreshMetrics(ctx context.Context) {
	members := s.users.Members(ctx)
	active := 0
	for _, m := range members {
		if s.conversations.CountMessages(m.ID) > 0 {
			active++
		}
	}
	metrics.RecordUsage(len(members), active, s.CountPrompts(), s.EstimatedTokens())
}

func toUserRow(u model.User, messages int) model.UserRow {
	var lastActive *time.Time
	if u.LastActiveAt != nil {
		t := *u.LastActiveAt
		lastActive = &t
	}
	return model.UserRow{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         u.Role,
		Status:       u.Status,
		CreatedAt:    u.CreatedAt,
		LastActiveAt: lastActive,
		MessageCount: messages,
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
