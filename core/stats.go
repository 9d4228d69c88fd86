package core

import (
	"math"
	"time"
)

const (
	// StatsWeek is the window for the recent activity counters.
	StatsWeek = 7 * 24 * time.Hour

	// StatsDailyWindow is how far back DailyUsage reaches.
	StatsDailyWindow = 30 * 24 * time.Hour

	// StatsMaxDays caps the number of DailyUsage entries.
	StatsMaxDays = 30
)

// ConversationStats summarizes one user's conversation activity.
type ConversationStats struct {
	TotalConversations int
	EmptyConversations int

	// TotalMessages counts the user's turns across every session.
	TotalMessages int

	// ConversationsThisWeek and MessagesThisWeek count records created within StatsWeek.
	ConversationsThisWeek int
	MessagesThisWeek      int

	// DailyUsage holds sessions created per UTC day within StatsDailyWindow,
	// newest day first. Days without sessions are omitted.
	DailyUsage []DailyUsage
}

// DailyUsage is the number of sessions started on one day.
type DailyUsage struct {
	Date          time.Time
	Conversations int
}

// AverageMessages returns turns per conversation rounded to two decimals.
func (s *ConversationStats) AverageMessages() float64 {
	if s.TotalConversations == 0 {
		return 0
	}
	return round2(float64(s.TotalMessages) / float64(s.TotalConversations))
}

// EngagementRate returns the percentage of conversations with at least one turn,
// rounded to two decimals.
func (s *ConversationStats) EngagementRate() float64 {
	if s.TotalConversations == 0 {
		return 0
	}
	active := s.TotalConversations - s.EmptyConversations
	return round2(float64(active) / float64(s.TotalConversations) * 100)
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
