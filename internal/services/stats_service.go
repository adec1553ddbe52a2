// internal/services/stats_service.go
package services

import (
	"maps"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Corphon/AvaChat/internal/utils"
)

// UsageStats is a snapshot of chat usage since start.
type UsageStats struct {
	TotalRequests int            `json:"total_requests"`
	TodayRequests int            `json:"today_requests"`
	Failures      int            `json:"failures"`
	TodayFailures int            `json:"today_failures"`
	StrategyHits  map[string]int `json:"strategy_hits"`
	ProviderHits  map[string]int `json:"provider_hits"`
	StartedAt     time.Time      `json:"started_at"`
	LastReset     time.Time      `json:"last_reset"`
	LastUpdated   time.Time      `json:"last_updated"`
}

// StatsService keeps usage counters in memory. Daily counters roll over
// through a cron job; nothing is persisted.
type StatsService struct {
	mutex sync.Mutex
	stats UsageStats
	cron  *cron.Cron
}

// NewStatsService starts the daily rollover job.
func NewStatsService() *StatsService {
	now := time.Now()
	s := &StatsService{
		stats: UsageStats{
			StrategyHits: make(map[string]int),
			ProviderHits: make(map[string]int),
			StartedAt:    now,
			LastReset:    now,
			LastUpdated:  now,
		},
		cron: cron.New(),
	}

	if _, err := s.cron.AddFunc("@daily", s.ResetDaily); err != nil {
		utils.GetLogger().Warn("Failed to schedule daily stats reset", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.cron.Start()
	return s
}

// RecordChat counts one finished chat turn.
func (s *StatsService) RecordChat(provider, strategy string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stats.TotalRequests++
	s.stats.TodayRequests++
	if strategy != "" {
		s.stats.StrategyHits[strategy]++
	}
	if provider != "" {
		s.stats.ProviderHits[provider]++
	}
	s.stats.LastUpdated = time.Now()
}

// RecordFailure counts one failed chat turn.
func (s *StatsService) RecordFailure() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stats.TotalRequests++
	s.stats.TodayRequests++
	s.stats.Failures++
	s.stats.TodayFailures++
	s.stats.LastUpdated = time.Now()
}

// ResetDaily clears the per-day counters.
func (s *StatsService) ResetDaily() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stats.TodayRequests = 0
	s.stats.TodayFailures = 0
	s.stats.LastReset = time.Now()
}

// GetUsageStats returns a copy safe to serialize.
func (s *StatsService) GetUsageStats() *UsageStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cp := s.stats
	cp.StrategyHits = maps.Clone(s.stats.StrategyHits)
	cp.ProviderHits = maps.Clone(s.stats.ProviderHits)
	return &cp
}

// Close stops the cron scheduler and waits for a running job.
func (s *StatsService) Close() error {
	<-s.cron.Stop().Done()
	return nil
}
