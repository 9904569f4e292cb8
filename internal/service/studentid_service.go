package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
)

type counterRepository interface {
	Next(ctx context.Context, key string) (int, error)
}

// coursePrefixRules maps course-family keywords to student id prefixes.
// Matching is by containment in the title or id, so admin-added variants
// like "course-a-evening" stay in their family. First match wins; anything
// unmatched falls through to the generic CN prefix.
var coursePrefixRules = []struct {
	titleKeyword string
	idKeyword    string
	prefix       string
}{
	{"COURSE A", "course-a", "CA"},
	{"COURSE B", "course-b", "CB"},
	{"COURSE C", "course-c", "CC"},
	{"COURSE D", "course-d", "CD"},
	{"BABY", "baby", "CBB"},
}

func coursePrefix(courseID, courseTitle string) string {
	titleUpper := strings.ToUpper(courseTitle)
	idLower := strings.ToLower(courseID)
	for _, rule := range coursePrefixRules {
		if strings.Contains(titleUpper, rule.titleKeyword) || strings.Contains(idLower, rule.idKeyword) {
			return rule.prefix
		}
	}
	return "CN"
}

// StudentIDService issues human-readable student ids of the form
// <prefix><buddhist-year><running-number>, e.g. CA68001. The running number
// restarts each Buddhist year per prefix.
type StudentIDService struct {
	counters counterRepository
	logger   *zap.Logger
	now      func() time.Time
	randInt  func(n int) int
}

// NewStudentIDService constructs StudentIDService.
func NewStudentIDService(counters counterRepository, logger *zap.Logger) *StudentIDService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentIDService{
		counters: counters,
		logger:   logger,
		now:      time.Now,
		randInt:  rand.Intn,
	}
}

// Generate issues the next student id for the course. When the counter store
// is unreachable the id falls back to a random four-digit suffix so that
// registration itself never fails on id generation.
func (s *StudentIDService) Generate(ctx context.Context, courseID, courseTitle string) (string, error) {
	prefix := coursePrefix(courseID, courseTitle)
	// Two-digit Buddhist calendar year: 2025 CE -> 2568 BE -> "68".
	year := (s.now().Year() + 543) % 100
	key := fmt.Sprintf("%s%02d", prefix, year)

	count, err := s.counters.Next(ctx, key)
	if err != nil {
		fallback := fmt.Sprintf("%s%02d%04d", prefix, year, s.randInt(10000))
		s.logger.Warn("student id counter unavailable, using random fallback",
			zap.String("key", key),
			zap.String("student_id", fallback),
			zap.Error(err))
		return fallback, nil
	}
	return fmt.Sprintf("%s%02d%03d", prefix, year, count), nil
}
