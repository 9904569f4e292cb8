package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounterRepo struct {
	next int
	err  error
	keys []string
}

func (f *fakeCounterRepo) Next(_ context.Context, key string) (int, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return 0, f.err
	}
	f.next++
	return f.next, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStudentIDGenerate(t *testing.T) {
	counters := &fakeCounterRepo{}
	svc := NewStudentIDService(counters, nil)
	svc.now = fixedClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	id, err := svc.Generate(context.Background(), "course-a", "Course A")
	require.NoError(t, err)
	assert.Equal(t, "CA68001", id)

	id, err = svc.Generate(context.Background(), "course-a", "Course A")
	require.NoError(t, err)
	assert.Equal(t, "CA68002", id)

	assert.Equal(t, []string{"CA68", "CA68"}, counters.keys)
}

func TestStudentIDGeneratePrefixes(t *testing.T) {
	cases := []struct {
		courseID    string
		courseTitle string
		wantPrefix  string
	}{
		{"course-a", "Course A", "CA68"},
		{"course-b", "Course B", "CB68"},
		{"course-c", "Course C", "CC68"},
		{"course-d", "Course D", "CD68"},
		{"baby-course", "Baby Swimming", "CBB68"},
		{"mystery", "Mystery Clinic", "CN68"},
		// Keyword containment keeps admin-added variants in their family.
		{"course-a-evening", "Evening Laps", "CA68"},
		{"splash-101", "Course B Advanced", "CB68"},
		{"toddlers", "BABY & Me", "CBB68"},
	}
	for _, tc := range cases {
		counters := &fakeCounterRepo{}
		svc := NewStudentIDService(counters, nil)
		svc.now = fixedClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

		id, err := svc.Generate(context.Background(), tc.courseID, tc.courseTitle)
		require.NoError(t, err)
		assert.Equal(t, tc.wantPrefix+"001", id, "course %s (%s)", tc.courseID, tc.courseTitle)
	}
}

func TestStudentIDGenerateFallbackOnCounterFailure(t *testing.T) {
	counters := &fakeCounterRepo{err: fmt.Errorf("connection refused")}
	svc := NewStudentIDService(counters, nil)
	svc.now = fixedClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc.randInt = func(int) int { return 42 }

	id, err := svc.Generate(context.Background(), "course-a", "Course A")
	require.NoError(t, err)
	assert.Equal(t, "CA680042", id)
}
