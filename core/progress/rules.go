package progress

import (
	"math"
	"sort"
	"time"

	"github.com/gigglesedu/giggles/core/catalog"
)

const (
	intermediateThreshold = 70.0
	advancedThreshold     = 90.0
)

// ScoreAttempt derives the percentage of a score and whether it passes the assessment.
func ScoreAttempt(score int, assessment catalog.Assessment) (percentage float64, passed bool) {
	if assessment.TotalQuestions > 0 {
		percentage = float64(score) / float64(assessment.TotalQuestions) * 100
	}
	return percentage, percentage >= assessment.PassingScore
}

// CompletionPercentage is the share of maxScore reached by score, capped at 100.
func CompletionPercentage(score, maxScore int) float64 {
	if maxScore <= 0 {
		return 0
	}
	return math.Min(100, float64(score)/float64(maxScore)*100)
}

// LevelFor tiers an average score.
func LevelFor(avg float64) int {
	switch {
	case avg >= advancedThreshold:
		return LevelAdvanced
	case avg >= intermediateThreshold:
		return LevelIntermediate
	default:
		return LevelBeginner
	}
}

// Summarize recomputes every derived field of prev from the lesson and attempt aggregates.
// The status only moves once attempts exist, otherwise prev's status is kept.
// started_at and completed_at are only ever set once.
func Summarize(prev CourseProgress, ls LessonStats, as AttemptStats, now time.Time) CourseProgress {
	cp := prev
	cp.TotalLessonsCompleted = ls.Completed
	cp.TotalScore = ls.TotalScore
	cp.AverageScore = 0
	if ls.Completed > 0 {
		cp.AverageScore = float64(ls.TotalScore) / float64(ls.Completed)
	}
	cp.Level = LevelFor(cp.AverageScore)
	cp.BestAssessmentScore = 0
	if as.Count > 0 {
		cp.BestAssessmentScore = as.BestPercentage
	}
	cp.AttemptsCount = as.Count
	cp.LastLessonDate = ls.LastCompletedAt

	switch {
	case as.Passed > 0:
		cp.Status = StatusCompleted
	case as.Count > 0:
		cp.Status = StatusInProgress
	case cp.Status == "":
		cp.Status = StatusNotStarted
	}

	if cp.StartedAt == nil {
		cp.StartedAt = as.FirstAt
	}
	if cp.Status == StatusCompleted && cp.CompletedAt == nil {
		t := now
		cp.CompletedAt = &t
	}
	cp.UpdatedAt = now
	return cp
}

// Streak counts the consecutive days of activity ending today, or yesterday if today has none yet.
func Streak(activity []time.Time, today time.Time) int {
	if len(activity) == 0 {
		return 0
	}
	day := func(t time.Time) time.Time {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	days := make(map[time.Time]bool, len(activity))
	for _, t := range activity {
		days[day(t)] = true
	}

	cursor := day(today)
	if !days[cursor] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	var streak int
	for days[cursor] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// BestAttempt is the most recent passed attempt, else the most recent one.
// attempts must be sorted newest first.
func BestAttempt(attempts []AttemptDetail) *AttemptDetail {
	if len(attempts) == 0 {
		return nil
	}
	for i := range attempts {
		if attempts[i].Passed {
			return &attempts[i]
		}
	}
	return &attempts[0]
}

// ComputeStats derives the headline numbers of a student.
func ComputeStats(courses []CourseProgressDetail, lessons []LessonProgressDetail, attempts []AttemptDetail, activity []time.Time, today time.Time) Stats {
	var st Stats
	st.TotalCourses = len(courses)
	for _, cp := range courses {
		if cp.Status == StatusCompleted || cp.Status == StatusMastered {
			st.CompletedCourses++
		}
	}

	st.TotalLessons = len(lessons)
	for _, lp := range lessons {
		switch lp.Status {
		case StatusCompleted:
			st.CompletedLessons++
		case StatusInProgress:
			st.InProgressLessons++
		}
	}
	if st.TotalLessons > 0 {
		st.CompletionRate = float64(st.CompletedLessons) / float64(st.TotalLessons) * 100
	}

	st.AssessmentsTaken = len(attempts)
	var total float64
	for _, a := range attempts {
		if a.Passed {
			st.AssessmentsPassed++
		}
		total += a.Percentage
		if a.Percentage > st.BestScore {
			st.BestScore = a.Percentage
		}
	}
	if st.AssessmentsTaken > 0 {
		st.AverageScore = total / float64(st.AssessmentsTaken)
	}

	st.CurrentStreak = Streak(activity, today)
	return st
}

// sortAttempts orders attempts newest first.
func sortAttempts(attempts []AttemptDetail) {
	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].CompletedAt.After(attempts[j].CompletedAt)
	})
}
