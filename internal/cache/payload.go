package cache

import "time"

// Payload wraps a fetched result with the moment it was fetched.
type Payload[T any] struct {
	Data      T     `json:"data"`
	FetchedAt int64 `json:"fetchedAt,omitempty"`
}

// NewPayload stamps data with now in epoch milliseconds.
func NewPayload[T any](data T, now time.Time) Payload[T] {
	return Payload[T]{Data: data, FetchedAt: now.UnixMilli()}
}

// FetchedTime returns FetchedAt as a time, or the zero time when unset.
func (p Payload[T]) FetchedTime() time.Time {
	if p.FetchedAt <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.FetchedAt)
}

type Dream struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
	TargetDate  string  `json:"targetDate,omitempty"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Progress    float64 `json:"progress"`
	Archived    bool    `json:"archived,omitempty"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

type Milestone struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	DueDate   string `json:"dueDate,omitempty"`
	Completed bool   `json:"completed"`
}

type Action struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Frequency        string `json:"frequency"`
	EstimatedMinutes int    `json:"estimatedMinutes,omitempty"`
}

// DreamDetail is the per-dream record stored under DreamDetailKey.
type DreamDetail struct {
	Dream      Dream       `json:"dream"`
	Milestones []Milestone `json:"milestones"`
	Actions    []Action    `json:"actions"`
}

// Occurrence is one scheduled action instance for today.
type Occurrence struct {
	ID          string `json:"id"`
	ActionID    string `json:"actionId"`
	DreamID     string `json:"dreamId"`
	Title       string `json:"title"`
	DueOn       string `json:"dueOn"`
	Completed   bool   `json:"completed"`
	CompletedAt string `json:"completedAt,omitempty"`
}

type Progress struct {
	CompletedToday   int   `json:"completedToday"`
	PlannedToday     int   `json:"plannedToday"`
	CurrentStreak    int   `json:"currentStreak"`
	LongestStreak    int   `json:"longestStreak"`
	TotalCompleted   int   `json:"totalCompleted"`
	WeeklyCompletion []int `json:"weeklyCompletion,omitempty"`
}

type (
	DreamsPayload      = Payload[[]Dream]
	TodayPayload       = Payload[[]Occurrence]
	ProgressPayload    = Payload[Progress]
	DreamDetailPayload = Payload[DreamDetail]
)
