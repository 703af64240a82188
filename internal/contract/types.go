package contract

import "time"

const SchemaVersion = "v1"

type ErrorCode string

const (
	ErrGeneric           ErrorCode = "GENERIC_FAILURE"
	ErrInvalidUsage      ErrorCode = "INVALID_USAGE"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrInvalidSource     ErrorCode = "INVALID_SOURCE"
	ErrSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
)

type ErrorEnvelope struct {
	SchemaVersion string         `json:"schema_version"`
	Error         ErrorBody      `json:"error"`
	Meta          map[string]any `json:"meta,omitempty"`
}

type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
}

type SuccessEnvelope struct {
	SchemaVersion string         `json:"schema_version"`
	Command       string         `json:"command"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Data          any            `json:"data"`
	Meta          map[string]any `json:"meta"`
	Warnings      []string       `json:"warnings"`
}

// Event is one concrete calendar occurrence. Recurring series are resolved
// into individual Events before they reach the layout engine.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Color       string    `json:"color,omitempty"`
	ProjectID   string    `json:"project_id,omitempty"`
	TaskID      string    `json:"task_id,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// PositionedEvent is an Event placed on a day grid. Top and Height are in
// the caller's vertical unit; Left and Width are fractions of the day column.
type PositionedEvent struct {
	Event  Event     `json:"event"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Top    float64   `json:"top"`
	Height float64   `json:"height"`
	Left   float64   `json:"left"`
	Width  float64   `json:"width"`
	ZIndex int       `json:"z_index"`
	Column int       `json:"column"`
}

type DayLayout struct {
	Date    time.Time         `json:"date"`
	Timed   []PositionedEvent `json:"timed"`
	AllDay  []Event           `json:"all_day"`
	Columns int               `json:"columns"`
}

type DayColumn struct {
	Date    time.Time         `json:"date"`
	Index   int               `json:"index"`
	Timed   []PositionedEvent `json:"timed"`
	Columns int               `json:"columns"`
}

// BarDay describes one day cell covered by a SpanningBar.
type BarDay struct {
	Index     int       `json:"index"`
	Date      time.Time `json:"date"`
	ShowTitle bool      `json:"show_title"`
	IsStart   bool      `json:"is_start"`
	IsEnd     bool      `json:"is_end"`
}

type SpanningBar struct {
	Event           Event    `json:"event"`
	StartIndex      int      `json:"start_index"`
	EndIndex        int      `json:"end_index"`
	ContinuesBefore bool     `json:"continues_before"`
	ContinuesAfter  bool     `json:"continues_after"`
	Days            []BarDay `json:"days"`
}

type WeekLayout struct {
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
	Days   []DayColumn   `json:"days"`
	AllDay []SpanningBar `json:"all_day"`
}

type TimeIndicator struct {
	Position float64   `json:"position"`
	Visible  bool      `json:"visible"`
	DayIndex int       `json:"day_index"`
	Now      time.Time `json:"now"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
