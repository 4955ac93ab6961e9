package schedule

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cam-station/pkg/events"
	"cam-station/pkg/models"
	"cam-station/pkg/record"
)

// dayTags maps time.Weekday to the persisted 3-letter lowercase tags.
var dayTags = [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

var allDays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// recorderControl is the slice of the recording session the engine drives.
type recorderControl interface {
	StartRecording(url string, opts record.Options) (record.StartResult, error)
	StopRecording() (string, error)
}

// Spec is the partial-update input for schedule CRUD. Nil fields are left
// at their defaults on add and retained on update.
type Spec struct {
	Name            *string   `json:"name"`
	CameraURL       *string   `json:"cameraUrl"`
	StartTime       *string   `json:"startTime"`
	DurationMinutes *int      `json:"durationMinutes"`
	Days            *[]string `json:"days"`
	Enabled         *bool     `json:"enabled"`
}

// Engine owns the persisted list of recurring recording rules and the
// timers that drive them. All CRUD goes through its methods; arm/disarm
// and persistence happen synchronously within the mutating call.
type Engine struct {
	path  string
	rec   recorderControl
	bus   *events.Broadcaster
	clock Clock

	mu          sync.Mutex
	schedules   []models.Schedule
	timers      map[string]*time.Timer // pending fire, keyed by schedule id
	completions map[string]*time.Timer // pending stop, keyed by schedule id
}

// NewEngine loads the persisted schedule list and arms a timer for every
// enabled rule.
func NewEngine(path string, rec recorderControl, bus *events.Broadcaster, clock Clock) (*Engine, error) {
	e := &Engine{
		path:        path,
		rec:         rec,
		bus:         bus,
		clock:       clock,
		timers:      make(map[string]*time.Timer),
		completions: make(map[string]*time.Timer),
	}
	if err := e.load(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	for _, s := range e.schedules {
		if s.Enabled {
			e.armLocked(s)
		}
	}
	e.mu.Unlock()

	log.Printf("Schedule engine loaded %d schedule(s) from %s", len(e.schedules), path)
	return e, nil
}

// AddSchedule creates a new rule, applies defaults, persists, and arms a
// timer when enabled.
func (e *Engine) AddSchedule(spec Spec) (models.Schedule, error) {
	if spec.CameraURL == nil || strings.TrimSpace(*spec.CameraURL) == "" {
		return models.Schedule{}, fmt.Errorf("%w: cameraUrl is required", models.ErrInvalidArgument)
	}
	if spec.StartTime == nil {
		return models.Schedule{}, fmt.Errorf("%w: startTime is required", models.ErrInvalidArgument)
	}
	if _, _, err := parseHHMM(*spec.StartTime); err != nil {
		return models.Schedule{}, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}

	s := models.Schedule{
		ID:              uuid.NewString(),
		Name:            "Schedule",
		CameraURL:       *spec.CameraURL,
		StartTime:       *spec.StartTime,
		DurationMinutes: 60,
		Days:            append([]string(nil), allDays...),
		Enabled:         true,
		CreatedAt:       e.clock.Now(),
	}
	if spec.Name != nil && *spec.Name != "" {
		s.Name = *spec.Name
	}
	if spec.DurationMinutes != nil {
		if *spec.DurationMinutes <= 0 {
			return models.Schedule{}, fmt.Errorf("%w: durationMinutes must be positive", models.ErrInvalidArgument)
		}
		s.DurationMinutes = *spec.DurationMinutes
	}
	if spec.Days != nil {
		s.Days = normalizeDays(*spec.Days)
	}
	if spec.Enabled != nil {
		s.Enabled = *spec.Enabled
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.schedules = append(e.schedules, s)
	if err := e.saveLocked(); err != nil {
		e.schedules = e.schedules[:len(e.schedules)-1]
		return models.Schedule{}, err
	}
	if s.Enabled {
		e.armLocked(s)
	}
	log.Printf("Schedule added: %s (%s at %s)", s.Name, s.ID, s.StartTime)
	return s, nil
}

// UpdateSchedule merges the provided fields into an existing rule,
// persists, and re-arms only when the result is enabled.
func (e *Engine) UpdateSchedule(id string, spec Spec) (models.Schedule, error) {
	if spec.StartTime != nil {
		if _, _, err := parseHHMM(*spec.StartTime); err != nil {
			return models.Schedule{}, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
		}
	}
	if spec.DurationMinutes != nil && *spec.DurationMinutes <= 0 {
		return models.Schedule{}, fmt.Errorf("%w: durationMinutes must be positive", models.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return models.Schedule{}, fmt.Errorf("%w: schedule %s", models.ErrNotFound, id)
	}

	s := e.schedules[idx]
	if spec.Name != nil {
		s.Name = *spec.Name
	}
	if spec.CameraURL != nil {
		s.CameraURL = *spec.CameraURL
	}
	if spec.StartTime != nil {
		s.StartTime = *spec.StartTime
	}
	if spec.DurationMinutes != nil {
		s.DurationMinutes = *spec.DurationMinutes
	}
	if spec.Days != nil {
		s.Days = normalizeDays(*spec.Days)
	}
	if spec.Enabled != nil {
		s.Enabled = *spec.Enabled
	}

	prev := e.schedules[idx]
	e.schedules[idx] = s
	if err := e.saveLocked(); err != nil {
		e.schedules[idx] = prev
		return models.Schedule{}, err
	}

	e.disarmLocked(id)
	if s.Enabled {
		e.armLocked(s)
	}
	return s, nil
}

// DeleteSchedule disarms and removes a rule.
func (e *Engine) DeleteSchedule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: schedule %s", models.ErrNotFound, id)
	}

	e.disarmLocked(id)
	removed := e.schedules[idx]
	e.schedules = append(e.schedules[:idx], e.schedules[idx+1:]...)
	if err := e.saveLocked(); err != nil {
		return err
	}
	log.Printf("Schedule deleted: %s (%s)", removed.Name, id)
	return nil
}

// ListSchedules returns a copy of the current rules.
func (e *Engine) ListSchedules() []models.Schedule {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Schedule, len(e.schedules))
	copy(out, e.schedules)
	return out
}

// ArmedTimerCount reports how many timers are outstanding, fire and
// completion timers included.
func (e *Engine) ArmedTimerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers) + len(e.completions)
}

// Destroy disarms every outstanding timer so that nothing fires against a
// torn-down recorder. Required for clean shutdown and test teardown.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	for id, t := range e.completions {
		t.Stop()
		delete(e.completions, id)
	}
}

// nextOccurrence walks day offsets 0..6 from the given instant and returns
// the first candidate at the schedule's time of day that is strictly in
// the future and lands on an allowed weekday. An empty day set allows
// every day. The window deliberately does not wrap to day 7: a schedule
// whose only eligible day is today with the time already passed yields
// no occurrence, and the caller must not re-arm.
func (e *Engine) nextOccurrence(s models.Schedule, from time.Time) (time.Time, bool) {
	hour, minute, err := parseHHMM(s.StartTime)
	if err != nil {
		return time.Time{}, false
	}

	for offset := 0; offset <= 6; offset++ {
		day := from.AddDate(0, 0, offset)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, from.Location())
		if !candidate.After(from) {
			continue
		}
		if len(s.Days) > 0 && !containsDay(s.Days, dayTags[candidate.Weekday()]) {
			continue
		}
		return candidate, true
	}
	return time.Time{}, false
}

// armLocked schedules the next firing of the rule. No-op when no
// occurrence falls inside the lookahead window.
func (e *Engine) armLocked(s models.Schedule) {
	next, ok := e.nextOccurrence(s, e.clock.Now())
	if !ok {
		log.Printf("Schedule %s has no upcoming occurrence, not arming", s.ID)
		return
	}

	id := s.ID
	delay := next.Sub(e.clock.Now())
	e.timers[id] = time.AfterFunc(delay, func() { e.executeSchedule(id) })
	log.Printf("Schedule %s armed for %s", id, next.Format(time.RFC3339))
}

func (e *Engine) disarmLocked(id string) {
	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
	if t, ok := e.completions[id]; ok {
		t.Stop()
		delete(e.completions, id)
	}
}

// executeSchedule runs one firing: start the recording, arm the stop
// timer, and always re-arm the next occurrence afterwards. A failed
// attempt never permanently disables a schedule.
func (e *Engine) executeSchedule(id string) {
	e.mu.Lock()
	delete(e.timers, id)
	idx := e.indexLocked(id)
	if idx < 0 || !e.schedules[idx].Enabled {
		e.mu.Unlock()
		return
	}
	s := e.schedules[idx]
	e.mu.Unlock()

	e.bus.Publish(models.Event{Type: models.EventScheduleStarting, Payload: models.ScheduleEvent{
		ScheduleID: s.ID,
		Name:       s.Name,
	}})
	log.Printf("Schedule %s firing: recording %s for %d minute(s)", s.Name, s.CameraURL, s.DurationMinutes)

	res, err := e.rec.StartRecording(s.CameraURL, record.Options{})
	if err != nil {
		// Surface the failure as an event and still re-arm; nobody is
		// synchronously waiting on a timer-driven execution.
		e.bus.Publish(models.Event{Type: models.EventScheduleError, Payload: models.ScheduleEvent{
			ScheduleID: s.ID,
			Name:       s.Name,
			Error:      err.Error(),
		}})
		log.Printf("Schedule %s failed to start recording: %v", s.Name, err)

		e.mu.Lock()
		e.rearmLocked(id)
		e.mu.Unlock()
		return
	}

	duration := time.Duration(s.DurationMinutes) * time.Minute
	e.mu.Lock()
	e.completions[id] = time.AfterFunc(duration, func() { e.completeSchedule(id, res.File) })
	e.mu.Unlock()
}

// completeSchedule stops the recording at the end of the window, emits the
// completion event, and re-arms the following occurrence.
func (e *Engine) completeSchedule(id, startedFile string) {
	e.mu.Lock()
	delete(e.completions, id)
	e.mu.Unlock()

	file, err := e.rec.StopRecording()
	if err != nil {
		log.Printf("Schedule %s failed to stop recording: %v", id, err)
	}
	if file == "" {
		file = startedFile
	}

	e.mu.Lock()
	idx := e.indexLocked(id)
	var s models.Schedule
	if idx >= 0 {
		s = e.schedules[idx]
	}
	e.rearmLocked(id)
	e.mu.Unlock()

	e.bus.Publish(models.Event{Type: models.EventScheduleComplete, Payload: models.ScheduleEvent{
		ScheduleID: id,
		Name:       s.Name,
		File:       file,
	}})
	log.Printf("Schedule %s complete, saved %s", id, file)
}

// rearmLocked re-arms a schedule that still exists and is enabled.
func (e *Engine) rearmLocked(id string) {
	idx := e.indexLocked(id)
	if idx < 0 || !e.schedules[idx].Enabled {
		return
	}
	if _, armed := e.timers[id]; armed {
		return
	}
	e.armLocked(e.schedules[idx])
}

func (e *Engine) indexLocked(id string) int {
	for i, s := range e.schedules {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// load reads the persisted list. A missing file is an empty list.
func (e *Engine) load() error {
	data, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			e.schedules = []models.Schedule{}
			return nil
		}
		return fmt.Errorf("failed to read schedules file: %w", err)
	}
	if err := json.Unmarshal(data, &e.schedules); err != nil {
		return fmt.Errorf("failed to parse schedules file: %w", err)
	}
	return nil
}

// saveLocked rewrites the whole list. Every mutation persists before the
// mutating call returns.
func (e *Engine) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0755); err != nil {
		return fmt.Errorf("failed to create schedules directory: %w", err)
	}
	data, err := json.MarshalIndent(e.schedules, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schedules: %w", err)
	}
	if err := os.WriteFile(e.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write schedules file: %w", err)
	}
	return nil
}

func parseHHMM(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

func normalizeDays(days []string) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, strings.ToLower(strings.TrimSpace(d)))
	}
	return out
}

func containsDay(days []string, tag string) bool {
	for _, d := range days {
		if d == tag {
			return true
		}
	}
	return false
}
