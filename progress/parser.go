// Package progress turns raw git clone output into normalized, monotonic and
// throttled progress events.
package progress

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/CybrosysAssista/Assista-IDE/models"
)

// DefaultThrottle is the minimum spacing between two events of the same phase.
const DefaultThrottle = 500 * time.Millisecond

// initPercent is the fixed percent reported for "Cloning into ..."
const initPercent = 5

// pattern maps one kind of git output line to a phase.
// percentGroup is the submatch holding the percent, 0 when the line carries none.
type pattern struct {
	phase        models.Phase
	expression   *regexp.Regexp
	percentGroup int
}

// patterns are tried in order, first match wins. the optional "remote: " prefix
// covers the server side phases (enumerate, count, compress).
var patterns = []pattern{
	{models.PhaseInit, regexp.MustCompile(`^Cloning into`), 0},
	{models.PhaseEnumerate, regexp.MustCompile(`^(?:remote:\s*)?Enumerating objects:\s*\d+`), 0},
	{models.PhaseCount, regexp.MustCompile(`^(?:remote:\s*)?Counting objects:\s*(\d{1,3})%`), 1},
	{models.PhaseCompress, regexp.MustCompile(`^(?:remote:\s*)?Compressing objects:\s*(\d{1,3})%`), 1},
	{models.PhaseReceive, regexp.MustCompile(`^Receiving objects:\s*(\d{1,3})%`), 1},
	{models.PhaseResolveDeltas, regexp.MustCompile(`^Resolving deltas:\s*(\d{1,3})%`), 1},
	{models.PhaseUpdatingFiles, regexp.MustCompile(`^Updating files:\s*(\d{1,3})%`), 1},
}

// Match classifies a single line without any state. ok is false for lines
// that are not progress lines.
func Match(line string) (phase models.Phase, percent int, ok bool) {
	line = strings.TrimSpace(line)
	for _, candidate := range patterns {
		submatches := candidate.expression.FindStringSubmatch(line)
		if submatches == nil {
			continue
		}
		switch {
		case candidate.phase == models.PhaseInit:
			return candidate.phase, initPercent, true
		case candidate.phase == models.PhaseEnumerate:
			// enumeration has no percent, only a running count and a final ", done."
			if strings.Contains(line, "done") {
				return candidate.phase, 100, true
			}
			return candidate.phase, 0, true
		default:
			value, errAtoi := strconv.Atoi(submatches[candidate.percentGroup])
			if errAtoi != nil {
				return 0, 0, false
			}
			return candidate.phase, min(value, 100), true
		}
	}
	return 0, 0, false
}

// Config configures a Parser.
type Config struct {
	// Throttle is the minimum spacing between events of one phase, DefaultThrottle when zero
	Throttle time.Duration

	// Now is the clock, time.Now when nil. tests swap it for a fake clock.
	Now func() time.Time
}

// Parser is the stateful side of the normalization for a single stage:
// a per-phase ratchet plus throttling with a trailing flush.
// a Parser is not safe for concurrent use, one goroutine feeds it.
type Parser struct {
	stage    models.StageName
	throttle time.Duration
	now      func() time.Time

	// highest percent seen per phase
	highest map[models.Phase]int
	// last emission time per phase
	lastEmitted map[models.Phase]time.Time

	currentPhase models.Phase
	started      bool

	// pending is the newest event suppressed by the throttle, nil when nothing is pending
	pending *models.ProgressEvent

	finished bool
}

// NewParser constructs a Parser for one stage.
func NewParser(stage models.StageName, config Config) *Parser {
	if config.Throttle <= 0 {
		config.Throttle = DefaultThrottle
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Parser{
		stage:       stage,
		throttle:    config.Throttle,
		now:         config.Now,
		highest:     map[models.Phase]int{},
		lastEmitted: map[models.Phase]time.Time{},
	}
}

// Feed consumes one output line. it returns the events to emit now (zero, one, or two
// when a pending event of the previous phase gets flushed) and whether the line was
// recognized at all. unrecognized lines are diagnostics for the caller.
func (parser *Parser) Feed(line string) (events []models.ProgressEvent, recognized bool) {
	if parser.finished {
		return nil, false
	}
	phase, percent, ok := Match(line)
	if !ok {
		return nil, false
	}

	previousHighest, seen := parser.highest[phase]
	if seen && percent <= previousHighest {
		// a repeat or a regression of this phase, nothing new to say
		return nil, true
	}
	parser.highest[phase] = percent

	timeNow := parser.now()
	event := models.ProgressEvent{
		Stage:   parser.stage,
		Phase:   phase,
		Percent: percent,
		RawLine: strings.TrimSpace(line),
		At:      timeNow,
	}

	// leaving a phase always flushes its suppressed last event first
	if parser.started && phase != parser.currentPhase && parser.pending != nil {
		events = append(events, *parser.pending)
		parser.pending = nil
	}
	parser.started = true
	parser.currentPhase = phase

	lastEmission, emittedBefore := parser.lastEmitted[phase]
	if !emittedBefore || percent == 100 || timeNow.Sub(lastEmission) >= parser.throttle {
		parser.lastEmitted[phase] = timeNow
		parser.pending = nil
		events = append(events, event)
		return events, true
	}

	parser.pending = &event
	return events, true
}

// Finish flushes a pending event and, when the process exited with code 0,
// emits the terminal Done event. later Feed and Finish calls return nothing.
func (parser *Parser) Finish(exitCode int) []models.ProgressEvent {
	if parser.finished {
		return nil
	}
	parser.finished = true

	var events []models.ProgressEvent
	if parser.pending != nil {
		events = append(events, *parser.pending)
		parser.pending = nil
	}
	if exitCode == 0 {
		events = append(events, models.ProgressEvent{
			Stage:   parser.stage,
			Phase:   models.PhaseDone,
			Percent: 100,
			At:      parser.now(),
		})
	}
	return events
}
