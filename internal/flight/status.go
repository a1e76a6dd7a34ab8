package flight

import "time"

// Light is a status LED. machine.Pin satisfies it for active high LEDs.
type Light interface {
	Set(on bool)
}

// Pattern is how a status LED blinks.
type Pattern uint8

const (
	PatternOff Pattern = iota
	PatternOn
	PatternSlowFlash
	PatternFlash
	PatternFastFlash
	PatternAlternate
)

// halfPeriod is how long the LED stays in each level.
func (p Pattern) halfPeriod() time.Duration {
	switch p {
	case PatternSlowFlash:
		return 250 * time.Millisecond
	case PatternFlash:
		return 150 * time.Millisecond
	case PatternFastFlash:
		return 50 * time.Millisecond
	case PatternAlternate:
		return 500 * time.Millisecond
	}
	return 0
}

type blinker struct {
	light   Light
	pattern Pattern
	on      bool
	toggled time.Time
}

func (b *blinker) start(p Pattern, on bool, now time.Time) {
	b.pattern = p
	b.toggled = now
	switch p {
	case PatternOff:
		on = false
	case PatternOn:
		on = true
	}
	b.drive(on)
}

func (b *blinker) update(now time.Time) {
	half := b.pattern.halfPeriod()
	if half > 0 && now.Sub(b.toggled) >= half {
		b.toggled = now
		b.drive(!b.on)
	}
}

func (b *blinker) drive(on bool) {
	b.on = on
	if b.light != nil {
		b.light.Set(on)
	}
}

// Indicator shows the supervisor state on a red and a green LED:
//
//	init         red slow flash
//	waiting      red and green alternating
//	calibrating  red flash
//	flight       green on
//	failsafe     red fast flash
type Indicator struct {
	red, green blinker
	state      State
	started    bool
}

// NewIndicator drives red and green. Either may be nil.
func NewIndicator(red, green Light) *Indicator {
	return &Indicator{red: blinker{light: red}, green: blinker{light: green}}
}

// Update advances the blink patterns to now and switches them when state
// changes.
func (ind *Indicator) Update(now time.Time, state State) {
	if ind.started && state == ind.state {
		ind.red.update(now)
		ind.green.update(now)
		return
	}
	ind.started = true
	ind.state = state

	switch state {
	case StateInit:
		ind.red.start(PatternSlowFlash, true, now)
		ind.green.start(PatternOff, false, now)
	case StateWaiting:
		ind.red.start(PatternAlternate, true, now)
		ind.green.start(PatternAlternate, false, now)
	case StateCalibrating:
		ind.red.start(PatternFlash, true, now)
		ind.green.start(PatternOff, false, now)
	case StateFlight:
		ind.red.start(PatternOff, false, now)
		ind.green.start(PatternOn, true, now)
	default:
		ind.red.start(PatternFastFlash, true, now)
		ind.green.start(PatternOff, false, now)
	}
}

// Lit reports the current level of each LED.
func (ind *Indicator) Lit() (red, green bool) { return ind.red.on, ind.green.on }

// Patterns reports the pattern of each LED.
func (ind *Indicator) Patterns() (red, green Pattern) { return ind.red.pattern, ind.green.pattern }
