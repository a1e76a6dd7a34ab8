package sim

// LED is a status light. It satisfies flight.Light.
type LED struct {
	on      bool
	changes int
}

func (l *LED) Set(on bool) {
	if on != l.on {
		l.changes++
	}
	l.on = on
}

func (l *LED) On() bool     { return l.on }
func (l *LED) Changes() int { return l.changes }
