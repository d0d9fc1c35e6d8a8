package settlement

import "time"

// LiveWindow é quanto tempo depois do início a partida ainda conta como ao vivo
const LiveWindow = 3 * time.Hour

// Classify calcula o status exibido a partir do horário da partida.
// settled é terminal; o resto depende só de start - now.
func Classify(start time.Time, current Status, now time.Time) Status {
	if current == StatusSettled {
		return StatusSettled
	}
	delta := start.Sub(now)
	switch {
	case delta > 0:
		return StatusUpcoming
	case -delta < LiveWindow:
		return StatusLive
	default:
		return StatusFinished
	}
}
