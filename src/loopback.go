package vwire

import "sync/atomic"

/*-------------------------------------------------------------
 *
 * Purpose:	In-memory wire standing in for the RF path.
 *
 *		One modem's transmit pin writes the level, another
 *		modem's receive pin samples it.  This is what the
 *		self-test command runs over, and most of the package
 *		tests.
 *
 *		Corrupt, when set, is applied to every sample on the
 *		way out of Read.  Point it at a coin-flipper to get a
 *		noisy channel.  Set it before ticking starts; the hook
 *		itself is not synchronized.
 *
 *--------------------------------------------------------------*/

type Wire struct {
	level   atomic.Bool
	Corrupt func(level bool) bool
}

func NewWire() *Wire {
	return &Wire{}
}

// Write drives the line level.  The transmitting modem's side.
func (w *Wire) Write(high bool) {
	w.level.Store(high)
}

// Read samples the line level, through the Corrupt hook if one
// is installed.  The receiving modem's side.
func (w *Wire) Read() bool {
	level := w.level.Load()
	if w.Corrupt != nil {
		level = w.Corrupt(level)
	}
	return level
}
