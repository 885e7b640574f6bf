package vwire

import (
	"sync"
	"time"
)

/*-------------------------------------------------------------
 *
 * Purpose:	Recover frames from the sampled receive pin.
 *
 *		The modem samples the pin 8 times per bit period and
 *		hands every sample to the pll.  A ramp counter nudged
 *		at each level transition keeps the bit clock centred on
 *		the transmitter's, and an integrate-and-dump over the 8
 *		samples decides each bit by majority.
 *
 *		Recovered bits shift into a 12 bit window.  Idle, the
 *		pll hunts that window for the start pattern; locked, it
 *		peels off a byte per 12 bits until the advertised count
 *		is in.
 *
 *		Foreground methods take the receiver lock.  sample_pin
 *		and pll are called by the modem with the lock held.
 *
 *--------------------------------------------------------------*/

type Receiver struct {
	mu          sync.Mutex
	pin         InputPin
	sample      bool
	last_sample bool
	pll_ramp    int
	integrator  int
	active      bool
	bits        uint16
	bit_count   int
	buffer      [MESSAGE_MAX]byte
	count       int
	length      int
	enabled     bool
	done        bool
	good        uint16
	bad         uint16
}

// NewReceiver wires a receiver to its data pin.  Nothing happens
// until Begin enables it and the modem starts ticking.
func NewReceiver(pin InputPin) *Receiver {
	return &Receiver{pin: pin}
}

// Begin starts the receiver hunting for a start pattern.
func (r *Receiver) Begin() {
	r.mu.Lock()
	if !r.enabled {
		r.enabled = true
		r.active = false
	}
	r.mu.Unlock()
}

// End stops the receiver.  A frame already decoded stays readable.
func (r *Receiver) End() {
	r.mu.Lock()
	r.enabled = false
	r.mu.Unlock()
}

// HaveMessage reports whether a complete frame is waiting.  It
// says nothing about the checksum; Recv does that.
func (r *Receiver) HaveMessage() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Await blocks until a complete frame is waiting, or the timeout
// passes.  A zero timeout means wait forever.
func (r *Receiver) Await(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.HaveMessage() {
			return true
		}
		if timeout != 0 && !time.Now().Before(deadline) {
			return false
		}
		SLEEP_MS(1)
	}
}

/*-------------------------------------------------------------
 *
 * Name:	Recv
 *
 * Purpose:	Collect a waiting frame's payload.
 *
 * Inputs:	buf - where to put the payload.  A short buffer
 *		      truncates rather than fails.
 *
 * Returns:	Payload bytes copied, and whether the frame survived
 *		the checksum.  (0, false) when no frame is waiting.
 *
 * Description:	The count byte and the two FCS bytes are stripped;
 *		the caller sees only the payload.  The frame is
 *		consumed either way, good or bad, so a false result
 *		with data means a damaged frame, not a retryable read.
 *
 *--------------------------------------------------------------*/

func (r *Receiver) Recv(buf []byte) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.done {
		return 0, false
	}

	// Strip the count byte and FCS from the advertised length.
	rxlen := r.length - 3
	n := len(buf)
	if n > rxlen {
		n = rxlen
	}
	copy(buf[:n], r.buffer[1:1+n])

	// OK, got that message thanks.
	r.done = false

	// The CCITT CRC over a whole frame, FCS included, leaves a
	// fixed residue when nothing got damaged.
	return n, frame_check(r.buffer[:r.length])
}

// Stats returns how many frames arrived with a plausible count
// byte (good) and how many were dropped for an implausible one
// (bad).  Good frames may still fail the checksum in Recv.
func (r *Receiver) Stats() (good uint16, bad uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.good, r.bad
}

// sample_pin latches the current line level for this tick.
// Caller holds mu.
func (r *Receiver) sample_pin() {
	r.sample = r.pin.Read()
}

// pll advances the receiver by one sample.  Caller holds mu.
func (r *Receiver) pll() {
	// Integrate each sample.
	if r.sample {
		r.integrator++
	}

	if r.sample != r.last_sample {
		// Transition.  Retard the ramp when it comes early in
		// the cycle, advance when late, pulling our bit clock
		// onto the transmitter's.
		if r.pll_ramp < RAMP_TRANSITION {
			r.pll_ramp += RAMP_INC_RETARD
		} else {
			r.pll_ramp += RAMP_INC_ADVANCE
		}
		r.last_sample = r.sample
	} else {
		// No transition, advance by the standard increment.
		r.pll_ramp += RAMP_INC
	}

	if r.pll_ramp >= RAMP_MAX {
		// End of a bit cycle.  Shift the new bit into the top
		// of the 12 bit window, LSB arriving first.
		r.bits >>= 1

		// Majority vote over the 8 samples of this cycle.
		if r.integrator >= INTEGRATOR_THRESHOLD {
			r.bits |= 0x800
		}

		r.pll_ramp -= RAMP_MAX
		r.integrator = 0

		if r.active {
			// Collecting message bits, 6 per symbol.  Every 12
			// bits is a symbol pair, and the 6 low bits of the
			// window arrived first so they are the high nybble.
			r.bit_count++
			if r.bit_count >= 12 {
				data := symbol_6to4(byte(r.bits&0x3f))<<4 | symbol_6to4(byte(r.bits>>6))

				if r.length == 0 {
					// First byte is the total count, itself and
					// the FCS included.  Anything below 4 or
					// beyond the buffer is noise that happened
					// to look like a start pattern.
					r.count = int(data)
					if r.count < 4 || r.count > MESSAGE_MAX {
						r.active = false
						r.bad++
						return
					}
				}
				r.buffer[r.length] = data
				r.length++
				if r.length >= r.count {
					// Got all the bytes now.
					r.active = false
					r.good++
					// Better come get it before the next one.
					r.done = true
				}
				r.bit_count = 0
			}
		} else if r.bits == START_SYMBOL {
			// Start collecting.  A frame still sitting unread
			// is gone.
			r.active = true
			r.bit_count = 0
			r.length = 0
			r.done = false
		}
	}
}
