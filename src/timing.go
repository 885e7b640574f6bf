package vwire

import "fmt"

/*-------------------------------------------------------------
 *
 * Purpose:	Work out hardware timer settings for a bit rate.
 *
 *		The tick interrupt must fire SAMPLES_PER_BIT times per
 *		bit.  A hardware timer counts a prescaled clock up to a
 *		compare value, so for a given bit rate we need the
 *		smallest clock divisor whose tick count still fits the
 *		timer's counter width.
 *
 *--------------------------------------------------------------*/

/* Reference clock a stock 16 MHz part runs the timer from. */
const DEFAULT_CLOCK_HZ = 16000000

/* Counter limits for the common timer widths. */
const TIMER_MAX_TICKS_16BIT = 0xffff
const TIMER_MAX_TICKS_8BIT = 0xff

// Clock divisor per prescaler index.  Index 0 is the error return and the
// trailing value is a sentinel marking that no divisor fit.
var timer_prescalers = [7]uint32{0, 1, 8, 64, 256, 1024, 3333}

/*-------------------------------------------------------------
 *
 * Name:	timer_calc
 *
 * Purpose:	Pick a clock divisor and compare count for a bit rate.
 *
 * Inputs:	clock_hz	- Timer input clock frequency.
 *		speed		- Bit rate, bits per second.
 *		max_ticks	- Largest compare value the counter holds.
 *
 * Returns:	Prescaler index into timer_prescalers and the number of
 *		prescaled ticks per interrupt.  (0, 0) when the rate is
 *		zero or no divisor gives a usable tick count.
 *
 *--------------------------------------------------------------*/

func timer_calc(clock_hz uint32, speed uint16, max_ticks uint16) (uint8, uint16) {
	if speed == 0 {
		return 0, 0
	}

	var prescaler uint8
	var ulticks int64

	// Try increasing divisors until the tick count fits the counter.
	for prescaler = 1; prescaler < 7; prescaler++ {
		// Seconds per prescaled clock tick.
		var clock_time = 1.0 / (float64(clock_hz) / float64(timer_prescalers[prescaler]))
		// Seconds per interrupt, one eighth of a bit.
		var bit_time = (1.0 / float64(speed)) / float64(SAMPLES_PER_BIT)
		ulticks = int64(bit_time / clock_time)
		if ulticks > 1 && ulticks < int64(max_ticks) {
			break
		}
	}

	// Ran into the sentinel, ran off the table, or the count cannot
	// be timed at all.
	if prescaler >= 6 || ulticks < 2 || ulticks > int64(max_ticks) {
		return 0, 0
	}

	return prescaler, uint16(ulticks)
}

// TimerConfig is the hardware timer programming for a bit rate, for
// whatever component drives the tick: a compare value and the divisor
// feeding the counter.
type TimerConfig struct {
	Prescaler int    // Index into the platform's divisor table.
	Divisor   uint32 // Clock divisor that index selects.
	Ticks     uint16 // Compare-match count per tick interrupt.
}

/*-------------------------------------------------------------
 *
 * Name:	TimerSetup
 *
 * Purpose:	Validate a bit rate and return its timer programming.
 *
 * Inputs:	clockHz		- Timer input clock frequency.
 *		bitRate		- Bits per second.
 *		maxTicks	- Counter limit, TIMER_MAX_TICKS_16BIT or
 *				  TIMER_MAX_TICKS_8BIT for the usual widths.
 *
 * Returns:	TimerConfig, or ErrBitRate when no divisor works.
 *
 *--------------------------------------------------------------*/

func TimerSetup(clockHz uint32, bitRate uint16, maxTicks uint16) (TimerConfig, error) {
	var prescaler, nticks = timer_calc(clockHz, bitRate, maxTicks)
	if prescaler == 0 {
		return TimerConfig{}, fmt.Errorf("%d bps from %d Hz clock: %w", bitRate, clockHz, ErrBitRate)
	}
	return TimerConfig{
		Prescaler: int(prescaler),
		Divisor:   timer_prescalers[prescaler],
		Ticks:     nticks,
	}, nil
}
