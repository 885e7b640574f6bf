// Package vwire is a software ASK/OOK modem for short messages over
// inexpensive 315/433 MHz radio modules, without addressing, retransmission
// or acknowledgement, a bit like UDP over wireless.  The wire format is
// compatible with the classic VirtualWire protocol: a training preamble,
// a 4-to-6 bit balanced symbol code and a trailing CRC-16 frame check.
//
// All that is required of the hardware is a transmit data pin, a receive
// data pin and (for transmitters, optionally) a PTT transmit enable.
package vwire

import "errors"

/*
 * Protocol limits.  A frame on the air is
 *
 *	preamble (8 symbols) | count | payload | FCS low | FCS high
 *
 * where count covers itself, the payload and both FCS bytes, so the
 * longest payload is three bytes shorter than the longest frame.
 */

const MESSAGE_MAX = 30              /* Frame bytes: count + payload + 2 FCS. */
const PAYLOAD_MAX = MESSAGE_MAX - 3 /* Longest payload a frame can carry. */
const HEADER_MAX = 8                /* Preamble length in symbols. */

/* Transmit buffer, in 6-bit symbols: preamble plus two symbols per frame byte. */
const TX_BUFFER_MAX = (MESSAGE_MAX * 2) + HEADER_MAX

/* The receiver oversamples the line this many times per bit. */
const SAMPLES_PER_BIT = 8

/*
 * Phase ramp constants for the receiver's bit clock.  The ramp advances
 * once per sample and wraps once per bit; transitions on the line pull
 * the wrap point into phase with the transmitter.
 */
const RAMP_MAX = 160
const RAMP_INC = RAMP_MAX / SAMPLES_PER_BIT
const RAMP_TRANSITION = RAMP_MAX / 2
const RAMP_ADJUST = 9
const RAMP_INC_RETARD = RAMP_INC - RAMP_ADJUST
const RAMP_INC_ADVANCE = RAMP_INC + RAMP_ADJUST

/* At least this many of the 8 samples in a bit must be high for a 1. */
const INTEGRATOR_THRESHOLD = 5

/*
 * The last two preamble symbols (0x38, 0x2c) as they appear in the
 * receiver's 12-bit shift window.  Matching this is what arms the
 * receiver for an incoming frame.
 */
const START_SYMBOL = 0xb38

/*
 * Running the CRC over a complete good frame, including the
 * ones-complemented FCS, always leaves this residue.
 */
const FCS_RESIDUE = 0xf0b8

var ErrPayloadTooLarge = errors.New("payload longer than PAYLOAD_MAX")
var ErrEmptyPayload = errors.New("empty payload")
var ErrBitRate = errors.New("no usable timer configuration for bit rate")
var ErrNoRadio = errors.New("modem requires a transmitter or a receiver")
