package vwire

import "sync"

/*-------------------------------------------------------------
 *
 * Purpose:	Bit-bang a framed message out the transmit pin.
 *
 *		Send builds the whole frame up front as 6-bit symbols:
 *		preamble, encoded count, encoded payload, encoded FCS.
 *		The tick handler then shifts it out LSB first, one bit
 *		every SAMPLES_PER_BIT ticks, and drops the line and the
 *		PTT when the last symbol is gone.
 *
 *		Foreground methods take the transmitter lock.  tick is
 *		called by the modem with the lock already held.
 *
 *--------------------------------------------------------------*/

// Preamble: six 0x2a bit-sync symbols then the 0x38, 0x2c start
// pair.  The receiver hunts for the last 12 bits of this.
var tx_header = [HEADER_MAX]byte{0x2a, 0x2a, 0x2a, 0x2a, 0x2a, 0x2a, 0x38, 0x2c}

type Transmitter struct {
	mu        sync.Mutex
	pin       OutputPin
	ptt       *PTT
	buffer    [TX_BUFFER_MAX]byte
	length    int
	index     int
	bit       int
	sample    int
	enabled   bool
	msg_count uint16
}

// NewTransmitter wires a transmitter to its data pin.  The pin is
// only ever touched from the tick context once Send has armed a
// frame.
func NewTransmitter(pin OutputPin) *Transmitter {
	return &Transmitter{pin: pin}
}

// UsePTT attaches a press-to-talk control.  It is keyed just
// before the first preamble bit and released after the last
// symbol has drained.  Call before the modem starts ticking.
func (t *Transmitter) UsePTT(p *PTT) {
	t.mu.Lock()
	t.ptt = p
	t.mu.Unlock()
}

/*-------------------------------------------------------------
 *
 * Name:	Send
 *
 * Purpose:	Frame a payload and start the tick handler sending it.
 *
 * Inputs:	msg - application payload, 1 to PAYLOAD_MAX bytes.
 *
 * Returns:	nil once the frame is armed.  The frame has NOT gone
 *		out yet; use Await or Busy to find out when it has.
 *
 * Description: Blocks while a previous frame is still draining.
 *
 *		The count byte covers itself, the payload and the two
 *		FCS bytes, so it is len(msg)+3.  Each byte becomes two
 *		symbols, high nybble first.  The FCS is the ones
 *		complement of the CCITT CRC over count and payload,
 *		sent low byte first.
 *
 *--------------------------------------------------------------*/

func (t *Transmitter) Send(msg []byte) error {
	if len(msg) == 0 {
		// count would be 3, below the receiver's floor of 4,
		// so nothing on the far end could ever accept it.
		return ErrEmptyPayload
	}
	if len(msg) > PAYLOAD_MAX {
		return ErrPayloadTooLarge
	}

	count := byte(len(msg) + 3)

	// Wait for any frame in flight to drain.
	t.mu.Lock()
	for t.enabled {
		t.mu.Unlock()
		SLEEP_MS(1)
		t.mu.Lock()
	}

	copy(t.buffer[:HEADER_MAX], tx_header[:])
	p := t.buffer[HEADER_MAX:]
	ix := 0
	crc := uint16(0xffff)

	// Encode the message length.
	crc = crc_ccitt_update(crc, count)
	p[ix] = symbol_4to6[count>>4]
	p[ix+1] = symbol_4to6[count&0xf]
	ix += 2

	// Encode the payload, two symbols per byte.
	for _, b := range msg {
		crc = crc_ccitt_update(crc, b)
		p[ix] = symbol_4to6[b>>4]
		p[ix+1] = symbol_4to6[b&0xf]
		ix += 2
	}

	// The FCS on the wire is the ones complement of the CRC,
	// low byte before high byte.
	crc = ^crc
	p[ix] = symbol_4to6[(crc>>4)&0xf]
	p[ix+1] = symbol_4to6[crc&0xf]
	p[ix+2] = symbol_4to6[(crc>>12)&0xf]
	p[ix+3] = symbol_4to6[(crc>>8)&0xf]
	ix += 4

	t.length = ix + HEADER_MAX

	// Key the radio, then let the tick handler at the buffer.
	t.ptt.Set(true)
	t.index = 0
	t.bit = 0
	t.sample = 0
	t.enabled = true
	t.mu.Unlock()
	return nil
}

// Await blocks until the frame in flight, if any, has fully
// drained out the pin.
func (t *Transmitter) Await() {
	for t.Busy() {
		SLEEP_MS(1)
	}
}

// Busy reports whether a frame is still being clocked out.
func (t *Transmitter) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// MessagesSent returns the count of frames fully sent since the
// transmitter was created.
func (t *Transmitter) MessagesSent() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.msg_count
}

// tick emits the next bit every SAMPLES_PER_BIT calls.  Symbols
// go out LSB first.  Caller holds mu.
func (t *Transmitter) tick() {
	if t.enabled {
		if t.sample == 0 {
			// One whole bit period passes between the last
			// data bit and the line going idle.
			if t.index >= t.length {
				t.end()
				t.msg_count++
			} else {
				t.pin.Write(t.buffer[t.index]&(1<<t.bit) != 0)
				t.bit++
				if t.bit >= 6 {
					t.bit = 0
					t.index++
				}
			}
		}
		t.sample++
	}
	if t.sample > 7 {
		t.sample = 0
	}
}

// end drops the line, unkeys the radio and stops the tick handler
// looking at the buffer.  Caller holds mu.
func (t *Transmitter) end() {
	t.pin.Write(false)
	t.ptt.Set(false)
	t.enabled = false
}
