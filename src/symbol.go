package vwire

/*-------------------------------------------------------------
 *
 * Purpose:	4-to-6 bit symbol line code.
 *
 *		ASK receivers need frequent level transitions to hold
 *		their data slicer at the right threshold, and the
 *		simplest way to guarantee that is to never let the line
 *		idle at either level for long.  Every codeword below has
 *		exactly 3 of its 6 bits set, so the line spends equal
 *		time high and low regardless of payload content.
 *
 *--------------------------------------------------------------*/

// Encode table mapping a 4-bit data nibble to a balanced 6-bit symbol.
var symbol_4to6 = [16]byte{
	0x0d, 0x0e, 0x13, 0x15, 0x16, 0x19, 0x1a, 0x1c,
	0x23, 0x25, 0x26, 0x29, 0x2a, 0x2c, 0x32, 0x34,
}

/*-------------------------------------------------------------
 *
 * Name:	symbol_6to4
 *
 * Purpose:	Decode a received 6-bit symbol back to its 4-bit nibble.
 *
 * Inputs:	symbol	- 6-bit symbol from the demodulator.
 *
 * Returns:	Data nibble, 0 to 15.
 *
 *		A symbol that is not in the code, which can only come
 *		from corruption on the air, decodes to 0 rather than an
 *		error.  The frame check catches the damage; flagging it
 *		here would add a failure path to the interrupt context
 *		for no benefit.
 *
 *--------------------------------------------------------------*/

func symbol_6to4(symbol byte) byte {
	for i := byte(0); i < 16; i++ {
		if symbol == symbol_4to6[i] {
			return i
		}
	}
	return 0
}
