package vwire

/*-------------------------------------------------------------
 *
 * Purpose:	CRC-16-CCITT frame check sequence.
 *
 *		This is the bit-reversed form of the CCITT polynomial
 *		0x1021, shifted out low bit first (0x8408), with initial
 *		value 0xffff.  The same CRC protects PPP and IrDA frames.
 *
 *		The transmitted FCS is the ones complement of the final
 *		CRC value, sent low byte first.  A nice property follows:
 *		running the CRC across a received frame including its FCS
 *		yields the constant FCS_RESIDUE when everything arrived
 *		intact, so the receiver never has to pick the FCS bytes
 *		back out of the frame.
 *
 *--------------------------------------------------------------*/

/*-------------------------------------------------------------
 *
 * Name:	crc_ccitt_update
 *
 * Purpose:	Fold one byte into a running CRC.
 *
 * Inputs:	crc	- CRC so far, 0xffff to start a frame.
 *		data	- Next frame byte.
 *
 * Returns:	Updated CRC.
 *
 *--------------------------------------------------------------*/

func crc_ccitt_update(crc uint16, data byte) uint16 {
	crc ^= uint16(data)
	for bit := 0; bit < 8; bit++ {
		if crc&1 != 0 {
			crc = (crc >> 1) ^ 0x8408
		} else {
			crc >>= 1
		}
	}
	return crc
}

/*-------------------------------------------------------------
 *
 * Name:	crc_ccitt
 *
 * Purpose:	Compute the CRC over a whole block.
 *
 * Inputs:	data	- Frame bytes.
 *
 * Returns:	16-bit CRC value.
 *
 *--------------------------------------------------------------*/

func crc_ccitt(data []byte) uint16 {
	var crc uint16 = 0xffff
	for _, b := range data {
		crc = crc_ccitt_update(crc, b)
	}
	return crc
}

/*-------------------------------------------------------------
 *
 * Name:	frame_check
 *
 * Purpose:	Validate a received frame against its trailing FCS.
 *
 * Inputs:	frame	- Count byte, payload and both FCS bytes,
 *			  exactly as assembled by the receiver.
 *
 * Returns:	true if the frame arrived intact.
 *
 *--------------------------------------------------------------*/

func frame_check(frame []byte) bool {
	return crc_ccitt(frame) == FCS_RESIDUE
}
