package vwire

/*-------------------------------------------------------------
 *
 * Purpose:	Logic-level lines connecting the modem to a radio.
 *
 *		The modem only ever sets a level or samples a level, so
 *		the hardware surface is two one-method interfaces.  Real
 *		pins live in gpio.go; loopback.go has an in-memory pair
 *		for tests and self-test.
 *
 *		Both methods run in the tick context and therefore
 *		cannot fail.  Implementations backed by fallible
 *		hardware must latch errors for the foreground to
 *		collect, not report them here.
 *
 *--------------------------------------------------------------*/

// OutputPin drives the transmit data line, or a PTT enable.
type OutputPin interface {
	Write(high bool)
}

// InputPin samples the receive data line.
type InputPin interface {
	Read() bool
}
