package vwire

/*------------------------------------------------------------------
 *
 * Purpose:   	Key the transmitter on and off (push to talk).
 *
 * Description:	Cheap ASK boards mostly key themselves: power the
 *		data pin and they radiate.  Anything fancier wants a
 *		separate keying signal, and traditionally that is the
 *		RTS pin of a serial port, with DTR as the spare for a
 *		second radio on the same port.  On single board
 *		computers a GPIO line through the gpio character
 *		device does the same job.
 *
 *		Some interfaces key on a low level, so the signal can
 *		be inverted.
 *
 *		Set runs in the tick context and must not block or
 *		fail, so hardware errors are latched for the
 *		foreground to collect with Err.
 *
 *---------------------------------------------------------------*/

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

func _TIOCM(fd int, value int, on bool) error {
	var stuff, err = unix.IoctlGetInt(fd, unix.TIOCMGET)
	if err != nil {
		return err
	}
	if on {
		stuff |= value
	} else {
		stuff &= ^value
	}
	return unix.IoctlSetInt(fd, unix.TIOCMSET, stuff)
}

func RTS_ON(fd uintptr) error {
	return _TIOCM(int(fd), unix.TIOCM_RTS, true)
}

func RTS_OFF(fd uintptr) error {
	return _TIOCM(int(fd), unix.TIOCM_RTS, false)
}

func DTR_ON(fd uintptr) error {
	return _TIOCM(int(fd), unix.TIOCM_DTR, true)
}

func DTR_OFF(fd uintptr) error {
	return _TIOCM(int(fd), unix.TIOCM_DTR, false)
}

type PTTLine int

const (
	PTT_LINE_RTS PTTLine = iota
	PTT_LINE_DTR
)

// gpioOutputLine is the slice of a gpiocdev line we need, thin
// enough to fake in tests without hardware or the gpio-sim
// kernel module.
type gpioOutputLine interface {
	SetValue(value int) error
	Close() error
}

type PTT struct {
	mu     sync.Mutex
	fd     *os.File
	line   PTTLine
	gpio   gpioOutputLine
	invert bool
	err    error
}

// PTTBySerial keys through the RTS or DTR line of the named
// serial device.  The signal starts off.
func PTTBySerial(device string, line PTTLine, invert bool) (*PTT, error) {
	var fd, err = os.Open(device)
	if err != nil {
		return nil, err
	}
	var p = &PTT{fd: fd, line: line, invert: invert}
	p.Set(false)
	return p, nil
}

// PTTByGPIO keys through a line of a gpio character device,
// e.g. ("gpiochip0", 25).  The signal starts off.
func PTTByGPIO(chip string, offset int, invert bool) (*PTT, error) {
	var line, err = request_output_line(chip, offset, IfThenElse(invert, 1, 0))
	if err != nil {
		return nil, err
	}
	return &PTT{gpio: line, invert: invert}, nil
}

// Set keys (true) or unkeys (false) the radio.  More positive
// output corresponds to keyed unless invert is set.  Safe on a
// nil receiver so an unkeyed station needs no special casing.
func (p *PTT) Set(on bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var signal = on != p.invert

	if p.fd != nil {
		var err error
		switch p.line {
		case PTT_LINE_RTS:
			if signal {
				err = RTS_ON(p.fd.Fd())
			} else {
				err = RTS_OFF(p.fd.Fd())
			}
		case PTT_LINE_DTR:
			if signal {
				err = DTR_ON(p.fd.Fd())
			} else {
				err = DTR_OFF(p.fd.Fd())
			}
		}
		if err != nil && p.err == nil {
			p.err = err
		}
	}

	if p.gpio != nil {
		var err = p.gpio.SetValue(IfThenElse(signal, 1, 0))
		if err != nil && p.err == nil {
			p.err = err
		}
	}
}

// Err returns the first hardware failure latched by Set, if any.
func (p *PTT) Err() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close makes sure the radio is unkeyed on the way out, then
// releases the underlying device.
func (p *PTT) Close() error {
	if p == nil {
		return nil
	}
	p.Set(false)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fd != nil {
		var err = p.fd.Close()
		p.fd = nil
		return err
	}
	if p.gpio != nil {
		var err = p.gpio.Close()
		p.gpio = nil
		return err
	}
	return nil
}
