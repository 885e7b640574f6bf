package vwire

/*------------------------------------------------------------------
 *
 * Purpose:   	Radio data and keying lines on GPIO hardware.
 *
 * Description:	Uses the gpio character device (/dev/gpiochipN)
 *		through go-gpiocdev.  The old /sys/class/gpio
 *		interface was removed from the kernel and is not
 *		supported here.
 *
 *		Write and Read run in the tick context where there is
 *		no error path, so the first hardware failure is
 *		latched and the foreground gets it from Err.  A failed
 *		input pin reads low.
 *
 *---------------------------------------------------------------*/

import (
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// request_output_line narrows a requested line to the slice of
// it the keying code needs.
func request_output_line(chip string, offset int, initial int) (gpioOutputLine, error) {
	var line, err = gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(initial))
	if err != nil {
		return nil, err
	}
	return line, nil
}

type GPIOOutputPin struct {
	mu   sync.Mutex
	line *gpiocdev.Line
	err  error
}

// RequestOutputPin claims a GPIO line for transmit data,
// e.g. ("gpiochip0", 17).  The line starts low.
func RequestOutputPin(chip string, offset int) (*GPIOOutputPin, error) {
	var line, err = gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, err
	}
	return &GPIOOutputPin{line: line}, nil
}

func (g *GPIOOutputPin) Write(high bool) {
	var err = g.line.SetValue(IfThenElse(high, 1, 0))
	if err != nil {
		g.mu.Lock()
		if g.err == nil {
			g.err = err
		}
		g.mu.Unlock()
	}
}

// Err returns the first failure latched by Write, if any.
func (g *GPIOOutputPin) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *GPIOOutputPin) Close() error {
	return g.line.Close()
}

type GPIOInputPin struct {
	mu   sync.Mutex
	line *gpiocdev.Line
	err  error
}

// RequestInputPin claims a GPIO line for receive data.
func RequestInputPin(chip string, offset int) (*GPIOInputPin, error) {
	var line, err = gpiocdev.RequestLine(chip, offset, gpiocdev.AsInput)
	if err != nil {
		return nil, err
	}
	return &GPIOInputPin{line: line}, nil
}

func (g *GPIOInputPin) Read() bool {
	var v, err = g.line.Value()
	if err != nil {
		g.mu.Lock()
		if g.err == nil {
			g.err = err
		}
		g.mu.Unlock()
		return false
	}
	return v != 0
}

// Err returns the first failure latched by Read, if any.
func (g *GPIOInputPin) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *GPIOInputPin) Close() error {
	return g.line.Close()
}
