package vwire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockGPIOLine is a test double for gpioOutputLine that records calls
// without requiring GPIO hardware or the gpio-sim kernel module.
type mockGPIOLine struct {
	value  int
	closed bool
	fail   error
}

func (m *mockGPIOLine) SetValue(v int) error {
	if m.fail != nil {
		return m.fail
	}
	m.value = v
	return nil
}

func (m *mockGPIOLine) Close() error {
	m.closed = true
	return nil
}

// newGPIOPTT builds a PTT keyed through a mock line, returning the
// mock so the caller can inspect it.
func newGPIOPTT(t *testing.T, invert bool) (*PTT, *mockGPIOLine) {
	t.Helper()

	var mock = new(mockGPIOLine)
	var p = &PTT{gpio: mock, invert: invert}

	t.Cleanup(func() {
		p.Close()
	})

	return p, mock
}

// TestPTTSetGPIO_Activate verifies that keying drives the line high.
func TestPTTSetGPIO_Activate(t *testing.T) {
	var p, mock = newGPIOPTT(t, false)

	p.Set(true)

	assert.Equal(t, 1, mock.value, "line should be high when keyed")
}

// TestPTTSetGPIO_Deactivate verifies that unkeying drives the line low.
func TestPTTSetGPIO_Deactivate(t *testing.T) {
	var p, mock = newGPIOPTT(t, false)

	p.Set(true)
	p.Set(false)

	assert.Equal(t, 0, mock.value, "line should be low when unkeyed")
}

// TestPTTSetGPIO_Invert_Activate verifies that invert flips the level
// when keyed (on -> line low).
func TestPTTSetGPIO_Invert_Activate(t *testing.T) {
	var p, mock = newGPIOPTT(t, true)

	p.Set(true)

	assert.Equal(t, 0, mock.value, "inverted line should be low when keyed")
}

// TestPTTSetGPIO_Invert_Deactivate verifies that invert flips the level
// when unkeyed (off -> line high).
func TestPTTSetGPIO_Invert_Deactivate(t *testing.T) {
	var p, mock = newGPIOPTT(t, true)

	p.Set(false)

	assert.Equal(t, 1, mock.value, "inverted line should be high when unkeyed")
}

// TestPTTNil verifies every method is safe on a nil PTT, so an
// unkeyed station needs no special casing in the transmitter.
func TestPTTNil(t *testing.T) {
	var p *PTT

	require.NotPanics(t, func() {
		p.Set(true)
		p.Set(false)
	})
	assert.NoError(t, p.Err())
	assert.NoError(t, p.Close())
}

// TestPTTClose verifies that Close unkeys before releasing the line.
func TestPTTClose(t *testing.T) {
	var mock = new(mockGPIOLine)
	var p = &PTT{gpio: mock}

	p.Set(true)
	require.NoError(t, p.Close())

	assert.Equal(t, 0, mock.value, "radio should be unkeyed on close")
	assert.True(t, mock.closed, "Close should release the line handle")
}

// TestPTTErrLatch verifies the first hardware failure sticks even
// after later successful sets.
func TestPTTErrLatch(t *testing.T) {
	var p, mock = newGPIOPTT(t, false)

	var boom = errors.New("line wedged")
	mock.fail = boom
	p.Set(true)

	mock.fail = nil
	p.Set(false)

	assert.ErrorIs(t, p.Err(), boom, "first failure should stay latched")
}
