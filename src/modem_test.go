package vwire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// bench is a one-way radio link on the lab bench: one modem keying a
// wire, a second modem listening to it, ticked in lockstep.
type bench struct {
	wire *Wire
	tx   *Transmitter
	rx   *Receiver
	txm  *Modem
	rxm  *Modem
}

func new_bench(t require.TestingT) *bench {
	var b = &bench{wire: NewWire()}
	b.tx = NewTransmitter(b.wire)
	b.rx = NewReceiver(b.wire)

	var err error
	b.txm, err = NewModem(ModemConfig{BitRate: 2000}, b.tx, nil)
	require.NoError(t, err)
	b.rxm, err = NewModem(ModemConfig{BitRate: 2000}, nil, b.rx)
	require.NoError(t, err)

	b.rx.Begin()
	return b
}

// pump ticks both ends in lockstep until the receiver holds a frame
// or the budget runs out.
func (b *bench) pump(ticks int) bool {
	for i := 0; i < ticks; i++ {
		b.txm.Tick()
		b.rxm.Tick()
		if b.rx.HaveMessage() {
			return true
		}
	}
	return false
}

// frame_ticks is a generous tick budget for one frame of n payload
// bytes: preamble, count, payload and FCS symbols at 6 bits each, 8
// ticks per bit, plus slack for the trailing dump.
func frame_ticks(n int) int {
	return SAMPLES_PER_BIT * (6*(HEADER_MAX+2+2*n+4) + 8)
}

func TestModemRequiresEndpoint(t *testing.T) {
	var _, err = NewModem(ModemConfig{BitRate: 2000}, nil, nil)
	require.ErrorIs(t, err, ErrNoRadio)
}

func TestModemRejectsBadRate(t *testing.T) {
	var tx = NewTransmitter(new(recordingPin))
	var _, err = NewModem(ModemConfig{BitRate: 0}, tx, nil)
	require.ErrorIs(t, err, ErrBitRate)
}

func TestModemTimerPlumbing(t *testing.T) {
	var rx = NewReceiver(new(replayPin))

	var m, err = NewModem(ModemConfig{BitRate: 2000}, nil, rx)
	require.NoError(t, err)
	assert.Equal(t, 62500*time.Nanosecond, m.TickInterval(), "8 ticks per bit at 2000 bps")
	assert.Equal(t, TimerConfig{Prescaler: 1, Divisor: 1, Ticks: 1000}, m.TimerConfig())

	m, err = NewModem(ModemConfig{BitRate: 2000, MaxTicks: TIMER_MAX_TICKS_8BIT}, nil, rx)
	require.NoError(t, err)
	assert.Equal(t, TimerConfig{Prescaler: 2, Divisor: 8, Ticks: 125}, m.TimerConfig(), "8 bit counter needs a bigger prescaler")
}

func TestLoopbackRoundTrip(t *testing.T) {
	var payloads = [][]byte{
		{0x2a},
		[]byte("hello world"),
		make([]byte, PAYLOAD_MAX),
	}
	for i := range payloads[2] {
		payloads[2][i] = byte(i * 9)
	}

	for _, payload := range payloads {
		var b = new_bench(t)

		require.NoError(t, b.tx.Send(payload))
		require.True(t, b.pump(frame_ticks(len(payload))), "frame should arrive within the budget")

		var buf = make([]byte, PAYLOAD_MAX)
		var n, ok = b.rx.Recv(buf)
		assert.True(t, ok, "clean loopback should pass the checksum")
		assert.Equal(t, payload, buf[:n])

		for b.tx.Busy() {
			b.txm.Tick()
		}
		assert.Equal(t, uint16(1), b.tx.MessagesSent())
	}
}

func TestLoopbackRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var payload = rapid.SliceOfN(rapid.Byte(), 1, PAYLOAD_MAX).Draw(t, "payload")

		var b = new_bench(t)
		require.NoError(t, b.tx.Send(payload))
		require.True(t, b.pump(frame_ticks(len(payload))))

		var buf = make([]byte, PAYLOAD_MAX)
		var n, ok = b.rx.Recv(buf)
		assert.True(t, ok)
		assert.Equal(t, payload, buf[:n])
	})
}

// TestLoopbackCorruptedBitDelivered flips one full bit period in the
// first payload symbol.  The frame still arrives, the checksum fails.
func TestLoopbackCorruptedBitDelivered(t *testing.T) {
	var b = new_bench(t)

	// Payload bits start after 48 preamble and 12 count bits.  Bit
	// 62 sits in the first payload symbol, 'H' whose high nybble is
	// not 0, so the damaged symbol cannot decode back to the right
	// value by accident.
	var tick = 0
	b.wire.Corrupt = func(level bool) bool {
		var flip = tick >= 62*SAMPLES_PER_BIT && tick < 63*SAMPLES_PER_BIT
		tick++
		return level != flip
	}

	var payload = []byte("Hello")
	require.NoError(t, b.tx.Send(payload))
	require.True(t, b.pump(frame_ticks(len(payload))), "a damaged frame is still delivered")

	var buf = make([]byte, PAYLOAD_MAX)
	var n, ok = b.rx.Recv(buf)
	assert.False(t, ok, "checksum should catch the damage")
	assert.Equal(t, len(payload), n)
	assert.Equal(t, byte(0x08), buf[0], "damaged symbol decodes as nybble 0")
	assert.Equal(t, []byte("ello"), buf[1:n])

	var good, bad = b.rx.Stats()
	assert.Equal(t, uint16(1), good)
	assert.Zero(t, bad)
}

// TestHalfDuplexHearsNothing puts both ends of one modem on the same
// wire.  The receive path is gated off while the transmitter drains,
// so the modem must not decode its own transmission.
func TestHalfDuplexHearsNothing(t *testing.T) {
	var wire = NewWire()
	var tx = NewTransmitter(wire)
	var rx = NewReceiver(wire)
	var m, err = NewModem(ModemConfig{BitRate: 2000}, tx, rx)
	require.NoError(t, err)

	rx.Begin()
	require.NoError(t, tx.Send([]byte("echo")))

	for i := 0; i < 2*frame_ticks(4); i++ {
		m.Tick()
	}

	assert.False(t, tx.Busy())
	assert.False(t, rx.HaveMessage(), "half duplex modem should not hear itself")

	var good, bad = rx.Stats()
	assert.Zero(t, good)
	assert.Zero(t, bad)
}

// TestTwoStationExchange runs a request and a reply between two
// stations over a pair of wires, each direction in its own phase
// since each station is half duplex.
func TestTwoStationExchange(t *testing.T) {
	var a_to_b = NewWire()
	var b_to_a = NewWire()

	var a_tx = NewTransmitter(a_to_b)
	var a_rx = NewReceiver(b_to_a)
	var b_tx = NewTransmitter(b_to_a)
	var b_rx = NewReceiver(a_to_b)

	var am, err = NewModem(ModemConfig{BitRate: 2000}, a_tx, a_rx)
	require.NoError(t, err)
	var bm, err2 = NewModem(ModemConfig{BitRate: 2000}, b_tx, b_rx)
	require.NoError(t, err2)

	a_rx.Begin()
	b_rx.Begin()

	var tick_both = func(budget int, done func() bool) bool {
		for i := 0; i < budget; i++ {
			am.Tick()
			bm.Tick()
			if done() {
				return true
			}
		}
		return false
	}

	require.NoError(t, a_tx.Send([]byte("ping")))
	require.True(t, tick_both(2*frame_ticks(4), b_rx.HaveMessage))

	var buf = make([]byte, PAYLOAD_MAX)
	var n, ok = b_rx.Recv(buf)
	require.True(t, ok)
	require.Equal(t, []byte("ping"), buf[:n])

	// Let station A's transmitter retire before B replies.
	for a_tx.Busy() {
		am.Tick()
	}

	require.NoError(t, b_tx.Send([]byte("pong")))
	require.True(t, tick_both(2*frame_ticks(4), a_rx.HaveMessage))

	n, ok = a_rx.Recv(buf)
	require.True(t, ok)
	require.Equal(t, []byte("pong"), buf[:n])
}

func TestModemStartStop(t *testing.T) {
	var rx = NewReceiver(NewWire())
	var m, err = NewModem(ModemConfig{BitRate: 2000}, nil, rx)
	require.NoError(t, err)

	rx.Begin()

	m.Start()
	m.Start() // second call is a no-op
	SLEEP_MS(5)
	m.Stop()
	m.Stop() // so is a second stop

	// And the modem can be restarted.
	m.Start()
	SLEEP_MS(5)
	m.Stop()

	assert.False(t, rx.HaveMessage(), "idle wire should decode nothing")
}
