package vwire

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/pkg/term"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// scriptPort stands in for the pty when only the bytes written back
// to the client matter.
type scriptPort struct {
	mu    sync.Mutex
	wrote bytes.Buffer
}

func (p *scriptPort) Read(b []byte) (int, error) { return 0, io.EOF }

func (p *scriptPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wrote.Write(b)
}

func (p *scriptPort) Close() error { return nil }

func (p *scriptPort) written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.wrote.Bytes()...)
}

func (p *scriptPort) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wrote.Reset()
}

func TestKISSEncapsulateEscapes(t *testing.T) {
	var in = []byte{0x00, 'a', FEND, 'b', FESC, 'c'}
	var out = kiss_encapsulate(in)

	assert.Equal(t, []byte{FEND, 0x00, 'a', FESC, TFEND, 'b', FESC, TFESC, 'c', FEND}, out)
	assert.Equal(t, in, kiss_unwrap(out))
}

func TestKISSUnwrapTolerance(t *testing.T) {
	// Truncated garbage.
	assert.Empty(t, kiss_unwrap([]byte{FEND}))

	// Missing trailing FEND still decodes.
	assert.Equal(t, []byte{0x00, 'x'}, kiss_unwrap([]byte{FEND, 0x00, 'x'}))

	// Leading FEND is optional.
	assert.Equal(t, []byte{0x00, 'x'}, kiss_unwrap([]byte{0x00, 'x', FEND}))

	// A FEND in the middle is complained about but passed through.
	assert.Equal(t, []byte{0x01, FEND, 0x02}, kiss_unwrap([]byte{FEND, 0x01, FEND, 0x02, FEND}))

	// A broken escape drops the escaped byte.
	assert.Equal(t, []byte{0x01, 0x02}, kiss_unwrap([]byte{FEND, 0x01, FESC, 'A', 0x02, FEND}))
}

func TestKISSRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var in = rapid.SliceOfN(rapid.Byte(), 0, 3*MESSAGE_MAX).Draw(t, "in")
		assert.Equal(t, in, kiss_unwrap(kiss_encapsulate(in)))
	})
}

func TestKISSDataFrameGoesToAir(t *testing.T) {
	var b = new_bench(t)
	var k = &KISS{modem: b.txm, port: &scriptPort{}, name: "test"}

	for _, ch := range kiss_encapsulate([]byte{0x00, 'h', 'i'}) {
		k.kiss_rec_byte(ch)
	}
	require.True(t, b.tx.Busy())

	require.True(t, b.pump(frame_ticks(2)))
	var buf [PAYLOAD_MAX]byte
	var n, ok = b.rx.Recv(buf[:])
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), buf[:n])
}

func TestKISSNoiseGetsCommandPrompt(t *testing.T) {
	var b = new_bench(t)
	var port = &scriptPort{}
	var k = &KISS{modem: b.txm, port: port, name: "test"}

	// Terminal mode chatter from an application that has not entered
	// KISS mode yet gets a fake command prompt back.
	for _, ch := range []byte("XFLOW OFF\r") {
		k.kiss_rec_byte(ch)
	}
	assert.Equal(t, []byte("\r\ncmd:"), port.written())

	// RESTART earns a pair of FENDs instead.
	port.reset()
	for _, ch := range []byte("RESTART\r") {
		k.kiss_rec_byte(ch)
	}
	assert.Equal(t, []byte{FEND, FEND}, port.written())

	// Still locks on to a real frame afterwards.
	for _, ch := range kiss_encapsulate([]byte{0x00, 'x'}) {
		k.kiss_rec_byte(ch)
	}
	assert.True(t, b.tx.Busy())
}

func TestKISSCommandFramesAreIgnored(t *testing.T) {
	var b = new_bench(t)
	var k = &KISS{modem: b.txm, port: &scriptPort{}, name: "test"}

	var quiet = [][]byte{
		{FEND, FEND, FEND}, // Back to back empty frames.
		kiss_encapsulate([]byte{KISS_CMD_TXDELAY, 50}),
		kiss_encapsulate([]byte{KISS_CMD_SET_HARDWARE, 1, 2}),
		kiss_encapsulate([]byte{0xff}),      // Return from KISS mode.
		kiss_encapsulate([]byte{0x10, 'x'}), // Channel 1 does not exist.
	}
	for _, stream := range quiet {
		for _, ch := range stream {
			k.kiss_rec_byte(ch)
		}
		assert.False(t, b.tx.Busy())
	}
}

func TestKISSOversizedDataFrameRejected(t *testing.T) {
	var b = new_bench(t)
	var k = &KISS{modem: b.txm, port: &scriptPort{}, name: "test"}

	var big = make([]byte, PAYLOAD_MAX+2) // Type byte plus one byte too many.
	for _, ch := range kiss_encapsulate(big) {
		k.kiss_rec_byte(ch)
	}
	assert.False(t, b.tx.Busy())
}

func TestKISSOverlongFrameDropped(t *testing.T) {
	var b = new_bench(t)
	var k = &KISS{modem: b.txm, port: &scriptPort{}, name: "test"}

	// A frame that fills the accumulator to the brim leaves no room
	// for the closing FEND.  The whole frame gets dropped, quietly as
	// far as the client is concerned.
	require.NotPanics(t, func() {
		k.kiss_rec_byte(FEND)
		for i := 0; i < MAX_KISS_LEN-1; i++ {
			k.kiss_rec_byte('a')
		}
		k.kiss_rec_byte(FEND)
	})
	assert.False(t, b.tx.Busy())

	// Back in searching state, so a well behaved frame still decodes.
	for _, ch := range kiss_encapsulate([]byte{0x00, 'o', 'k'}) {
		k.kiss_rec_byte(ch)
	}
	assert.True(t, b.tx.Busy())
}

// read_kiss_frame collects one complete KISS frame from the client
// side of the connection and returns it unwrapped.
func read_kiss_frame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var frame []byte
	var started = false
	var one = make([]byte, 1)
	for {
		var n, err = conn.Read(one)
		require.NoError(t, err, "timed out waiting for a KISS frame")
		if n == 0 {
			continue
		}

		var ch = one[0]
		if !started {
			started = ch == FEND
			continue
		}
		if ch == FEND {
			if len(frame) == 0 {
				continue // Still inside leading FENDs.
			}
			return kiss_unwrap(append(append([]byte{FEND}, frame...), FEND))
		}
		frame = append(frame, ch)
	}
}

func TestKISSEndToEndOverPipe(t *testing.T) {
	var wire_ab = NewWire()
	var wire_ba = NewWire()

	var a_tx = NewTransmitter(wire_ab)
	var a_rx = NewReceiver(wire_ba)
	var b_tx = NewTransmitter(wire_ba)
	var b_rx = NewReceiver(wire_ab)

	var ma, aerr = NewModem(ModemConfig{BitRate: 2000}, a_tx, a_rx)
	require.NoError(t, aerr)
	var mb, berr = NewModem(ModemConfig{BitRate: 2000}, b_tx, b_rx)
	require.NoError(t, berr)

	a_rx.Begin()
	b_rx.Begin()

	var tnc_end, client = net.Pipe()
	var k = &KISS{modem: ma, port: tnc_end, name: "pipe"}
	k.Start()
	defer k.Close()

	var quit = make(chan struct{})
	defer close(quit)
	go func() {
		for {
			select {
			case <-quit:
				return
			default:
			}
			ma.Tick()
			mb.Tick()
			time.Sleep(time.Microsecond)
		}
	}()

	// Client pushes a data frame in and it comes out of the radio at
	// station B.
	var _, werr = client.Write(kiss_encapsulate(append([]byte{0x00}, []byte("ping")...)))
	require.NoError(t, werr)

	var deadline = time.Now().Add(10 * time.Second)
	for !b_rx.HaveMessage() {
		require.True(t, time.Now().Before(deadline), "station B never heard the frame")
		time.Sleep(time.Millisecond)
	}
	var buf [PAYLOAD_MAX]byte
	var n, ok = b_rx.Recv(buf[:])
	require.True(t, ok)
	assert.Equal(t, []byte("ping"), buf[:n])

	// Station B talks back and the client reads it as a KISS data
	// frame.
	require.NoError(t, b_tx.Send([]byte("pong")))
	var reply = read_kiss_frame(t, client)
	require.NotEmpty(t, reply)
	assert.Equal(t, byte(KISS_CMD_DATA_FRAME), reply[0])
	assert.Equal(t, []byte("pong"), reply[1:])
}

func TestKISSOverSerialBadDevice(t *testing.T) {
	var b = new_bench(t)
	var _, err = NewKISSOverSerial(b.txm, filepath.Join(t.TempDir(), "no-such-tty"), 9600)
	require.Error(t, err)
}

func TestKISSOverSerialRejectsOddSpeed(t *testing.T) {
	var ptmx, pts, err = pty.Open()
	if err != nil {
		t.Skipf("no pseudo terminal available: %v", err)
	}
	defer ptmx.Close()
	defer pts.Close()

	var b = new_bench(t)
	var _, serr = NewKISSOverSerial(b.txm, pts.Name(), 300)
	require.ErrorContains(t, serr, "unsupported serial port speed")
}

func TestKISSOverPtySymlink(t *testing.T) {
	var b = new_bench(t)
	var link = filepath.Join(t.TempDir(), "kisstnc")

	var k, err = NewKISSOverPty(b.txm, link)
	if err != nil {
		t.Skipf("no pseudo terminal available: %v", err)
	}

	var target, lerr = os.Readlink(link)
	require.NoError(t, lerr)
	assert.Equal(t, k.name, target)

	// A client opens the stable name in raw mode, exactly like a
	// program written for a hardware TNC would, and its frames reach
	// the transmitter.
	var client, cerr = term.Open(link, term.RawMode)
	require.NoError(t, cerr)
	defer client.Close()

	k.Start()
	var _, werr = client.Write(kiss_encapsulate([]byte{0x00, 'h', 'i'}))
	require.NoError(t, werr)
	require.Eventually(t, b.tx.Busy, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, k.Close())
	var _, serr = os.Lstat(link)
	assert.True(t, os.IsNotExist(serr))
}
