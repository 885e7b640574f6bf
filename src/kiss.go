package vwire

/*------------------------------------------------------------------
 *
 * Purpose:   	Act as a virtual KISS TNC so existing packet
 *		applications can use the modem without knowing
 *		anything about its framing or timing.
 *
 * Description:	The KISS TNC protocol is described in:
 *		http://www.ka9q.net/papers/kiss.html
 *
 * 		Briefly, a frame is composed of
 *
 *			* FEND (0xC0)
 *			* Contents - with special escape sequences so a 0xc0
 *				byte in the data is not taken as end of frame.
 *			* FEND
 *
 *		The first byte of the frame contains:
 *
 *			* radio channel in upper nybble.  Always 0 here
 *			  because there is only one radio.
 *			* command in lower nybble.
 *
 *		Commands from application recognized:
 *
 *			_0	Data Frame	Payload to transmit, raw bytes.
 *
 *			_1	TXDELAY		No effect.  Transmit timing is
 *			_2	Persistence	fixed by the bit rate, so these
 *			_3 	SlotTime	are acknowledged and ignored.
 *			_4	TXtail
 *			_5	FullDuplex
 *
 *			_6	SetHardware	Ignored.
 *
 *			FF	Return		Exit KISS mode.  Ignored.
 *
 *		Messages sent to client application:
 *
 *			_0	Data Frame	Received payload in raw format.
 *					Frames that fail the checksum are
 *					dropped before they get here.
 *
 *		The client end is either a pseudo terminal (so programs
 *		written for a serial TNC work unchanged) or a real
 *		serial port.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"github.com/pkg/term"
)

const KISS_CMD_DATA_FRAME = 0
const KISS_CMD_TXDELAY = 1
const KISS_CMD_PERSISTENCE = 2
const KISS_CMD_SLOTTIME = 3
const KISS_CMD_TXTAIL = 4
const KISS_CMD_FULLDUPLEX = 5
const KISS_CMD_SET_HARDWARE = 6
const KISS_CMD_END_KISS = 15

/*
 * Special characters used by SLIP protocol.
 */

const FEND = 0xC0
const FESC = 0xDB
const TFEND = 0xDC
const TFESC = 0xDD

type kiss_state_e int

const (
	KS_SEARCHING  kiss_state_e = 0 /* Looking for FEND to start KISS frame. Must be 0 so we can simply zero whole structure to initialize. */
	KS_COLLECTING kiss_state_e = 1 /* In process of collecting KISS frame. */
)

const MAX_KISS_LEN = 2048 /* Spec calls for at least 1024. */
/* Far more than the radio frame can carry but clients */
/* should not be punished for trying. */

const MAX_NOISE_LEN = 100

/*
 * Default location of the symlink to the pseudo terminal name,
 * which changes from run to run.
 */

const TMP_KISSTNC_SYMLINK = "/tmp/vwkisstnc"

/*
 * Accumulated KISS frame and state of decoder.
 */

type kiss_frame_t struct {
	state kiss_state_e

	kiss_msg [MAX_KISS_LEN]byte
	/* Leading FEND is optional. */
	/* Contains escapes and ending FEND. */
	kiss_len int

	noise     [MAX_NOISE_LEN]byte
	noise_len int
}

type fromto_t int

const (
	FROM_CLIENT fromto_t = 0
	TO_CLIENT   fromto_t = 1
)

// KISS bridges a client application to the modem.  Bytes from the
// client are collected into KISS frames and data frames become radio
// transmissions.  Frames decoded by the receiver go back to the
// client as KISS data frames.
type KISS struct {
	modem   *Modem
	rxlog   *RxLogger
	metrics *Metrics

	port io.ReadWriteCloser
	name string /* Client side device name, for messages. */

	pt_slave *os.File /* Kept open so the pty does not vanish. */
	symlink  string

	kf    kiss_frame_t
	debug int

	wmu sync.Mutex /* Both loops write to the client. */

	mu      sync.Mutex
	running bool
	quit    chan struct{}
}

/*-------------------------------------------------------------------
 *
 * Name:        NewKISSOverPty
 *
 * Purpose:     Set up a pseudo terminal acting as a virtual KISS TNC.
 *
 * Inputs:	m	- Modem carrying the radio side.
 *
 *		symlink	- Stable path to create pointing at the pty
 *			  slave, because the slave name changes from
 *			  run to run.  Empty string for no symlink.
 *
 * Returns:	The bridge, not yet started, or an error.
 *
 *--------------------------------------------------------------------*/

func NewKISSOverPty(m *Modem, symlink string) (*KISS, error) {
	var ptmx, pts, err = pty.Open()
	if err != nil {
		return nil, fmt.Errorf("could not create pseudo terminal for KISS TNC: %w", err)
	}

	/*
	 * The device name is not the same every time.
	 * This is inconvenient for the application because it might
	 * be necessary to change the device name in the configuration.
	 * Create a symlink so the application configuration does not
	 * need to change when the pseudo terminal name changes.
	 */

	if symlink != "" {
		os.Remove(symlink)

		var symlinkErr = os.Symlink(pts.Name(), symlink)
		if symlinkErr != nil {
			ptmx.Close()
			pts.Close()
			return nil, fmt.Errorf("failed to create symlink %s: %w", symlink, symlinkErr)
		}
		log.Info("Created symlink to pseudo terminal", "symlink", symlink, "pty", pts.Name())
	}

	log.Info("Virtual KISS TNC is available", "pty", pts.Name())

	return &KISS{
		modem:    m,
		port:     ptmx,
		name:     pts.Name(),
		pt_slave: pts,
		symlink:  symlink,
	}, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        NewKISSOverSerial
 *
 * Purpose:     Attach the KISS TNC to a real serial port.
 *
 * Inputs:	m	- Modem carrying the radio side.
 *
 *		device	- Usually /dev/tty...
 *			  Could be /dev/rfcomm0 for Bluetooth.
 *
 *		baud	- Speed.  1200, 4800, 9600 bps, etc.
 *			  If 0, leave it alone.
 *
 * Returns:	The bridge, not yet started, or an error.
 *
 *--------------------------------------------------------------------*/

func NewKISSOverSerial(m *Modem, device string, baud int) (*KISS, error) {
	var fd, err = term.Open(device, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", device, err)
	}

	switch baud {
	case 0: /* Leave it alone. */
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		if speedErr := fd.SetSpeed(baud); speedErr != nil {
			fd.Close()
			return nil, fmt.Errorf("could not set %s to %d baud: %w", device, baud, speedErr)
		}
	default:
		fd.Close()
		return nil, fmt.Errorf("unsupported serial port speed %d", baud)
	}

	return &KISS{
		modem: m,
		port:  fd,
		name:  device,
	}, nil
}

// SetDebug controls printing of the byte streams flowing from and to
// the client.  0 = none, 1 = frames, 2 = frames plus contents.
func (k *KISS) SetDebug(n int) {
	k.debug = n
}

// UseRxLog records every frame delivered to the client, and the bad
// ones that were not, in a receive log.
func (k *KISS) UseRxLog(l *RxLogger) {
	k.rxlog = l
}

// UseMetrics attaches Prometheus counters.
func (k *KISS) UseMetrics(m *Metrics) {
	k.metrics = m
}

// Start launches the reader for client commands and, when the modem
// can receive, the forwarder for decoded frames.
func (k *KISS) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.running {
		return
	}
	k.running = true
	k.quit = make(chan struct{})

	go k.listen_loop(k.quit)
	if k.modem.rx != nil {
		go k.deliver_loop(k.quit)
	}
}

// Close stops the bridge and releases the pty or serial port.
// The symlink, if any, is removed.
func (k *KISS) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.running {
		close(k.quit)
		k.running = false
	}

	/* Closing the port is what unblocks the listener. */
	var err = k.port.Close()

	if k.pt_slave != nil {
		k.pt_slave.Close()
		k.pt_slave = nil
	}
	if k.symlink != "" {
		os.Remove(k.symlink)
	}

	return err
}

/*-------------------------------------------------------------------
 *
 * Name:        listen_loop
 *
 * Purpose:     Read messages from the KISS client application.
 *
 * Description:	Reads bytes from the KISS client app and sends them
 *		to kiss_rec_byte for processing.
 *
 *		Reading one byte at a time is inefficient but the data
 *		rate here is so low it makes no noticeable difference.
 *
 *--------------------------------------------------------------------*/

func (k *KISS) listen_loop(quit chan struct{}) {
	var ch = make([]byte, 1)

	for {
		var n, err = k.port.Read(ch)
		if err != nil {
			select {
			case <-quit:
				/* Closed by us. */
			default:
				log.Error("Error receiving KISS message from client application", "name", k.name, "err", err)
			}
			return
		}
		if n == 0 {
			continue
		}

		k.kiss_rec_byte(ch[0])
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        deliver_loop
 *
 * Purpose:     Forward frames decoded by the receiver to the client.
 *
 * Description:	Frames that fail the checksum are counted and logged
 *		but never sent to the client.  A serial TNC has no way
 *		to flag a damaged frame so delivering it would just
 *		poison the application upstream.
 *
 *--------------------------------------------------------------------*/

func (k *KISS) deliver_loop(quit chan struct{}) {
	var buf [PAYLOAD_MAX]byte

	for {
		select {
		case <-quit:
			return
		default:
		}

		if !k.modem.rx.Await(200 * time.Millisecond) {
			continue
		}

		var n, ok = k.modem.rx.Recv(buf[:])
		k.rxlog.Write(buf[:n], ok)
		k.metrics.CountReceived(n, ok)
		if !ok {
			log.Debug("Dropping received frame with bad checksum", "len", n)
			continue
		}

		k.send_to_client(KISS_CMD_DATA_FRAME, buf[:n])
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        send_to_client
 *
 * Purpose:     Send a received frame to the client app.
 *
 * Inputs:	kiss_cmd	- Usually KISS_CMD_DATA_FRAME.
 *
 *		fbuf		- Raw frame payload.
 *
 * Description:	Send message to client.
 *		We really don't care if anyone is listening or not.
 *
 *--------------------------------------------------------------------*/

func (k *KISS) send_to_client(kiss_cmd int, fbuf []byte) {
	/* Single radio, so the channel nybble is always 0. */
	var stemp = []byte{byte(kiss_cmd)}
	stemp = append(stemp, fbuf...)

	var kiss_buff = kiss_encapsulate(stemp)

	/* This has KISS framing and escapes for sending to client app. */

	if k.debug > 0 {
		kiss_debug_print(TO_CLIENT, "", kiss_buff)
	}

	k.wmu.Lock()
	var n, err = k.port.Write(kiss_buff)
	k.wmu.Unlock()

	if n != len(kiss_buff) || err != nil {
		log.Error("Error sending KISS message to client application", "name", k.name, "len", len(kiss_buff), "written", n, "err", err)
	}
}

// send_raw bypasses KISS framing.  Used only to answer terminal mode
// commands from applications that have not entered KISS mode yet.
func (k *KISS) send_raw(text []byte) {
	if k.debug > 0 {
		kiss_debug_print(TO_CLIENT, "Fake command prompt", text)
	}

	k.wmu.Lock()
	k.port.Write(text)
	k.wmu.Unlock()
}

/*-------------------------------------------------------------------
 *
 * Name:        kiss_rec_byte
 *
 * Purpose:     Process one byte from a KISS client app.
 *
 * Inputs:	ch	- A byte from the input stream.
 *
 * Description:	Accumulates bytes into frames and dispatches each
 *		complete frame.  Anything outside a frame is noise,
 *		probably an application trying to talk to the TNC in
 *		terminal mode first.
 *
 *-----------------------------------------------------------------*/

/*
 * Application might send some commands to put TNC into KISS mode.
 * For example, APRSIS32 sends something like:
 *
 *	<0x0d>
 *	XFLOW OFF<0x0d>
 *	FULLDUP OFF<0x0d>
 *	KISS ON<0x0d>
 *	RESTART<0x0d>
 *
 * This keeps repeating over and over and over and over again if
 * it doesn't get any sort of response.
 *
 * Let's try to keep it happy by sending back a command prompt.
 */

func (k *KISS) kiss_rec_byte(ch byte) {
	var kf = &k.kf

	switch kf.state {
	case KS_SEARCHING: /* Searching for starting FEND. */
		if ch == FEND {
			/* Start of frame.  But first print any collected noise for debugging. */

			if kf.noise_len > 0 {
				if k.debug > 0 {
					kiss_debug_print(FROM_CLIENT, "Rejected Noise", kf.noise[:kf.noise_len])
				}
				kf.noise_len = 0
			}

			kf.kiss_len = 1
			kf.kiss_msg[0] = ch
			kf.state = KS_COLLECTING
			return
		}

		/* Noise to be rejected. */

		if kf.noise_len < MAX_NOISE_LEN {
			kf.noise[kf.noise_len] = ch
			kf.noise_len++
		}
		if ch == '\r' {
			if k.debug > 0 {
				kiss_debug_print(FROM_CLIENT, "Rejected Noise", kf.noise[:kf.noise_len])
			}

			/* Try to appease client app by sending something back. */
			var noise = string(kf.noise[:kf.noise_len])
			if strings.EqualFold("restart\r", noise) || strings.EqualFold("reset\r", noise) {
				k.send_raw([]byte("\xc0\xc0"))
			} else {
				k.send_raw([]byte("\r\ncmd:"))
			}
			kf.noise_len = 0
		}
		return

	case KS_COLLECTING: /* Frame collection in progress. */
		if ch == FEND {
			/* End of frame. */

			if kf.kiss_len == 0 {
				/* Empty frame.  Starting a new one. */
				kf.kiss_msg[kf.kiss_len] = ch
				kf.kiss_len++
				return
			}
			if kf.kiss_len == 1 && kf.kiss_msg[0] == FEND {
				/* Empty frame.  Just go on collecting. */
				return
			}

			if kf.kiss_len >= MAX_KISS_LEN {
				/* The tail was truncated on the way in, so the */
				/* buffer does not hold the frame the client sent. */
				log.Error("Dropping oversized KISS frame", "len", kf.kiss_len)
				kf.kiss_len = 0
				kf.state = KS_SEARCHING
				return
			}

			kf.kiss_msg[kf.kiss_len] = ch
			kf.kiss_len++
			if k.debug > 0 {
				/* As received over the wire from client app. */
				kiss_debug_print(FROM_CLIENT, "", kf.kiss_msg[:kf.kiss_len])
			}

			var unwrapped = kiss_unwrap(kf.kiss_msg[:kf.kiss_len])

			k.process_frame(unwrapped)

			kf.state = KS_SEARCHING
			return
		}

		if kf.kiss_len < MAX_KISS_LEN {
			kf.kiss_msg[kf.kiss_len] = ch
			kf.kiss_len++
		} else {
			log.Error("KISS message exceeded maximum length")
		}
		return
	}
} /* end kiss_rec_byte */

/*-------------------------------------------------------------------
 *
 * Name:        process_frame
 *
 * Purpose:     Process a message from the KISS client.
 *
 * Inputs:	msg	- Kiss frame with FEND and escapes removed.
 *			  The first byte contains channel and command.
 *
 * Description:	Data frames go out over the radio.  The tuning
 *		commands of a real TNC have no meaning here because
 *		all the timing follows from the bit rate, so they are
 *		acknowledged in the log and ignored.
 *
 *-----------------------------------------------------------------*/

func (k *KISS) process_frame(msg []byte) {
	if len(msg) == 0 {
		return
	}

	var channel = int(msg[0]>>4) & 0xf
	var cmd = int(msg[0]) & 0xf

	if msg[0] == 0xff {
		/* Exit KISS mode.  Ignored. */
		return
	}

	switch cmd {
	case KISS_CMD_DATA_FRAME:
		if channel != 0 {
			log.Error("Invalid transmit channel from KISS client, this TNC has only channel 0", "channel", channel)
			return
		}
		if k.modem.tx == nil {
			log.Error("KISS client sent a data frame but the modem has no transmitter")
			return
		}
		if err := k.modem.tx.Send(msg[1:]); err != nil {
			log.Error("Could not transmit frame from KISS client", "len", len(msg)-1, "err", err)
			return
		}
		k.metrics.CountSent(len(msg) - 1)

	case KISS_CMD_TXDELAY, KISS_CMD_PERSISTENCE, KISS_CMD_SLOTTIME, KISS_CMD_TXTAIL, KISS_CMD_FULLDUPLEX:
		if len(msg) < 2 {
			log.Error("KISS command is missing its parameter", "cmd", kiss_function_name(cmd))
			return
		}
		log.Info("KISS command has no effect, transmit timing is fixed by the bit rate", "cmd", kiss_function_name(cmd), "value", msg[1])

	case KISS_CMD_SET_HARDWARE:
		log.Info("KISS SetHardware command ignored")

	case KISS_CMD_END_KISS:
		/* Ignore it. */

	default:
		log.Error("Invalid KISS command", "cmd", cmd)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        kiss_encapsulate
 *
 * Purpose:     Encapsulate a frame into KISS format.
 *
 * Inputs:	in	- Input block.
 *			  First byte is the "type indicator" with type and
 *			  channel but we don't care about that here.
 *			  If it happens to be FEND or FESC, it is escaped,
 *			  like any other byte.
 *
 *			  Note that this is "binary" data and can contain
 *			  nul (0x00) values.   Don't treat it like a text string!
 *
 * Returns:	The KISS encoded representation.  The sequence is:
 *			FEND		- Magic frame separator.
 *			data		- with certain byte values replaced so
 *					  FEND will never occur here.
 *			FEND		- Magic frame separator.
 *
 *-----------------------------------------------------------------*/

func kiss_encapsulate(in []byte) []byte {
	var buf bytes.Buffer

	buf.WriteByte(FEND)

	for _, b := range in {
		switch b {
		case FEND:
			buf.WriteByte(FESC)
			buf.WriteByte(TFEND)
		case FESC:
			buf.WriteByte(FESC)
			buf.WriteByte(TFESC)
		default:
			buf.WriteByte(b)
		}
	}

	buf.WriteByte(FEND)

	return buf.Bytes()
}

/*-------------------------------------------------------------------
 *
 * Name:        kiss_unwrap
 *
 * Purpose:     Extract original data from a KISS frame.
 *
 * Inputs:	in	- The received KISS encoded representation.
 *			  The leading FEND is optional, the ending FEND
 *			  should be there.
 *
 * Returns:	The resulting frame without the escapes or FEND.
 *		First byte is the "type indicator" with type and
 *		channel but we don't care about that here.
 *
 *-----------------------------------------------------------------*/

func kiss_unwrap(in []byte) []byte {

	if len(in) < 2 {
		/* Need at least the "type indicator" byte and FEND. */
		/* Probably more. */
		log.Error("KISS message less than minimum length")
		return []byte{}
	}

	if in[len(in)-1] == FEND {
		in = in[:len(in)-1] // Ignore last FEND
	} else {
		log.Error("KISS frame should end with FEND")
	}

	if in[0] == FEND {
		in = in[1:] // Skip over optional leading FEND
	}

	var escapedMode = false
	var buf bytes.Buffer
	for _, b := range in {
		if b == FEND {
			log.Error("KISS frame should not have FEND in the middle")
		}

		if escapedMode {
			switch b {
			case TFESC:
				buf.WriteByte(FESC)
			case TFEND:
				buf.WriteByte(FEND)
			default:
				log.Error("KISS protocol error, unexpected byte after FESC", "byte", fmt.Sprintf("0x%02x", b))
			}
			escapedMode = false
		} else if b == FESC {
			escapedMode = true
		} else {
			buf.WriteByte(b)
		}
	}

	return buf.Bytes()
} /* end kiss_unwrap */

/*-------------------------------------------------------------------
 *
 * Name:        kiss_debug_print
 *
 * Purpose:     Print message to/from client for debugging.
 *
 * Inputs:	fromto		- Direction of message.
 *		special		- Comment if not a KISS frame.
 *		pmsg		- The message block.
 *
 *--------------------------------------------------------------------*/

func kiss_debug_print(fromto fromto_t, special string, pmsg []byte) {
	var direction = []string{"from", "to"}
	var prefix = []string{"<<<", ">>>"}

	if special == "" {
		if len(pmsg) > 0 && pmsg[0] == FEND {
			/* Skip over FEND if present. */
			pmsg = pmsg[1:]
		}
		if len(pmsg) == 0 {
			return
		}

		log.Debug(fmt.Sprintf("%s %s %s KISS client application", prefix[fromto], kiss_function_name(int(pmsg[0]&0xf)), direction[fromto]),
			"channel", (pmsg[0]>>4)&0xf, "len", len(pmsg), "hex", fmt.Sprintf("%x", pmsg))
	} else {
		log.Debug(fmt.Sprintf("%s %s %s KISS client application", prefix[fromto], special, direction[fromto]),
			"len", len(pmsg), "hex", fmt.Sprintf("%x", pmsg))
	}
}

func kiss_function_name(cmd int) string {
	var function = []string{
		"Data frame", "TXDELAY", "P", "SlotTime",
		"TXtail", "FullDuplex", "SetHardware", "Invalid 7",
		"Invalid 8", "Invalid 9", "Invalid 10", "Invalid 11",
		"Invalid 12", "Invalid 13", "Invalid 14", "Return"}

	if cmd < 0 || cmd >= len(function) {
		return "Invalid"
	}
	return function[cmd]
}
