// vwtest - offline self test over a simulated wire.
//
// Runs a transmitter and a receiver against each other in memory,
// as fast as the host can tick them, with optional noise injected
// into the line samples.  No radio hardware and no station profile
// are involved, so this is the quickest way to answer "is the modem
// itself sound" and "how does it hold up at this error rate".
//
// The exit status can be tied to the decode count, which makes it
// usable from scripts and CI.
package main

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	vwire "github.com/k2talus/vwire/src"
)

var _bitrate = pflag.IntP("bitrate", "B", 2000, "Bits per second on the simulated wire.")
var _frames = pflag.IntP("frames", "n", 100, "Number of frames to send.")
var _length = pflag.IntP("length", "l", 0, "Payload length in bytes.  0 picks at random per frame.")
var _errrate = pflag.Float64P("error-rate", "e", 0.0, "Probability that any one line sample is flipped.")
var _seed = pflag.Int64P("seed", "s", 1, "Seed for the pseudo random generator.")
var _min = pflag.IntP("error-if-less-than", "L", -1, "Exit with an error if fewer frames than this decode.")
var _max = pflag.IntP("error-if-greater-than", "G", -1, "Exit with an error if more frames than this decode.")
var _version = pflag.BoolP("version", "V", false, "Print version information and exit.")
var help = pflag.Bool("help", false, "Display help text.")

func usage() {
	fmt.Fprintf(os.Stderr, "%s - modem self test over a simulated wire\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "\t%s -n 1000\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\t%s -n 1000 -e 0.002 -L 900\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	pflag.PrintDefaults()
}

func main() {
	pflag.Usage = usage
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}
	if *_version {
		vwire.PrintVersion(false)
		os.Exit(0)
	}
	if *_length > vwire.PAYLOAD_MAX {
		log.Fatal("Payload length over the limit", "length", *_length, "limit", vwire.PAYLOAD_MAX)
	}
	var bit_rate, rateErr = checked_bit_rate(*_bitrate)
	if rateErr != nil {
		log.Fatal("Unusable bit rate", "bitrate", *_bitrate, "err", rateErr)
	}

	var rng = rand.New(rand.NewSource(*_seed))

	var wire = vwire.NewWire()
	if *_errrate > 0 {
		wire.Corrupt = func(level bool) bool {
			if rng.Float64() < *_errrate {
				return !level
			}
			return level
		}
	}

	var tx = vwire.NewTransmitter(wire)
	var rx = vwire.NewReceiver(wire)
	rx.Begin()

	// Two half duplex stations, so two modems.  Ticked by hand,
	// not by the wall clock, which is what makes the run fast.
	var txm, txmErr = vwire.NewModem(vwire.ModemConfig{BitRate: bit_rate}, tx, nil)
	if txmErr != nil {
		log.Fatal("Unusable bit rate", "bitrate", bit_rate, "err", txmErr)
	}
	var rxm, rxmErr = vwire.NewModem(vwire.ModemConfig{BitRate: bit_rate}, nil, rx)
	if rxmErr != nil {
		log.Fatal("Unusable bit rate", "bitrate", bit_rate, "err", rxmErr)
	}

	var decoded, lost, stray = 0, 0, 0

	for i := 0; i < *_frames; i++ {
		var length = *_length
		if length == 0 {
			length = 1 + rng.Intn(vwire.PAYLOAD_MAX)
		}
		var payload = make([]byte, length)
		rng.Read(payload)

		if err := tx.Send(payload); err != nil {
			log.Fatal("Transmitter rejected test frame", "len", length, "err", err)
		}

		if deliver(txm, rxm, rx, payload, budget_ticks(length)) {
			decoded++
		} else {
			lost++
		}

		// Let the line sit idle long enough for any partial
		// decode provoked by noise to finish or give up, and
		// throw away whatever it produced.
		for t := 0; t < budget_ticks(vwire.PAYLOAD_MAX); t++ {
			txm.Tick()
			rxm.Tick()
		}
		for rx.HaveMessage() {
			var buf [vwire.PAYLOAD_MAX]byte
			rx.Recv(buf[:])
			stray++
		}
	}

	var good, bad = rx.Stats()
	log.Info("Self test complete",
		"sent", *_frames,
		"decoded", decoded,
		"lost", lost,
		"stray", stray,
		"rx_good", good,
		"rx_bad", bad)

	if *_min >= 0 && decoded < *_min {
		log.Error("Decoded fewer frames than required", "decoded", decoded, "required", *_min)
		os.Exit(1)
	}
	if *_max >= 0 && decoded > *_max {
		log.Error("Decoded more frames than allowed", "decoded", decoded, "allowed", *_max)
		os.Exit(1)
	}
}

// checked_bit_rate narrows the flag value to the range the modem
// config can carry.  The timer math may still refuse rates inside it.
func checked_bit_rate(v int) (uint16, error) {
	if v < 1 || v > 65535 {
		return 0, fmt.Errorf("bit rate %d is not in 1..65535: %w", v, vwire.ErrBitRate)
	}
	return uint16(v), nil
}

// budget_ticks is a generous allowance for one frame of the given
// payload length to cross the wire: twice the airtime plus change.
func budget_ticks(length int) int {
	var symbols = vwire.HEADER_MAX + 2*(length+3)
	return 2*vwire.SAMPLES_PER_BIT*6*symbols + 1000
}

// deliver pumps both modems until the wanted payload decodes, the
// budget runs out, or only garbage arrives.  Noise can hand us a
// mangled frame before the real one, so keep pumping after those.
func deliver(txm *vwire.Modem, rxm *vwire.Modem, rx *vwire.Receiver, want []byte, budget int) bool {
	var buf [vwire.PAYLOAD_MAX]byte
	for t := 0; t < budget; t++ {
		txm.Tick()
		rxm.Tick()
		if !rx.HaveMessage() {
			continue
		}
		var n, ok = rx.Recv(buf[:])
		if ok && bytes.Equal(buf[:n], want) {
			return true
		}
	}
	return false
}
