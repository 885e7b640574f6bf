// vwrecv - receive console for an ASK/OOK radio link.
//
// Loads a station profile, listens on the receive pin and prints
// every frame that passes the checksum, one per line, until
// interrupted.  Optionally appends everything heard to the frame
// log named in the profile.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	vwire "github.com/k2talus/vwire/src"
)

var _config = pflag.StringP("config", "c", "vwire.yaml", "Station profile to load.")
var _hexdisplay = pflag.BoolP("hexdisplay", "h", false, "Print frame contents as hexadecimal bytes.")
var _bad = pflag.BoolP("bad", "b", false, "Also print frames that fail the checksum.")
var _version = pflag.BoolP("version", "V", false, "Print version information and exit.")
var help = pflag.Bool("help", false, "Display help text.")

func usage() {
	fmt.Fprintf(os.Stderr, "%s - receive console for an ASK/OOK radio link\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Prints decoded frames until interrupted.  Statistics go to\n")
	fmt.Fprintf(os.Stderr, "stderr on the way out.\n")
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

	var cfg, cfgErr = vwire.LoadConfig(*_config)
	if cfgErr != nil {
		log.Fatal("Can't load station profile", "file", *_config, "err", cfgErr)
	}
	if !cfg.Radio.RX.Defined() {
		log.Fatal("Station profile has no receive pin", "file", *_config)
	}

	var pin, pinErr = vwire.RequestInputPin(cfg.Radio.RX.Chip, cfg.Radio.RX.Line)
	if pinErr != nil {
		log.Fatal("Can't open receive pin",
			"gpiochip", cfg.Radio.RX.Chip, "line", cfg.Radio.RX.Line, "err", pinErr)
	}
	defer pin.Close()

	var rx = vwire.NewReceiver(pin)
	rx.Begin()

	var modem, modemErr = vwire.NewModem(cfg.Modem, nil, rx)
	if modemErr != nil {
		log.Fatal("Bad modem settings", "err", modemErr)
	}
	modem.Start()
	defer modem.Stop()

	var rxlog *vwire.RxLogger
	if cfg.RxLog.Path != "" {
		rxlog = vwire.NewRxLogger(cfg.RxLog.Daily, cfg.RxLog.Path)
		defer rxlog.Close()
	}

	var stop = make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	log.Info("Listening", "bit_rate", cfg.Modem.BitRate)

	var buf [vwire.PAYLOAD_MAX]byte
	var seq = 0
	for {
		select {
		case <-stop:
			var good, bad = rx.Stats()
			log.Info("Receiver statistics", "good", good, "bad", bad)
			if pin.Err() != nil {
				log.Error("Receive pin reported trouble", "err", pin.Err())
				os.Exit(1)
			}
			return
		default:
		}
		if !rx.Await(200 * time.Millisecond) {
			continue
		}
		var n, ok = rx.Recv(buf[:])
		rxlog.Write(buf[:n], ok)
		if !ok && !*_bad {
			continue
		}
		seq++
		fmt.Printf("%4d %s %s\n", seq, vwire.IfThenElse(ok, " ok", "BAD"), vwire.Printable(buf[:n]))
		if *_hexdisplay {
			fmt.Printf("          %s\n", hex.EncodeToString(buf[:n]))
		}
	}
}
