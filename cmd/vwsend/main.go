// vwsend - transmit frames over an ASK/OOK radio link.
//
// Loads a station profile, keys the radio and sends each command
// line argument as one frame.  With no arguments it sends lines
// read from stdin, which makes it useful at the end of a pipe.
package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	vwire "github.com/k2talus/vwire/src"
)

var _config = pflag.StringP("config", "c", "vwire.yaml", "Station profile to load.")
var _count = pflag.IntP("count", "n", 1, "Send the whole message sequence this many times.")
var _pause = pflag.Int("pause", 0, "Milliseconds of silence between frames.")
var _version = pflag.BoolP("version", "V", false, "Print version information and exit.")
var help = pflag.Bool("help", false, "Display help text.")

func usage() {
	fmt.Fprintf(os.Stderr, "%s - send frames over an ASK/OOK radio link\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Usage: %s [options] [message ...]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Each message argument goes out as one frame.  With no\n")
	fmt.Fprintf(os.Stderr, "arguments, lines from stdin are sent instead.\n")
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
	if !cfg.Radio.TX.Defined() {
		log.Fatal("Station profile has no transmit pin", "file", *_config)
	}

	var pin, pinErr = vwire.RequestOutputPin(cfg.Radio.TX.Chip, cfg.Radio.TX.Line)
	if pinErr != nil {
		log.Fatal("Can't open transmit pin",
			"gpiochip", cfg.Radio.TX.Chip, "line", cfg.Radio.TX.Line, "err", pinErr)
	}
	defer pin.Close()

	var ptt, pttErr = cfg.PTT.Open()
	if pttErr != nil {
		log.Fatal("Can't open PTT", "err", pttErr)
	}
	defer ptt.Close()

	var tx = vwire.NewTransmitter(pin)
	tx.UsePTT(ptt)

	var modem, modemErr = vwire.NewModem(cfg.Modem, tx, nil)
	if modemErr != nil {
		log.Fatal("Bad modem settings", "err", modemErr)
	}
	modem.Start()
	defer modem.Stop()

	var failed = 0
	for round := 0; round < *_count; round++ {
		if pflag.NArg() > 0 {
			for _, msg := range pflag.Args() {
				failed += send_one(tx, []byte(msg))
			}
		} else {
			var scanner = bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if len(scanner.Bytes()) == 0 {
					continue
				}
				failed += send_one(tx, scanner.Bytes())
			}
			if scanner.Err() != nil {
				log.Error("Trouble reading stdin", "err", scanner.Err())
				failed++
			}
		}
	}
	tx.Await()

	if pin.Err() != nil {
		log.Error("Transmit pin reported trouble", "err", pin.Err())
		failed++
	}
	if ptt.Err() != nil {
		log.Error("PTT reported trouble", "err", ptt.Err())
		failed++
	}

	log.Info("Done", "frames", tx.MessagesSent())
	if failed > 0 {
		os.Exit(1)
	}
}

// send_one arms one frame and waits for it to clear the air.
// Returns 1 on rejection so the caller can tally failures.
func send_one(tx *vwire.Transmitter, msg []byte) int {
	if err := tx.Send(msg); err != nil {
		log.Error("Frame rejected", "len", len(msg), "err", err)
		return 1
	}
	tx.Await()
	if *_pause > 0 {
		time.Sleep(time.Duration(*_pause) * time.Millisecond)
	}
	return 0
}
