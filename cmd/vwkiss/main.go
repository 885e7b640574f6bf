// vwkiss - KISS TNC daemon for an ASK/OOK radio link.
//
// Loads a station profile, brings up the modem and presents it to
// applications as a KISS TNC, either on a pseudo terminal behind a
// stable symlink or on a real serial port.  Runs until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	vwire "github.com/k2talus/vwire/src"
)

var _config = pflag.StringP("config", "c", "vwire.yaml", "Station profile to load.")
var _version = pflag.BoolP("version", "V", false, "Print version information and exit.")
var help = pflag.Bool("help", false, "Display help text.")

func usage() {
	fmt.Fprintf(os.Stderr, "%s - KISS TNC daemon for an ASK/OOK radio link\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "The client side device, debug level and everything else\n")
	fmt.Fprintf(os.Stderr, "come from the station profile.\n")
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
	if !cfg.Radio.TX.Defined() && !cfg.Radio.RX.Defined() {
		log.Fatal("Station profile has neither a transmit nor a receive pin", "file", *_config)
	}

	log.Info("vwkiss starting", "version", vwire.Version(), "profile", *_config)

	var tx *vwire.Transmitter
	var ptt *vwire.PTT
	var pin_out *vwire.GPIOOutputPin
	if cfg.Radio.TX.Defined() {
		var err error
		pin_out, err = vwire.RequestOutputPin(cfg.Radio.TX.Chip, cfg.Radio.TX.Line)
		if err != nil {
			log.Fatal("Can't open transmit pin",
				"gpiochip", cfg.Radio.TX.Chip, "line", cfg.Radio.TX.Line, "err", err)
		}
		ptt, err = cfg.PTT.Open()
		if err != nil {
			log.Fatal("Can't open PTT", "err", err)
		}
		tx = vwire.NewTransmitter(pin_out)
		tx.UsePTT(ptt)
	}

	var rx *vwire.Receiver
	var pin_in *vwire.GPIOInputPin
	if cfg.Radio.RX.Defined() {
		var err error
		pin_in, err = vwire.RequestInputPin(cfg.Radio.RX.Chip, cfg.Radio.RX.Line)
		if err != nil {
			log.Fatal("Can't open receive pin",
				"gpiochip", cfg.Radio.RX.Chip, "line", cfg.Radio.RX.Line, "err", err)
		}
		rx = vwire.NewReceiver(pin_in)
		rx.Begin()
	}

	var modem, modemErr = vwire.NewModem(cfg.Modem, tx, rx)
	if modemErr != nil {
		log.Fatal("Bad modem settings", "err", modemErr)
	}

	var k *vwire.KISS
	var kissErr error
	if cfg.KISS.Device != "" {
		k, kissErr = vwire.NewKISSOverSerial(modem, cfg.KISS.Device, cfg.KISS.Baud)
	} else {
		k, kissErr = vwire.NewKISSOverPty(modem, cfg.KISS.Symlink)
	}
	if kissErr != nil {
		log.Fatal("Can't bring up the KISS TNC", "err", kissErr)
	}
	k.SetDebug(cfg.KISS.Debug)

	if cfg.RxLog.Path != "" {
		var rxlog = vwire.NewRxLogger(cfg.RxLog.Daily, cfg.RxLog.Path)
		defer rxlog.Close()
		k.UseRxLog(rxlog)
	}
	if cfg.Metrics.Enabled {
		k.UseMetrics(vwire.NewMetrics(prometheus.DefaultRegisterer))
		go func() {
			log.Info("Serving Prometheus metrics", "listen", cfg.Metrics.Listen)
			if err := vwire.ServeMetrics(cfg.Metrics.Listen); err != nil {
				log.Error("Metrics endpoint failed", "listen", cfg.Metrics.Listen, "err", err)
			}
		}()
	}

	modem.Start()
	k.Start()

	var stop = make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	k.Close()
	modem.Stop()

	var failed = false
	if rx != nil {
		var good, bad = rx.Stats()
		log.Info("Receiver statistics", "good", good, "bad", bad)
		if pin_in.Err() != nil {
			log.Error("Receive pin reported trouble", "err", pin_in.Err())
			failed = true
		}
		pin_in.Close()
	}
	if tx != nil {
		log.Info("Transmitter statistics", "sent", tx.MessagesSent())
		if pin_out.Err() != nil {
			log.Error("Transmit pin reported trouble", "err", pin_out.Err())
			failed = true
		}
		if ptt.Err() != nil {
			log.Error("PTT reported trouble", "err", ptt.Err())
			failed = true
		}
		ptt.Close()
		pin_out.Close()
	}
	if failed {
		os.Exit(1)
	}
}
