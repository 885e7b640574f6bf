package vwire

/*------------------------------------------------------------------
 *
 * Purpose:	Save received frames to a log file.
 *
 * Description: Rather than a raw binary capture, write one CSV row
 *		per frame for easy reading and later processing.
 *
 *		There are two alternatives here.
 *
 *		A full file path keeps everything in one file, sized
 *		by logrotate or similar.
 *
 *		A directory gets automatic daily file names created
 *		inside it.
 *
 *		Use one or the other but not both.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// File names and timestamps are UTC so logs from stations in
// different places line up.
const rxlog_daily_pattern = "%Y-%m-%d.log"

const rxlog_header = "utime,isotime,length,status,payload,text\n"

type RxLogger struct {
	daily      bool
	path       string
	fp         *os.File
	open_fname string
	fname_fmt  *strftime.Strftime
}

/*------------------------------------------------------------------
 *
 * Name:	NewRxLogger
 *
 * Purpose:	Set up frame logging.
 *
 * Inputs:	daily	- True for automatic daily names, in which
 *			  case path is a directory.  When false, path
 *			  is the file name.
 *
 *		path	- Log file name or just directory.
 *			  Use "." for current directory.
 *			  Empty string disables the feature.
 *
 * Description:	The file is kept open between frames, not reopened
 *		for every row.  With daily names the file rolls over
 *		when the date changes.
 *
 *------------------------------------------------------------------*/

func NewRxLogger(daily bool, path string) *RxLogger {
	var l = &RxLogger{daily: daily}

	var fname_fmt, fmtErr = strftime.New(rxlog_daily_pattern)
	Assert(fmtErr == nil)
	l.fname_fmt = fname_fmt

	if len(path) == 0 {
		return l
	}

	if daily {
		var stat, statErr = os.Stat(path)

		if statErr == nil {
			if stat.IsDir() {
				l.path = path
			} else {
				log.Error("Log file location is not a directory, using \".\" instead", "path", path)
				l.path = "."
			}
		} else {
			// Doesn't exist.  Try to create it.  The parent must
			// exist already; this is not mkdir -p.
			var mkdirErr = os.Mkdir(path, 0755)
			if mkdirErr == nil {
				log.Info("Created log file location", "path", path)
				l.path = path
			} else {
				log.Error("Failed to create log file location, using \".\" instead", "path", path, "err", mkdirErr)
				l.path = "."
			}
		}
	} else {
		log.Info("Logging received frames", "file", path)
		l.path = path
	}

	return l
}

// Write appends one received frame to the log, opening or rolling
// the file as needed.  Best effort: failures are logged, not
// returned, so a full disk doesn't take the modem down.
func (l *RxLogger) Write(payload []byte, valid bool) {
	if l == nil || len(l.path) == 0 {
		return
	}

	var now = time.Now().UTC()

	if l.daily {
		var fname = l.fname_fmt.FormatString(now)

		// Roll over when the date changes.
		if l.fp != nil && fname != l.open_fname {
			l.Close()
		}

		if l.fp == nil {
			var full_path = filepath.Join(l.path, fname)
			if !l.open(full_path) {
				return
			}
			l.open_fname = fname
		}
	} else {
		if l.fp == nil {
			if !l.open(l.path) {
				// Don't keep trying on every frame.
				l.path = ""
				return
			}
		}
	}

	var w = csv.NewWriter(l.fp)
	w.Write([]string{
		strconv.Itoa(int(now.Unix())),
		now.Format("2006-01-02T15:04:05Z"),
		strconv.Itoa(len(payload)),
		IfThenElse(valid, "ok", "bad"),
		hex.EncodeToString(payload),
		Printable(payload),
	})
	w.Flush()

	if w.Error() != nil {
		log.Error("Frame log write failed", "err", w.Error())
	}
}

// open opens for append, writing the spreadsheet header only when
// this will be the first line.
func (l *RxLogger) open(full_path string) bool {
	var _, statErr = os.Stat(full_path)
	var already_there = statErr == nil

	log.Info("Opening frame log", "file", full_path)

	var f, openErr = os.OpenFile(full_path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	if openErr != nil {
		log.Error("Can't open frame log for write", "file", full_path, "err", openErr)
		return false
	}
	l.fp = f

	if !already_there {
		fmt.Fprintf(l.fp, rxlog_header)
	}
	return true
}

// Close closes any open log file.  Called when exiting or when the
// date changes.
func (l *RxLogger) Close() {
	if l == nil || l.fp == nil {
		return
	}
	log.Info("Closing frame log", "file", IfThenElse(l.daily, l.open_fname, l.path))
	l.fp.Close()
	l.fp = nil
	l.open_fname = ""
}

// Printable renders payload bytes for display or logging, dotting
// out anything that would upset a terminal or a spreadsheet.
func Printable(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		if c >= 0x20 && c < 0x7f && c != ',' && c != '"' {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
