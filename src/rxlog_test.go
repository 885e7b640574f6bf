package vwire

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func read_log_rows(t *testing.T, path string) [][]string {
	t.Helper()

	var data, err = os.ReadFile(path)
	require.NoError(t, err)

	var rows, parseErr = csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, parseErr)
	return rows
}

func TestRxLogDailyNameAndRows(t *testing.T) {
	var dir = t.TempDir()

	var l = NewRxLogger(true, dir)
	l.Write([]byte("hi"), true)
	l.Write([]byte{0x01, 0x02}, false)
	l.Close()

	var entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}\.log$`, entries[0].Name())

	var rows = read_log_rows(t, filepath.Join(dir, entries[0].Name()))
	require.Len(t, rows, 3, "header plus one row per frame")

	assert.Equal(t, []string{"utime", "isotime", "length", "status", "payload", "text"}, rows[0])

	var _, timeErr = time.Parse("2006-01-02T15:04:05Z", rows[1][1])
	assert.NoError(t, timeErr, "isotime column should parse")
	assert.Equal(t, "2", rows[1][2])
	assert.Equal(t, "ok", rows[1][3])
	assert.Equal(t, "6869", rows[1][4])
	assert.Equal(t, "hi", rows[1][5])

	assert.Equal(t, "bad", rows[2][3], "frames failing the checksum are logged too")
	assert.Equal(t, "0102", rows[2][4])
	assert.Equal(t, "..", rows[2][5], "unprintable bytes become dots")
}

func TestRxLogSingleFileAppendsWithoutSecondHeader(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "rx.log")

	var l = NewRxLogger(false, path)
	l.Write([]byte("one"), true)
	l.Close()

	var l2 = NewRxLogger(false, path)
	l2.Write([]byte("two"), true)
	l2.Close()

	var rows = read_log_rows(t, path)
	require.Len(t, rows, 3, "reopening should append, not rewrite the header")
	assert.Equal(t, "one", rows[1][5])
	assert.Equal(t, "two", rows[2][5])
}

func TestRxLogCreatesDirectory(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "logs")

	var l = NewRxLogger(true, dir)
	l.Write([]byte("x"), true)
	l.Close()

	var stat, err = os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, stat.IsDir())

	var entries, readErr = os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1)
}

func TestRxLogDisabled(t *testing.T) {
	var l = NewRxLogger(false, "")
	l.Write([]byte("dropped"), true)
	l.Close()

	var nothing *RxLogger
	nothing.Write([]byte("dropped"), true)
	nothing.Close()
}
