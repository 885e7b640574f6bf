package vwire

import (
	"sync"
	"time"
)

/*-------------------------------------------------------------
 *
 * Purpose:	Tie a transmitter and a receiver to a shared bit
 *		clock.
 *
 *		The original ran off a hardware timer interrupt at 8
 *		times the bit rate.  Here the same handler body is
 *		Tick, and Start drives it from a time.Ticker at the
 *		equivalent interval.  Hosts with their own scheduler
 *		can skip Start and call Tick themselves.
 *
 *		Operation is half duplex.  While the transmitter is
 *		draining a frame the receive pin is not sampled and the
 *		pll does not run, so a modem never hears itself.
 *
 *--------------------------------------------------------------*/

type ModemConfig struct {
	// BitRate is the over-the-air rate in bits per second.
	// Classic hardware tops out around 10000; 2000 is the safe
	// choice for the cheap regenerative receivers.
	BitRate uint16 `yaml:"bit_rate"`

	// ClockHz is the reference clock for the timer arithmetic.
	// Zero means DEFAULT_CLOCK_HZ.
	ClockHz uint32 `yaml:"clock_hz"`

	// MaxTicks caps the timer compare value, selecting between
	// 8 and 16 bit counters.  Zero means 16 bit.
	MaxTicks uint16 `yaml:"max_ticks"`
}

type Modem struct {
	tx    *Transmitter
	rx    *Receiver
	rate  uint16
	timer TimerConfig

	mu     sync.Mutex
	ticker *time.Ticker
	quit   chan struct{}
}

// NewModem checks the bit rate fits the clock and couples the
// transmitter and receiver, either of which may be nil for a one
// way station.
func NewModem(cfg ModemConfig, tx *Transmitter, rx *Receiver) (*Modem, error) {
	if tx == nil && rx == nil {
		return nil, ErrNoRadio
	}
	clock := cfg.ClockHz
	if clock == 0 {
		clock = DEFAULT_CLOCK_HZ
	}
	max_ticks := cfg.MaxTicks
	if max_ticks == 0 {
		max_ticks = TIMER_MAX_TICKS_16BIT
	}
	timer, err := TimerSetup(clock, cfg.BitRate, max_ticks)
	if err != nil {
		return nil, err
	}
	return &Modem{tx: tx, rx: rx, rate: cfg.BitRate, timer: timer}, nil
}

// TickInterval is how often Tick must run: 8 ticks per bit.
func (m *Modem) TickInterval() time.Duration {
	return time.Duration(uint64(time.Second) / (uint64(m.rate) * SAMPLES_PER_BIT))
}

// TimerConfig reports the prescaler and compare value the bit
// rate worked out to, for anyone programming a real counter.
func (m *Modem) TimerConfig() TimerConfig {
	return m.timer
}

/*-------------------------------------------------------------
 *
 * Name:	Tick
 *
 * Purpose:	One interval of the bit clock, 8 per bit period.
 *
 * Description:	Ordering inside a tick is load bearing.  The pin is
 *		sampled first so transmitter work doesn't skew the
 *		sample point.  The transmitter goes next, before the
 *		pll, to keep its bit jitter down.  The pll runs last,
 *		and its gate is evaluated again rather than reused:
 *		on the tick where the transmitter drains, the pll
 *		therefore runs once on the stale sample latched before
 *		transmission began.  Receivers shrug this off and it
 *		keeps the handler faithful to the original's.
 *
 *--------------------------------------------------------------*/

func (m *Modem) Tick() {
	if m.tx != nil {
		m.tx.mu.Lock()
	}
	if m.rx != nil {
		m.rx.mu.Lock()
	}

	if m.rx != nil && m.rx.enabled && (m.tx == nil || !m.tx.enabled) {
		m.rx.sample_pin()
	}

	if m.tx != nil {
		m.tx.tick()
	}

	if m.rx != nil && m.rx.enabled && (m.tx == nil || !m.tx.enabled) {
		m.rx.pll()
	}

	if m.rx != nil {
		m.rx.mu.Unlock()
	}
	if m.tx != nil {
		m.tx.mu.Unlock()
	}
}

// Start drives Tick from a time.Ticker until Stop.  Calling it on
// a running modem does nothing.
func (m *Modem) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ticker != nil {
		return
	}
	m.ticker = time.NewTicker(m.TickInterval())
	m.quit = make(chan struct{})
	go m.run(m.ticker, m.quit)
}

func (m *Modem) run(ticker *time.Ticker, quit chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Stop halts the ticker.  Pending transmit or receive state is
// left where it was; Start picks it back up.
func (m *Modem) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ticker == nil {
		return
	}
	m.ticker.Stop()
	close(m.quit)
	m.ticker = nil
}
