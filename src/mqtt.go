package vwire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

/*-------------------------------------------------------------
 *
 * Purpose:	Bridge the modem to an MQTT broker.
 *
 *		Every frame heard on the air is published as a JSON
 *		document to <prefix>/rx, including frames that fail
 *		the checksum (checksum_ok says which).  Anything
 *		published by other clients to <prefix>/tx is keyed
 *		up and sent, raw bytes in, raw bytes on the air.
 *
 *		The subscription is re-armed from the OnConnect
 *		handler because a clean-session broker forgets it
 *		across reconnects.
 *
 *--------------------------------------------------------------*/

// RxFrame is the document published for each frame heard on the air.
type RxFrame struct {
	Time       time.Time `json:"time"`
	Length     int       `json:"length"`
	Payload    string    `json:"payload"`
	PayloadHex string    `json:"payload_hex"`
	ChecksumOK bool      `json:"checksum_ok"`
	FramesGood uint16    `json:"frames_good"`
	FramesBad  uint16    `json:"frames_bad"`
}

type MQTTGateway struct {
	modem   *Modem
	cfg     MQTTConfig
	client  mqtt.Client
	rxlog   *RxLogger
	metrics *Metrics

	mu      sync.Mutex
	running bool
	quit    chan struct{}
}

// mqtt_client_id returns the configured client id, or makes one up.
// Random ids let several stations share a profile without the broker
// kicking them off each other's session.
func mqtt_client_id(cfg *MQTTConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return "vwire-" + uuid.New().String()
}

// NewMQTTGateway connects to the broker and arms the transmit
// subscription.  It does not return until the first connection
// succeeds; the retry handling after that is paho's.
func NewMQTTGateway(m *Modem, cfg MQTTConfig) (*MQTTGateway, error) {
	var g = &MQTTGateway{
		modem: m,
		cfg:   cfg,
		quit:  make(chan struct{}),
	}

	var opts = mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(mqtt_client_id(&cfg))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info("Connected to MQTT broker", "broker", cfg.Broker)
		g.subscribe(c)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Error("MQTT connection lost", "err", err)
	})
	opts.SetReconnectingHandler(func(c mqtt.Client, o *mqtt.ClientOptions) {
		log.Info("Reconnecting to MQTT broker", "broker", cfg.Broker)
	})

	g.client = mqtt.NewClient(opts)
	if token := g.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return g, nil
}

// UseRxLog attaches a frame log.  Everything heard is also logged
// there, same as the other bridges.
func (g *MQTTGateway) UseRxLog(l *RxLogger) {
	g.rxlog = l
}

// UseMetrics attaches Prometheus counters.
func (g *MQTTGateway) UseMetrics(m *Metrics) {
	g.metrics = m
}

// Start launches the receive side.  Harmless when the modem has no
// receiver; the transmit subscription still works.
func (g *MQTTGateway) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return
	}
	g.running = true
	if g.modem.rx != nil {
		go g.deliver_loop(g.quit)
	}
}

// Close stops delivery and hangs up on the broker.
func (g *MQTTGateway) Close() {
	g.mu.Lock()
	if g.running {
		g.running = false
		close(g.quit)
	}
	g.mu.Unlock()

	if g.client.IsConnected() {
		g.client.Disconnect(250)
		log.Info("Disconnected from MQTT broker")
	}
}

func (g *MQTTGateway) subscribe(c mqtt.Client) {
	if g.modem.tx == nil {
		return
	}
	var topic = g.cfg.TopicPrefix + "/tx"
	var token = c.Subscribe(topic, byte(g.cfg.QoS), g.on_tx_message)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Error("MQTT subscribe failed", "topic", topic, "err", token.Error())
		} else {
			log.Info("Listening for transmit requests", "topic", topic)
		}
	}()
}

func (g *MQTTGateway) on_tx_message(_ mqtt.Client, msg mqtt.Message) {
	var payload = msg.Payload()
	if err := g.modem.tx.Send(payload); err != nil {
		log.Error("Rejecting transmit request", "topic", msg.Topic(), "len", len(payload), "err", err)
		return
	}
	g.metrics.CountSent(len(payload))
	log.Debug("Transmitting frame from MQTT", "len", len(payload))
}

func (g *MQTTGateway) deliver_loop(quit chan struct{}) {
	var buf [PAYLOAD_MAX]byte
	for {
		select {
		case <-quit:
			return
		default:
		}
		if !g.modem.rx.Await(200 * time.Millisecond) {
			continue
		}
		var n, ok = g.modem.rx.Recv(buf[:])
		g.rxlog.Write(buf[:n], ok)
		g.metrics.CountReceived(n, ok)
		g.publish_rx(buf[:n], ok)
	}
}

func (g *MQTTGateway) publish_rx(payload []byte, ok bool) {
	var good, bad = g.modem.rx.Stats()
	var data, err = rx_frame_json(payload, ok, good, bad)
	if err != nil {
		log.Error("Can't marshal received frame", "err", err)
		return
	}
	var topic = g.cfg.TopicPrefix + "/rx"
	var token = g.client.Publish(topic, byte(g.cfg.QoS), false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Error("MQTT publish failed", "topic", topic, "err", token.Error())
		}
	}()
}

// rx_frame_json renders the published document for one frame.
func rx_frame_json(payload []byte, ok bool, good uint16, bad uint16) ([]byte, error) {
	return json.Marshal(RxFrame{
		Time:       time.Now().UTC(),
		Length:     len(payload),
		Payload:    Printable(payload),
		PayloadHex: hex.EncodeToString(payload),
		ChecksumOK: ok,
		FramesGood: good,
		FramesBad:  bad,
	})
}
