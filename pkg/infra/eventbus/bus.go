// Package eventbus is the durable event log: an embedded, loopback-only NATS
// server with JetStream enabled, so every event an aggregate produces is
// appended to an on-disk stream before anything downstream (a projection
// writer, a future subscriber) ever sees it. Nothing here ever dials an
// external network address; the whole point is that this engine runs
// air-gapped.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki"
)

// StreamName is the single JetStream stream every bounded context's events
// are appended to, keeping one manifest canonical across contexts.
const StreamName = "CIM_KEYS_EVENTS"

// SubjectPrefix is the root of the subject hierarchy: cim.keys.<context>.events.<kind>.
const SubjectPrefix = "cim.keys"

// Config controls the embedded server.
type Config struct {
	// Host/Port bind the loopback listener. Port -1 lets the OS assign an
	// ephemeral port, which is what production bootstrap runs should use;
	// zero selects the NATS default port 4222, and a fixed port is only
	// useful for tests that want a predictable URL.
	Host string
	Port int

	// StoreDir is where JetStream persists the stream's file store. Empty
	// means "mint a fresh temporary directory," which is fine for a single
	// bootstrap run but not for a log that must survive a restart.
	StoreDir string
}

// DefaultConfig binds an ephemeral loopback port with no fixed store
// directory, the shape used by a one-shot bootstrap invocation.
func DefaultConfig() Config {
	return Config{Host: "127.0.0.1", Port: -1}
}

// Bus owns the embedded NATS server and a JetStream-backed connection to it.
type Bus struct {
	srv *server.Server
	nc  *nats.Conn
	js  nats.JetStreamContext

	versionMu sync.Mutex
	versions  map[string]uint64 // per bounded-context Aggregate-Version counter
}

// Start launches the embedded server, waits for it to accept connections,
// and ensures StreamName exists before returning.
func Start(cfg Config) (*Bus, error) {
	storeDir := cfg.StoreDir
	if storeDir == "" {
		// The server's own fallback is a fixed path under the OS temp dir,
		// which silently shares (and replays) stream state across unrelated
		// runs; a fresh directory keeps each Start isolated.
		dir, err := os.MkdirTemp("", "cim-keys-events-")
		if err != nil {
			return nil, fmt.Errorf("eventbus: create store dir: %w", err)
		}
		storeDir = dir
	}

	opts := &server.Options{
		Host:      cfg.Host,
		Port:      cfg.Port,
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("eventbus: start embedded server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("eventbus: embedded server did not become ready")
	}

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("eventbus: connect to embedded server: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		srv.Shutdown()
		return nil, fmt.Errorf("eventbus: open jetstream context: %w", err)
	}

	if _, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}); err != nil {
		nc.Close()
		srv.Shutdown()
		return nil, fmt.Errorf("eventbus: create stream: %w", err)
	}

	return &Bus{srv: srv, nc: nc, js: js, versions: make(map[string]uint64)}, nil
}

// Close closes the connection and shuts the embedded server down.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
	if b.srv != nil {
		b.srv.Shutdown()
	}
}

// ClientURL returns the loopback URL other in-process NATS clients (none
// cross a process boundary in this engine) would connect to.
func (b *Bus) ClientURL() string {
	return b.srv.ClientURL()
}

type envelope struct {
	EventID       string          `json:"event_id"`
	EventKind     pki.EventKind   `json:"event_kind"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id"`
	MessageID     string          `json:"message_id"`
	Payload       json.RawMessage `json:"payload"`
}

// Subject returns the subject an event of the given context/kind publishes
// under, e.g. "cim.keys.pki.events.CertificateIssued".
func Subject(boundedContext string, kind pki.EventKind) string {
	return fmt.Sprintf("%s.%s.events.%s", SubjectPrefix, boundedContext, kind)
}

// Append publishes e to the durable stream under boundedContext and returns
// the stream sequence number JetStream assigned it. Same event republished
// is still appended again — deduplication is the aggregate's job via
// idempotency-by-identity, not the bus's.
func (b *Bus) Append(ctx context.Context, boundedContext string, e pki.Event) (uint64, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return 0, fmt.Errorf("eventbus: marshal payload: %w", err)
	}
	data, err := json.Marshal(envelope{
		EventID:       e.EventID.String(),
		EventKind:     e.Kind,
		CorrelationID: e.Identity.CorrelationID.String(),
		CausationID:   e.Identity.CausationID.String(),
		MessageID:     e.Identity.MessageID.String(),
		Payload:       payload,
	})
	if err != nil {
		return 0, fmt.Errorf("eventbus: marshal envelope: %w", err)
	}

	b.versionMu.Lock()
	b.versions[boundedContext]++
	version := b.versions[boundedContext]
	b.versionMu.Unlock()

	msg := nats.NewMsg(Subject(boundedContext, e.Kind))
	msg.Data = data
	msg.Header.Set("Event-Id", e.EventID.String())
	msg.Header.Set("Correlation-Id", e.Identity.CorrelationID.String())
	msg.Header.Set("Causation-Id", e.Identity.CausationID.String())
	msg.Header.Set("Aggregate-Version", strconv.FormatUint(version, 10))
	msg.Header.Set("Content-Type", "application/json")

	ack, err := b.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return 0, fmt.Errorf("eventbus: publish: %w", err)
	}
	return ack.Sequence, nil
}

// ReadAll drains every event ever appended under boundedContext, in stream
// order, via an ephemeral pull consumer. Used to rebuild a projection from
// the durable log rather than trusting an in-memory copy after a restart.
func (b *Bus) ReadAll(ctx context.Context, boundedContext string) ([]pki.Event, error) {
	sub, err := b.js.PullSubscribe(Subject(boundedContext, "*"), "", nats.DeliverAll(), nats.AckNone())
	if err != nil {
		return nil, fmt.Errorf("eventbus: pull subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	var out []pki.Event
	for {
		msgs, err := sub.Fetch(256, nats.MaxWait(500*time.Millisecond))
		if err != nil {
			if err == nats.ErrTimeout || err == context.DeadlineExceeded {
				break
			}
			return nil, fmt.Errorf("eventbus: fetch: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
		for _, msg := range msgs {
			ev, err := decodeEnvelope(msg.Data)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
	}
	return out, nil
}

func decodeEnvelope(data []byte) (pki.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return pki.Event{}, fmt.Errorf("eventbus: decode envelope: %w", err)
	}

	msgIdentity, err := pki.ParseMessageIdentity(env.CorrelationID, env.CausationID, env.MessageID)
	if err != nil {
		return pki.Event{}, fmt.Errorf("eventbus: parse identity: %w", err)
	}

	payload, err := pki.DecodePayload(env.EventKind, env.Payload)
	if err != nil {
		return pki.Event{}, err
	}

	eventID, err := pki.ParseEventID(env.EventID)
	if err != nil {
		return pki.Event{}, fmt.Errorf("eventbus: parse event id: %w", err)
	}

	return pki.Event{EventID: eventID, Kind: env.EventKind, Identity: msgIdentity, Payload: payload}, nil
}
