// Package dispatcher is the broker's single-threaded event loop, realized
// in Go as one goroutine that owns all registry state, fed by a handful of
// I/O goroutines that do nothing but blocking reads and forward what they
// see as channel values. Run creates one channel per event source and
// selects over all of them.
package dispatcher

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"topicbroker/internal/registry"
	"topicbroker/internal/udppub"
	"topicbroker/internal/wire"
)

// AuditSink records connect/disconnect/duplicate-identity events for
// offline inspection. It is never consulted for matching or delivery
// decisions; a nil sink silently discards events.
type AuditSink interface {
	RecordConnect(identity, remoteAddr string)
	RecordDisconnect(identity string)
	RecordDuplicate(identity, remoteAddr string)
}

// MetricsSink observes dispatcher activity for external monitoring. A nil
// sink silently discards observations.
type MetricsSink interface {
	SubscriberConnected()
	SubscriberDisconnected()
	PublicationForwarded()
	PublicationDropped(reason string)
	DuplicateIdentityRejected()
}

// admission is what the TCP accept+handshake goroutine reports for one
// accepted connection: either a successfully identified subscriber, or a
// failure that already closed conn itself.
type admission struct {
	conn       net.Conn
	identity   string
	remoteAddr string
	failed     bool
}

type subscriberEventKind int

const (
	eventSubscribe subscriberEventKind = iota
	eventUnsubscribe
	eventDisconnect
)

// subscriberEvent is what a per-connection frame-reader goroutine reports:
// a subscribe/unsubscribe request, or a disconnect triggered by EOF, I/O
// error, or an unrecognized frame type.
type subscriberEvent struct {
	handle registry.Handle
	kind   subscriberEventKind
	topic  string
}

// publication is a decoded, not-yet-matched UDP datagram, ready for the
// forwarder.
type publication struct {
	topic      string
	dataType   uint8
	content    []byte
	senderIP   uint32
	senderPort uint16
}

// Dispatcher owns the subscriber registry and every live net.Conn. All of
// its methods that touch that state are called exclusively from Run's
// select loop; no field here is protected by a mutex, by design.
type Dispatcher struct {
	logger  zerolog.Logger
	audit   AuditSink
	metrics MetricsSink

	reg        *registry.Registry
	conns      map[registry.Handle]net.Conn
	nextHandle registry.Handle

	ipLimiters map[string]*rate.Limiter
	ipRate     rate.Limit
	ipBurst    int

	onReady func(tcpAddr, udpAddr net.Addr)
}

// Option configures optional Dispatcher behavior.
type Option func(*Dispatcher)

// WithAudit attaches an AuditSink. Omit for no audit trail.
func WithAudit(a AuditSink) Option { return func(d *Dispatcher) { d.audit = a } }

// WithMetrics attaches a MetricsSink. Omit for no metrics.
func WithMetrics(m MetricsSink) Option { return func(d *Dispatcher) { d.metrics = m } }

// WithUDPRateLimit bounds how many datagrams per second a single source IP
// may have decoded and forwarded; excess datagrams are dropped silently
// before they reach the forwarder.
func WithUDPRateLimit(perSecond float64, burst int) Option {
	return func(d *Dispatcher) {
		d.ipRate = rate.Limit(perSecond)
		d.ipBurst = burst
	}
}

// WithReadyNotify registers a callback invoked once both listeners are
// bound, before the select loop starts. Mainly useful for tests that need
// the OS-assigned port when binding to ":0".
func WithReadyNotify(f func(tcpAddr, udpAddr net.Addr)) Option {
	return func(d *Dispatcher) { d.onReady = f }
}

// New constructs a Dispatcher. logger is used as-is; callers typically pass
// a logger already bound with component/service fields.
func New(logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:     logger,
		reg:        registry.New(),
		conns:      make(map[registry.Handle]net.Conn),
		ipLimiters: make(map[string]*rate.Limiter),
		ipRate:     rate.Limit(50),
		ipBurst:    100,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) auditSink() AuditSink {
	if d.audit == nil {
		return noopAudit{}
	}
	return d.audit
}

func (d *Dispatcher) metricsSink() MetricsSink {
	if d.metrics == nil {
		return noopMetrics{}
	}
	return d.metrics
}

type noopAudit struct{}

func (noopAudit) RecordConnect(string, string)    {}
func (noopAudit) RecordDisconnect(string)         {}
func (noopAudit) RecordDuplicate(string, string)  {}

type noopMetrics struct{}

func (noopMetrics) SubscriberConnected()        {}
func (noopMetrics) SubscriberDisconnected()     {}
func (noopMetrics) PublicationForwarded()       {}
func (noopMetrics) PublicationDropped(string)   {}
func (noopMetrics) DuplicateIdentityRejected()  {}

// Run starts every I/O goroutine and the dispatcher's own select loop, and
// blocks until ctx is cancelled or the admin "exit" command arrives. tcpAddr
// and udpAddr are both the wildcard address on the same port, per spec
// §6.5.
func (d *Dispatcher) Run(ctx context.Context, tcpAddr, udpAddr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tcpLn, err := listenTCP(ctx, tcpAddr)
	if err != nil {
		return fmt.Errorf("dispatcher: tcp listen %s: %w", tcpAddr, err)
	}
	defer tcpLn.Close()

	udpConn, err := listenUDP(ctx, udpAddr)
	if err != nil {
		return fmt.Errorf("dispatcher: udp listen %s: %w", udpAddr, err)
	}
	defer udpConn.Close()

	if d.onReady != nil {
		d.onReady(tcpLn.Addr(), udpConn.LocalAddr())
	}

	adminLines := make(chan string)
	admissions := make(chan admission)
	publications := make(chan publication)
	subEvents := make(chan subscriberEvent)

	go d.adminLoop(ctx, adminLines)
	go d.acceptLoop(ctx, tcpLn, admissions)
	go d.udpLoop(ctx, udpConn, publications)

	d.logger.Info().Str("tcp_addr", tcpAddr).Str("udp_addr", udpAddr).Msg("broker listening")

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil

		case line := <-adminLines:
			if line == "exit" {
				d.shutdown()
				return nil
			}

		case adm := <-admissions:
			if adm.failed {
				continue
			}
			d.handleAdmission(ctx, adm, subEvents)

		case pub := <-publications:
			d.forward(pub)

		case ev := <-subEvents:
			d.handleSubscriberEvent(ev)
		}
	}
}

func (d *Dispatcher) shutdown() {
	for handle, conn := range d.conns {
		identity, ok := d.reg.Identity(handle)
		conn.Close()
		if ok {
			d.logger.Info().Str("identity", identity).Msg(fmt.Sprintf("Client %s disconnected.", identity))
			d.auditSink().RecordDisconnect(identity)
		}
	}
	d.conns = make(map[registry.Handle]net.Conn)
}

// handleAdmission admits a newly-handshaken connection into the registry,
// or rejects it as a duplicate identity, exactly per spec §4.4/§7. On
// success it starts the connection's frame-reader goroutine.
func (d *Dispatcher) handleAdmission(ctx context.Context, adm admission, subEvents chan<- subscriberEvent) {
	d.nextHandle++
	handle := d.nextHandle

	if !d.reg.Admit(handle, adm.identity) {
		d.nextHandle--
		d.logger.Info().Str("identity", adm.identity).Msg(fmt.Sprintf("Client %s already connected.", adm.identity))
		d.auditSink().RecordDuplicate(adm.identity, adm.remoteAddr)
		d.metricsSink().DuplicateIdentityRejected()
		adm.conn.Close()
		return
	}

	d.conns[handle] = adm.conn
	d.logger.Info().Str("identity", adm.identity).Str("remote_addr", adm.remoteAddr).
		Msg(fmt.Sprintf("New client %s connected from %s.", adm.identity, adm.remoteAddr))
	d.auditSink().RecordConnect(adm.identity, adm.remoteAddr)
	d.metricsSink().SubscriberConnected()

	go d.subscriberLoop(ctx, handle, adm.conn, subEvents)
}

func (d *Dispatcher) handleSubscriberEvent(ev subscriberEvent) {
	switch ev.kind {
	case eventSubscribe:
		d.reg.Subscribe(ev.handle, ev.topic)

	case eventUnsubscribe:
		d.reg.Unsubscribe(ev.handle, ev.topic)

	case eventDisconnect:
		identity, ok := d.reg.Disconnect(ev.handle)
		if conn, present := d.conns[ev.handle]; present {
			conn.Close()
			delete(d.conns, ev.handle)
		}
		if ok {
			d.logger.Info().Str("identity", identity).Msg(fmt.Sprintf("Client %s disconnected.", identity))
			d.auditSink().RecordDisconnect(identity)
			d.metricsSink().SubscriberDisconnected()
		}
	}
}

// adminLoop scans stdin line by line and forwards each line on lines. It
// exits when stdin closes or ctx is cancelled.
func (d *Dispatcher) adminLoop(ctx context.Context, lines chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

// acceptLoop accepts TCP connections and spawns a short-lived handshake
// goroutine per connection so that one slow or malicious client can never
// stall the dispatcher (see SPEC_FULL.md §4.5).
func (d *Dispatcher) acceptLoop(ctx context.Context, ln *net.TCPListener, admissions chan<- admission) {
	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				d.logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		conn.SetNoDelay(true)
		go d.handshake(ctx, conn, admissions)
	}
}

func (d *Dispatcher) handshake(ctx context.Context, conn *net.TCPConn, admissions chan<- admission) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	identity, err := wire.ReadClientID(conn)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		select {
		case admissions <- admission{failed: true}:
		case <-ctx.Done():
		}
		return
	}

	adm := admission{conn: conn, identity: identity, remoteAddr: conn.RemoteAddr().String()}
	select {
	case admissions <- adm:
	case <-ctx.Done():
		conn.Close()
	}
}

// subscriberLoop reads subscribe/unsubscribe frames from one admitted
// connection until EOF, I/O error, or an unrecognized frame type, then
// reports a disconnect event.
func (d *Dispatcher) subscriberLoop(ctx context.Context, handle registry.Handle, conn net.Conn, events chan<- subscriberEvent) {
	for {
		hdr, err := wire.ReadHeader(conn)
		if err != nil {
			sendEvent(ctx, events, subscriberEvent{handle: handle, kind: eventDisconnect})
			return
		}

		switch hdr.Type {
		case wire.TypeSubscribe, wire.TypeUnsubscribe:
			msg, err := wire.ReadSubscription(conn, hdr)
			if err != nil {
				sendEvent(ctx, events, subscriberEvent{handle: handle, kind: eventDisconnect})
				return
			}
			kind := eventSubscribe
			if hdr.Type == wire.TypeUnsubscribe {
				kind = eventUnsubscribe
			}
			sendEvent(ctx, events, subscriberEvent{handle: handle, kind: subscriberEventKind(kind), topic: msg.Topic})

		default:
			sendEvent(ctx, events, subscriberEvent{handle: handle, kind: eventDisconnect})
			return
		}
	}
}

func sendEvent(ctx context.Context, events chan<- subscriberEvent, ev subscriberEvent) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// udpLoop receives one datagram at a time, rate-limits by source IP, and
// decodes+forwards well-formed publications. Malformed datagrams and
// rate-limited sources are dropped silently, per spec §4.2/§7.
func (d *Dispatcher) udpLoop(ctx context.Context, conn *net.UDPConn, publications chan<- publication) {
	buf := make([]byte, udppub.TopicFieldLen+1+udppub.MaxContentLen+1)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}

		if !d.allowUDP(addr.IP.String()) {
			d.metricsSink().PublicationDropped("rate_limited")
			continue
		}

		topicName, dataType, content, err := udppub.ParseDatagram(buf[:n])
		if err != nil {
			d.metricsSink().PublicationDropped("malformed")
			continue
		}
		if _, err := udppub.Decode(dataType, content); err != nil {
			d.metricsSink().PublicationDropped("decode_failure")
			continue
		}

		contentCopy := make([]byte, len(content))
		copy(contentCopy, content)

		pub := publication{
			topic:      topicName,
			dataType:   dataType,
			content:    contentCopy,
			senderIP:   ip4ToUint32(addr.IP),
			senderPort: uint16(addr.Port),
		}
		select {
		case publications <- pub:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) allowUDP(ip string) bool {
	limiter, ok := d.ipLimiters[ip]
	if !ok {
		limiter = rate.NewLimiter(d.ipRate, d.ipBurst)
		d.ipLimiters[ip] = limiter
	}
	return limiter.Allow()
}

func ip4ToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}
