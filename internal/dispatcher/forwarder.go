package dispatcher

import "topicbroker/internal/wire"

// forward computes pub's matching subscriber set and writes one framed
// FORWARD_UDP message to each, in admission order (spec §4.6). A write
// failure on one recipient is logged and that connection is left for its
// subscriberLoop goroutine to report as a disconnect on its next read;
// other recipients are unaffected.
func (d *Dispatcher) forward(pub publication) {
	recipients := d.reg.Matching(pub.topic)
	if len(recipients) == 0 {
		return
	}

	frame, err := wire.EncodeForwardUDP(wire.ForwardUDP{
		SenderIP:   pub.senderIP,
		SenderPort: pub.senderPort,
		Topic:      pub.topic,
		DataType:   pub.dataType,
		Content:    pub.content,
	})
	if err != nil {
		d.logger.Warn().Err(err).Str("topic", pub.topic).Msg("failed to encode forward frame")
		return
	}

	for _, handle := range recipients {
		conn, ok := d.conns[handle]
		if !ok {
			continue
		}
		if err := wire.WriteAll(conn, frame); err != nil {
			d.logger.Debug().Err(err).Msg("write failed, connection left for teardown on next read")
			continue
		}
		d.metricsSink().PublicationForwarded()
	}
}
