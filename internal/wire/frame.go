package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Frame type tags, per the common 5-octet header (len uint32, type uint8).
const (
	TypeClientID    uint8 = 1
	TypeSubscribe   uint8 = 2
	TypeUnsubscribe uint8 = 3
	TypeForwardUDP  uint8 = 4
)

// HeaderLen is the size in bytes of the common frame header.
const HeaderLen = 5

// ClientIDLen is the fixed width of the CLIENT_ID payload field.
const ClientIDLen = 10

// Header is the common 5-octet frame prefix.
type Header struct {
	Len  uint32
	Type uint8
}

// ReadHeader reads and decodes one frame header.
func ReadHeader(r io.Reader) (Header, error) {
	raw, err := ReadExact(r, HeaderLen)
	if err != nil {
		return Header{}, err
	}
	return Header{
		Len:  binary.BigEndian.Uint32(raw[0:4]),
		Type: raw[4],
	}, nil
}

// ReadClientID reads a full CLIENT_ID frame (header already consumed by the
// caller is not assumed — this reads the header itself) and returns the
// subscriber identity.
//
// The wire field is a fixed 10-octet buffer. Per the original
// implementation's C-string semantics, the identity is the prefix up to the
// first NUL byte, or the full 10 octets if none is present.
func ReadClientID(r io.Reader) (string, error) {
	hdr, err := ReadHeader(r)
	if err != nil {
		return "", err
	}
	if hdr.Type != TypeClientID {
		return "", fmt.Errorf("wire: expected CLIENT_ID frame, got type %d", hdr.Type)
	}
	if hdr.Len != HeaderLen+ClientIDLen {
		return "", fmt.Errorf("wire: malformed CLIENT_ID length %d", hdr.Len)
	}
	payload, err := ReadExact(r, ClientIDLen)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		return string(payload[:i]), nil
	}
	return string(payload), nil
}

// SubscriptionMsg is the decoded payload of a SUBSCRIBE or UNSUBSCRIBE
// frame.
type SubscriptionMsg struct {
	Type  uint8 // TypeSubscribe or TypeUnsubscribe
	Topic string
}

// ReadSubscription reads a SUBSCRIBE/UNSUBSCRIBE frame given its already-read
// header.
func ReadSubscription(r io.Reader, hdr Header) (SubscriptionMsg, error) {
	if hdr.Len < HeaderLen+2 {
		return SubscriptionMsg{}, fmt.Errorf("wire: malformed subscription length %d", hdr.Len)
	}
	lenBuf, err := ReadExact(r, 2)
	if err != nil {
		return SubscriptionMsg{}, err
	}
	topicLen := binary.BigEndian.Uint16(lenBuf)
	want := int(hdr.Len) - HeaderLen - 2
	if want != int(topicLen) {
		return SubscriptionMsg{}, fmt.Errorf("wire: subscription length mismatch: header=%d topic_len=%d", want, topicLen)
	}
	topicBuf, err := ReadExact(r, int(topicLen))
	if err != nil {
		return SubscriptionMsg{}, err
	}
	return SubscriptionMsg{Type: hdr.Type, Topic: string(topicBuf)}, nil
}

// ForwardUDP is the payload of a FORWARD_UDP frame, as serialized by
// EncodeForwardUDP.
type ForwardUDP struct {
	SenderIP   uint32 // network byte order, as received from the UDP socket
	SenderPort uint16 // network byte order
	Topic      string
	DataType   uint8
	Content    []byte
}

// EncodeForwardUDP serializes f into a complete FORWARD_UDP frame.
func EncodeForwardUDP(f ForwardUDP) ([]byte, error) {
	if len(f.Topic) > 0xFFFF || len(f.Content) > 0xFFFF {
		return nil, fmt.Errorf("wire: forward payload too large")
	}
	total := HeaderLen + 4 + 2 + 2 + 1 + 2 + len(f.Topic) + len(f.Content)
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	buf[4] = TypeForwardUDP
	binary.BigEndian.PutUint32(buf[5:9], f.SenderIP)
	binary.BigEndian.PutUint16(buf[9:11], f.SenderPort)
	binary.BigEndian.PutUint16(buf[11:13], uint16(len(f.Topic)))
	buf[13] = f.DataType
	binary.BigEndian.PutUint16(buf[14:16], uint16(len(f.Content)))
	n := copy(buf[16:], f.Topic)
	copy(buf[16+n:], f.Content)
	return buf, nil
}

// SenderIPv4 converts ip (an IPv4 address in a uint32, as captured straight
// off the UDP socket) to a net.IP for display/logging purposes.
func SenderIPv4(ip uint32) net.IP {
	b := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(b, ip)
	return b
}

// EncodeSubscription serializes a SUBSCRIBE/UNSUBSCRIBE frame. Exposed for
// tests that exercise the registry/dispatcher against a synthetic client.
func EncodeSubscription(msgType uint8, topic string) ([]byte, error) {
	if len(topic) > 0xFFFF {
		return nil, fmt.Errorf("wire: topic too long")
	}
	total := HeaderLen + 2 + len(topic)
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	buf[4] = msgType
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(topic)))
	copy(buf[7:], topic)
	return buf, nil
}

// EncodeClientID serializes a CLIENT_ID frame. id is truncated to
// ClientIDLen octets and NUL-padded if shorter.
func EncodeClientID(id string) []byte {
	buf := make([]byte, HeaderLen+ClientIDLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	buf[4] = TypeClientID
	n := copy(buf[HeaderLen:], id)
	_ = n
	return buf
}
