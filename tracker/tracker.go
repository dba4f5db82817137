// Package tracker implements the BEP-3 HTTP tracker announce protocol:
// building the announce URL with byte-literal percent-encoded binary
// fields, issuing the GET, and decoding the bencoded response.
package tracker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/pkg/errors"

	"github.com/dkovacs/go-leech/bencode"
	"github.com/dkovacs/go-leech/internal/log"
)

// DefaultTimeout is the HTTP request timeout spec.md §4.3 mandates.
const DefaultTimeout = 30 * time.Second

// userAgent mimics a mainstream client, as some trackers gate on it.
const userAgent = "qBittorrent/4.5.0"

// Event names a tracker announce event per BEP-3.
type Event string

const (
	EventNone      Event = ""
	EventStarted   Event = "started"
	EventStopped   Event = "stopped"
	EventCompleted Event = "completed"
)

// Request is the set of parameters sent in an announce GET.
type Request struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Compact    bool
	NumWant    int // 0 means omit
	Event      Event
	TrackerID  string
}

// Response is the parsed tracker announce response.
type Response struct {
	Interval      int
	MinInterval   int
	Complete      int
	Incomplete    int
	TrackerID     string
	WarningMsg    string
	Peers         []Peer
}

// Peer is one entry of the tracker's peer list.
type Peer struct {
	IP   net.IP
	Port uint16
	ID   string // only present for dictionary-encoded peer lists
}

// Addr renders the peer as a host:port string suitable for net.Dial.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// FailureError surfaces a tracker's "failure reason" key.
type FailureError struct{ Reason string }

func (e *FailureError) Error() string {
	return "tracker: " + e.Reason
}

// NonBencodeBodyError is returned when the response body is empty or
// begins with '<' (an HTML page) rather than a bencoded dictionary.
// Any other malformed body is reported by DecodeResponse as a bencode
// decoding error instead.
type NonBencodeBodyError struct{ Snippet string }

func (e *NonBencodeBodyError) Error() string {
	return fmt.Sprintf("tracker: non-bencode response body: %q", e.Snippet)
}

// percentEncodeBytes percent-encodes raw bytes byte-literally per
// RFC 3986's unreserved set, never treating them as UTF-8. This is
// the critical correctness property for info_hash/peer_id: net/url's
// Values.Encode would mangle raw bytes that aren't valid UTF-8 and,
// worse, silently double-encode '%'.
func percentEncodeBytes(b []byte) string {
	const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_.~"
	var buf bytes.Buffer
	for _, c := range b {
		if bytes.IndexByte([]byte(unreserved), c) >= 0 {
			buf.WriteByte(c)
		} else {
			fmt.Fprintf(&buf, "%%%02X", c)
		}
	}
	return buf.String()
}

// BuildAnnounceURL builds the full announce GET URL for a tracker,
// with info_hash and peer_id percent-encoded byte-literally and the
// remaining parameters in the order spec.md §4.3 specifies.
func BuildAnnounceURL(base *url.URL, req Request) string {
	var q bytes.Buffer
	q.WriteString("info_hash=")
	q.WriteString(percentEncodeBytes(req.InfoHash[:]))
	q.WriteString("&peer_id=")
	q.WriteString(percentEncodeBytes(req.PeerID[:]))
	fmt.Fprintf(&q, "&port=%d", req.Port)
	fmt.Fprintf(&q, "&uploaded=%d", req.Uploaded)
	fmt.Fprintf(&q, "&downloaded=%d", req.Downloaded)
	fmt.Fprintf(&q, "&left=%d", req.Left)
	if req.Compact {
		q.WriteString("&compact=1")
	}
	if req.NumWant > 0 {
		fmt.Fprintf(&q, "&numwant=%d", req.NumWant)
	}
	if req.Event != EventNone {
		q.WriteString("&event=")
		q.WriteString(string(req.Event))
	}
	if req.TrackerID != "" {
		q.WriteString("&trackerid=")
		q.WriteString(url.QueryEscape(req.TrackerID))
	}

	u := *base
	if u.RawQuery == "" {
		u.RawQuery = q.String()
	} else {
		u.RawQuery = u.RawQuery + "&" + q.String()
	}
	return u.String()
}

// Client announces to a single HTTP(S) tracker. The request deadline
// is driven by an injectable Clock rather than http.Client.Timeout, so
// timeout behavior is deterministically testable with a fake clock.
type Client struct {
	HTTPClient *http.Client
	Clock      clock.Clock
	Timeout    time.Duration
}

// NewClient returns a Client with the default timeout applied.
func NewClient() *Client {
	return &Client{
		HTTPClient: &http.Client{},
		Clock:      clock.New(),
		Timeout:    DefaultTimeout,
	}
}

// Announce performs the GET and decodes the response.
func (c *Client) Announce(ctx context.Context, base *url.URL, req Request) (*Response, error) {
	announceURL := BuildAnnounceURL(base, req)
	log.Debugf("tracker: announcing to %s", base)

	ctx, cancel := context.WithCancel(ctx)
	timer := c.Clock.AfterFunc(c.Timeout, cancel)
	defer timer.Stop()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, announceURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: building request")
	}
	httpReq.Header.Set("User-Agent", userAgent)

	res, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		log.Warnf("tracker: announce to %s failed: %s", base, err)
		return nil, errors.Wrap(err, "tracker: request failed")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		log.Warnf("tracker: announce to %s returned status %s", base, res.Status)
		return nil, errors.Errorf("tracker: unexpected status %s", res.Status)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, errors.Wrap(err, "tracker: reading response")
	}
	if len(body) == 0 || body[0] == '<' {
		snippet := body
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		log.Warnf("tracker: announce to %s returned a non-bencode body", base)
		return nil, &NonBencodeBodyError{Snippet: string(snippet)}
	}

	resp, err := DecodeResponse(body)
	if err != nil {
		return nil, err
	}
	log.Debugf("tracker: announce to %s returned %d peers, interval %ds", base, len(resp.Peers), resp.Interval)
	return resp, nil
}

// DecodeResponse parses a bencoded tracker announce response body.
func DecodeResponse(body []byte) (*Response, error) {
	v, _, err := bencode.Decode(body)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: decoding response")
	}
	if v.Dict == nil {
		return nil, errors.New("tracker: response is not a dictionary")
	}

	if failure, ok := v.Dict["failure reason"]; ok {
		return nil, &FailureError{Reason: failure.Str}
	}

	interval, ok := v.Dict["interval"]
	if !ok || !interval.IsInt {
		return nil, errors.New("tracker: response missing interval")
	}

	resp := &Response{Interval: int(interval.Int)}
	if min, ok := v.Dict["min interval"]; ok && min.IsInt {
		resp.MinInterval = int(min.Int)
	}
	if complete, ok := v.Dict["complete"]; ok && complete.IsInt {
		resp.Complete = int(complete.Int)
	}
	if incomplete, ok := v.Dict["incomplete"]; ok && incomplete.IsInt {
		resp.Incomplete = int(incomplete.Int)
	}
	if id, ok := v.Dict["tracker id"]; ok {
		resp.TrackerID = id.Str
	}
	if warn, ok := v.Dict["warning message"]; ok {
		resp.WarningMsg = warn.Str
	}

	peersVal, ok := v.Dict["peers"]
	if !ok {
		return nil, errors.New("tracker: response missing peers")
	}
	peers, err := decodePeers(peersVal)
	if err != nil {
		return nil, err
	}
	resp.Peers = peers

	return resp, nil
}

// decodePeers accepts either the compact (byte-string) or dictionary
// (list-of-dicts) peer encoding.
func decodePeers(v bencode.Value) ([]Peer, error) {
	if v.List != nil {
		return decodeDictPeers(v.List)
	}
	return decodeCompactPeers(v.Str)
}

// compactPeerSize is 4 bytes of IPv4 address plus 2 bytes big-endian port.
const compactPeerSize = 6

func decodeCompactPeers(raw string) ([]Peer, error) {
	data := []byte(raw)
	if len(data)%compactPeerSize != 0 {
		return nil, errors.Errorf("tracker: compact peers length %d not divisible by %d", len(data), compactPeerSize)
	}
	peers := make([]Peer, 0, len(data)/compactPeerSize)
	for i := 0; i < len(data); i += compactPeerSize {
		ip := net.IP(data[i : i+4])
		port := binary.BigEndian.Uint16(data[i+4 : i+6])
		peers = append(peers, Peer{IP: ip, Port: port})
	}
	return peers, nil
}

func decodeDictPeers(list []bencode.Value) ([]Peer, error) {
	peers := make([]Peer, 0, len(list))
	for _, entry := range list {
		if entry.Dict == nil {
			return nil, errors.New("tracker: peer list entry is not a dictionary")
		}
		ipVal, ok := entry.Dict["ip"]
		if !ok {
			return nil, errors.New("tracker: peer dictionary missing ip")
		}
		portVal, ok := entry.Dict["port"]
		if !ok || !portVal.IsInt {
			return nil, errors.New("tracker: peer dictionary missing port")
		}
		ip := net.ParseIP(ipVal.Str)
		if ip == nil {
			resolved, err := net.ResolveIPAddr("ip", ipVal.Str)
			if err != nil {
				return nil, errors.Wrapf(err, "tracker: resolving peer host %q", ipVal.Str)
			}
			ip = resolved.IP
		}
		peer := Peer{IP: ip, Port: uint16(portVal.Int)}
		if id, ok := entry.Dict["peer id"]; ok {
			peer.ID = id.Str
		}
		peers = append(peers, peer)
	}
	return peers, nil
}
