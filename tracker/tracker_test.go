package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovacs/go-leech/bencode"
)

func TestBuildAnnounceURLPercentEncodesBinaryFields(t *testing.T) {
	base, err := url.Parse("http://tracker.example/announce")
	require.NoError(t, err)

	var hash [20]byte
	for i := range hash {
		hash[i] = byte(i)
	}
	var peerID [20]byte
	copy(peerID[:], "-GL0001-aaaaaaaaaaaa")

	got := BuildAnnounceURL(base, Request{
		InfoHash: hash,
		PeerID:   peerID,
		Port:     6881,
		Left:     1024,
		Compact:  true,
	})

	assert.Contains(t, got, "info_hash=%00%01%02%03")
	assert.Contains(t, got, "peer_id=-GL0001-aaaaaaaaaaaa")
	assert.Contains(t, got, "port=6881")
	assert.Contains(t, got, "left=1024")
	assert.Contains(t, got, "compact=1")
}

func TestBuildAnnounceURLPreservesExistingQuery(t *testing.T) {
	base, err := url.Parse("http://tracker.example/announce?passkey=abc")
	require.NoError(t, err)
	got := BuildAnnounceURL(base, Request{})
	assert.True(t, strings.HasPrefix(got, "http://tracker.example/announce?passkey=abc&info_hash="))
}

func TestDecodeResponseCompactPeers(t *testing.T) {
	peers := string([]byte{127, 0, 0, 1, 0x1A, 0xE1, 10, 0, 0, 5, 0x1A, 0xE2})
	raw := bencode.Encode(bencode.Value{Dict: map[string]bencode.Value{
		"interval": {Int: 1800, IsInt: true},
		"peers":    {Str: peers},
	}})

	resp, err := DecodeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, 1800, resp.Interval)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "127.0.0.1", resp.Peers[0].IP.String())
	assert.EqualValues(t, 0x1AE1, resp.Peers[0].Port)
	assert.Equal(t, "10.0.0.5", resp.Peers[1].IP.String())
}

func TestDecodeResponseDictionaryPeers(t *testing.T) {
	raw := bencode.Encode(bencode.Value{Dict: map[string]bencode.Value{
		"interval": {Int: 900, IsInt: true},
		"peers": {List: []bencode.Value{
			{Dict: map[string]bencode.Value{
				"ip":      {Str: "203.0.113.5"},
				"port":    {Int: 51413, IsInt: true},
				"peer id": {Str: strings.Repeat("x", 20)},
			}},
		}},
	}})

	resp, err := DecodeResponse(raw)
	require.NoError(t, err)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, "203.0.113.5", resp.Peers[0].IP.String())
	assert.EqualValues(t, 51413, resp.Peers[0].Port)
	assert.Equal(t, strings.Repeat("x", 20), resp.Peers[0].ID)
}

func TestDecodeResponseFailureReason(t *testing.T) {
	raw := bencode.Encode(bencode.Value{Dict: map[string]bencode.Value{
		"failure reason": {Str: "not registered"},
	}})

	_, err := DecodeResponse(raw)
	require.Error(t, err)
	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "not registered", failure.Reason)
}

func TestDecodeResponseMissingInterval(t *testing.T) {
	raw := bencode.Encode(bencode.Value{Dict: map[string]bencode.Value{
		"peers": {Str: ""},
	}})
	_, err := DecodeResponse(raw)
	require.Error(t, err)
}

func TestDecodeResponseBadCompactLength(t *testing.T) {
	raw := bencode.Encode(bencode.Value{Dict: map[string]bencode.Value{
		"interval": {Int: 1, IsInt: true},
		"peers":    {Str: "short"},
	}})
	_, err := DecodeResponse(raw)
	require.Error(t, err)
}

func TestAnnounceTimesOutViaFakeClock(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	// deferred last so it runs first: srv.Close waits for the blocked
	// handler to return.
	defer close(block)

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)

	mock := clock.NewMock()
	client := &Client{HTTPClient: srv.Client(), Clock: mock, Timeout: time.Second}

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Announce(context.Background(), base, Request{})
		errCh <- err
	}()

	// give the request goroutine a chance to register the fake timer,
	// then advance the mock clock past the configured timeout.
	time.Sleep(50 * time.Millisecond)
	mock.Add(2 * time.Second)

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("announce did not time out after the fake clock advanced")
	}
}

func TestPeerAddr(t *testing.T) {
	p := Peer{IP: []byte{192, 168, 1, 1}, Port: 6881}
	assert.Equal(t, "192.168.1.1:6881", p.Addr())
}
