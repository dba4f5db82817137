package bencode

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBasics(t *testing.T) {
	raw := []byte("d3:cow3:moo4:spaml1:a1:bee")
	v, n, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	require.NotNil(t, v.Dict)
	assert.Equal(t, "moo", v.Dict["cow"].Str)
	require.Len(t, v.Dict["spam"].List, 2)
	assert.Equal(t, "a", v.Dict["spam"].List[0].Str)
	assert.Equal(t, "b", v.Dict["spam"].List[1].Str)
}

func TestEncodeRoundTrip(t *testing.T) {
	raw := []byte("d3:cow3:moo4:spaml1:a1:bee")
	v, _, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, Encode(v))
}

func TestDictKeysSortedOnEncode(t *testing.T) {
	v := Value{Dict: map[string]Value{
		"zebra": {Str: "z"},
		"apple": {Str: "a"},
		"mango": {Str: "m"},
	}}
	assert.Equal(t, "d5:apple1:a5:mango1:m5:zebra1:ze", string(Encode(v)))
}

func TestNegativeInteger(t *testing.T) {
	v, _, err := Decode([]byte("i-42e"))
	require.NoError(t, err)
	assert.True(t, v.IsInt)
	assert.EqualValues(t, -42, v.Int)
}

func TestNegativeZeroRejected(t *testing.T) {
	_, _, err := Decode([]byte("i-0e"))
	require.Error(t, err)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
	assert.Equal(t, BadInteger, synErr.Kind)
}

func TestLeadingZeroRejected(t *testing.T) {
	_, _, err := Decode([]byte("i042e"))
	require.Error(t, err)
}

func TestEmptyIntegerRejected(t *testing.T) {
	_, _, err := Decode([]byte("ie"))
	require.Error(t, err)
}

func TestZeroInteger(t *testing.T) {
	v, _, err := Decode([]byte("i0e"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, v.Int)
	assert.Equal(t, "i0e", string(Encode(v)))
}

func TestEmptyStringRoundTrips(t *testing.T) {
	raw := []byte("0:")
	v, n, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, "", v.Str)
	assert.Equal(t, raw, Encode(v))
}

func TestNonStringDictKeyRejected(t *testing.T) {
	_, _, err := Decode([]byte("di1ei2ee"))
	require.Error(t, err)
}

func TestUnterminatedListRejected(t *testing.T) {
	_, _, err := Decode([]byte("l1:ai1e"))
	require.Error(t, err)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
	assert.Equal(t, Unterminated, synErr.Kind)
}

func TestBadPrefixRejected(t *testing.T) {
	_, _, err := Decode([]byte("x"))
	require.Error(t, err)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
	assert.Equal(t, BadPrefix, synErr.Kind)
}

func TestStringRunsPastEndRejected(t *testing.T) {
	_, _, err := Decode([]byte("5:ab"))
	require.Error(t, err)
}

func TestHashInfoDict(t *testing.T) {
	// a minimal single-file torrent with a recognisable info dict
	raw := []byte("d8:announce12:http://a.com4:info" +
		"d6:lengthi10e4:name5:a.iso12:piece lengthi16384e6:pieces20:" +
		string(make([]byte, 20)) + "ee")
	hash, err := HashInfoDict(raw)
	require.NoError(t, err)

	// recompute independently: slice out exactly the info sub-value
	infoStart := 32 // offset of 'd' that opens the info dict
	v, n, err := Decode(raw[infoStart:])
	require.NoError(t, err)
	require.NotNil(t, v.Dict)
	reEncoded := Encode(v)
	assert.Equal(t, raw[infoStart:infoStart+n], reEncoded)
	assert.Equal(t, sha1.Sum(raw[infoStart:infoStart+n]), hash)
}

func TestHashInfoDictStableAcrossDecodeReEncode(t *testing.T) {
	raw := []byte("d8:announce12:http://a.com4:infod6:lengthi10e4:name1:a12:piece lengthi1e6:pieces0:ee")
	hash1, err := HashInfoDict(raw)
	require.NoError(t, err)

	v, _, err := Decode(raw)
	require.NoError(t, err)
	reEncoded := Encode(v)
	hash2, err := HashInfoDict(reEncoded)
	require.NoError(t, err)

	assert.Equal(t, hash1, hash2)
}
