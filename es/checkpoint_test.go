package es

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintOrderIndependent(t *testing.T) {
	order1 := NewObjectIdentifier("order", "1")
	order2 := NewObjectIdentifier("order", "2")
	invoice := NewObjectIdentifier("invoice", "9")

	a := NewCheckpoint()
	a.Advance(order1, NewVersionIdentifier("s1", 5))
	a.Advance(order2, NewVersionIdentifier("s2", 1))
	a.Advance(invoice, NewVersionIdentifier("s3", 7))

	b := NewCheckpoint()
	b.Advance(invoice, NewVersionIdentifier("s3", 7))
	b.Advance(order1, NewVersionIdentifier("s1", 5))
	b.Advance(order2, NewVersionIdentifier("s2", 1))

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)

	b.Advance(order2, NewVersionIdentifier("s2", 2))
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintEmpty(t *testing.T) {
	// sha256 of the empty string
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", NewCheckpoint().Fingerprint())
}

func TestAdvance(t *testing.T) {
	obj := NewObjectIdentifier("order", "1")
	c := NewCheckpoint()

	assert.True(t, c.Advance(obj, NewVersionIdentifier("s1", 3)))
	assert.False(t, c.Advance(obj, NewVersionIdentifier("s1", 3)))
	assert.False(t, c.Advance(obj, NewVersionIdentifier("s1", 2)))

	got, ok := c.Get(obj)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Version)

	assert.True(t, c.Advance(obj, NewVersionIdentifier("s1", 4)))
	assert.Equal(t, "order__1__s1__00000000000000000004", c.Token(obj).String())
	assert.Nil(t, c.Token(NewObjectIdentifier("order", "2")))
}

func TestAdvanceNewStream(t *testing.T) {
	obj := NewObjectIdentifier("order", "1")
	c := NewCheckpoint()

	require.True(t, c.Advance(obj, NewVersionIdentifier("s1", 5)))
	before := c.Fingerprint()

	assert.True(t, c.Advance(obj, NewVersionIdentifier("s2", 1)))
	got, _ := c.Get(obj)
	assert.Equal(t, NewVersionIdentifier("s2", 1), got)
	assert.NotEqual(t, before, c.Fingerprint())

	assert.False(t, c.Advance(obj, NewVersionIdentifier("s2", 1)))
	assert.Equal(t, 1, c.Len())
}

func TestCovers(t *testing.T) {
	obj := NewObjectIdentifier("order", "1")
	source := NewCheckpoint()
	source.Advance(obj, NewVersionIdentifier("s1", 5))

	target := NewCheckpoint()
	assert.False(t, target.Covers(source))
	assert.True(t, source.Covers(target))

	target.Advance(obj, NewVersionIdentifier("s1", 4))
	assert.False(t, target.Covers(source))

	target.Advance(obj, NewVersionIdentifier("s1", 10))
	assert.True(t, target.Covers(source))

	other := NewCheckpoint()
	other.Advance(obj, NewVersionIdentifier("s2", 10))
	assert.False(t, other.Covers(source))
}

func TestCheckpointJSON(t *testing.T) {
	c := NewCheckpoint()
	c.Advance(NewObjectIdentifier("order", "2"), NewVersionIdentifier("s2", 1))
	c.Advance(NewObjectIdentifier("order", "1"), NewVersionIdentifier("s1", 5))

	blob, err := json.Marshal(c)
	require.NoError(t, err)

	var back Checkpoint
	require.NoError(t, json.Unmarshal(blob, &back))
	assert.Equal(t, c.Entries(), back.Entries())
	assert.Equal(t, c.Fingerprint(), back.Fingerprint())
	assert.Equal(t, "1", back.Entries()[0].Object.ObjectID)
}

func TestClone(t *testing.T) {
	obj := NewObjectIdentifier("order", "1")
	c := NewCheckpoint()
	c.Advance(obj, NewVersionIdentifier("s1", 1))

	clone := c.Clone()
	clone.Advance(obj, NewVersionIdentifier("s1", 2))

	got, _ := c.Get(obj)
	assert.Equal(t, int64(1), got.Version)
	assert.NotEqual(t, c.Fingerprint(), clone.Fingerprint())
}
