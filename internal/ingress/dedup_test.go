package ingress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryDedup_SecondOccurrenceReported(t *testing.T) {
	d := newDeliveryDedup(4)
	assert.False(t, d.seenBefore("session-1:delivery-1"))
	assert.True(t, d.seenBefore("session-1:delivery-1"))
}

func TestDeliveryDedup_DistinctKeysIndependent(t *testing.T) {
	d := newDeliveryDedup(4)
	assert.False(t, d.seenBefore("session-1:delivery-1"))
	assert.False(t, d.seenBefore("session-1:delivery-2"))
	assert.True(t, d.seenBefore("session-1:delivery-1"))
}

func TestDeliveryDedup_EmptyKeyNeverDeduped(t *testing.T) {
	d := newDeliveryDedup(4)
	assert.False(t, d.seenBefore(""))
	assert.False(t, d.seenBefore(""))
}

func TestDeliveryDedup_EvictsOldestBeyondCapacity(t *testing.T) {
	d := newDeliveryDedup(2)
	assert.False(t, d.seenBefore("a"))
	assert.False(t, d.seenBefore("b"))
	assert.False(t, d.seenBefore("c")) // evicts "a"; order is now [c, b]
	assert.False(t, d.seenBefore("a")) // "a" was evicted, treated as new; evicts "b" in turn
	assert.True(t, d.seenBefore("c"))  // "c" survived both evictions
	assert.False(t, d.seenBefore("b")) // "b" was evicted by the second insert
}
