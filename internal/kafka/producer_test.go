package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDropsWhenInboxFull(t *testing.T) {
	// Tanpa Start: tidak ada goroutine yang drain, jadi inbox buf=1
	// penuh setelah publish pertama.
	p := NewProducer([]string{"broker:9092"}, "t", 1)

	p.Publish([]byte("k1"), []byte("v1"))

	done := make(chan struct{})
	go func() {
		// Wajib balik langsung walau inbox penuh (pesan di-drop).
		p.Publish([]byte("k2"), []byte("v2"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a full inbox")
	}

	// Isi inbox tetap pesan pertama; yang kedua dibuang, bukan antri.
	require.Len(t, p.inbox, 1)
	m := <-p.inbox
	assert.Equal(t, []byte("k1"), m.Key)
}

func TestPublishKeepsOrderWithinCapacity(t *testing.T) {
	p := NewProducer([]string{"broker:9092"}, "t", 4)

	for _, k := range []string{"a", "b", "c"} {
		p.Publish([]byte(k), []byte("v"))
	}
	require.Len(t, p.inbox, 3)
	assert.Equal(t, []byte("a"), (<-p.inbox).Key)
	assert.Equal(t, []byte("b"), (<-p.inbox).Key)
	assert.Equal(t, []byte("c"), (<-p.inbox).Key)
}
