package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDelivers(t *testing.T) {
	tr := NewBroker(2, 16, nil)
	c := newCollector(2)
	require.NoError(t, tr.Start(c.handle))
	defer tr.Stop()

	require.NoError(t, tr.Dispatch(Dispatch{TaskID: "a", TaskType: "echo"}))
	require.NoError(t, tr.Dispatch(Dispatch{TaskID: "b", TaskType: "echo"}))

	got := c.wait(t, 2*time.Second)
	ids := map[string]bool{}
	for _, d := range got {
		ids[d.TaskID] = true
	}
	assert.Len(t, ids, 2)
}

func TestBrokerCarriesRedeliveryEnvelope(t *testing.T) {
	tr := NewBroker(1, 16, nil)
	c := newCollector(1)
	require.NoError(t, tr.Start(c.handle))
	defer tr.Stop()

	require.NoError(t, tr.DispatchDelayedRetry(Dispatch{
		TaskID:     "a",
		RetryCount: 2,
	}, 10*time.Millisecond))

	got := c.wait(t, 2*time.Second)
	assert.Equal(t, 2, got[0].RetryCount)
}

func TestBrokerDoubleStart(t *testing.T) {
	tr := NewBroker(1, 16, nil)
	require.NoError(t, tr.Start(newCollector(1).handle))
	defer tr.Stop()

	assert.Error(t, tr.Start(newCollector(1).handle))
}
