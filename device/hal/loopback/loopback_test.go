package loopback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbheadset/device/hal"
	"github.com/ardnew/usbheadset/pkg"
)

func startHAL(t *testing.T) *HAL {
	t.Helper()
	h := New()
	require.NoError(t, h.Init(context.Background()))
	require.NoError(t, h.Start())
	t.Cleanup(func() { _ = h.Stop() })
	return h
}

// serveOne answers a single control transfer as the device would.
func serveOne(t *testing.T, h *HAL, respond func(setup hal.SetupPacket, data []byte) ([]byte, bool)) <-chan hal.SetupPacket {
	t.Helper()
	got := make(chan hal.SetupPacket, 1)
	go func() {
		ctx := context.Background()
		var setup hal.SetupPacket
		if err := h.ReadSetup(ctx, &setup); err != nil {
			close(got)
			return
		}
		var data []byte
		if setup.RequestType&0x80 == 0 && setup.Length > 0 {
			buf := make([]byte, setup.Length)
			n, _ := h.ReadEP0(ctx, buf)
			data = buf[:n]
		}
		resp, ok := respond(setup, data)
		switch {
		case !ok:
			_ = h.StallEP0()
		case setup.RequestType&0x80 != 0:
			_ = h.WriteEP0(ctx, resp)
		default:
			_ = h.AckEP0()
		}
		got <- setup
	}()
	return got
}

func TestHALLifecycle(t *testing.T) {
	h := New()
	assert.ErrorIs(t, h.Start(), pkg.ErrNotConfigured)
	require.NoError(t, h.Init(context.Background()))
	assert.ErrorIs(t, h.Init(context.Background()), pkg.ErrAlreadyRunning)

	assert.False(t, h.IsConnected())
	require.NoError(t, h.Start())
	assert.True(t, h.IsConnected())
	assert.NoError(t, h.WaitConnect(context.Background()))
	assert.Equal(t, hal.SpeedFull, h.GetSpeed())

	require.NoError(t, h.Stop())
	assert.False(t, h.IsConnected())

	var setup hal.SetupPacket
	assert.ErrorIs(t, h.ReadSetup(context.Background(), &setup), pkg.ErrNoDevice)
}

func TestWaitConnectCancelled(t *testing.T) {
	h := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.WaitConnect(ctx), context.DeadlineExceeded)
}

func TestControlIn(t *testing.T) {
	h := startHAL(t)
	got := serveOne(t, h, func(setup hal.SetupPacket, _ []byte) ([]byte, bool) {
		return []byte{0x80, 0x3E, 0x00, 0x00}, true
	})

	buf := make([]byte, 4)
	n, err := h.Control(0xA1, 0x01, 0x0100, 0x0400, buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0x80, 0x3E, 0x00, 0x00}, buf)

	setup := <-got
	assert.Equal(t, uint8(0xA1), setup.RequestType)
	assert.Equal(t, uint16(0x0100), setup.Value)
	assert.Equal(t, uint16(0x0400), setup.Index)
	assert.Equal(t, uint16(4), setup.Length)
}

func TestControlOut(t *testing.T) {
	h := startHAL(t)
	received := make(chan []byte, 1)
	serveOne(t, h, func(_ hal.SetupPacket, data []byte) ([]byte, bool) {
		received <- data
		return nil, true
	})

	n, err := h.Control(0x21, 0x01, 0x0100, 0x0200, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []byte{0x01}, <-received)
}

func TestControlStall(t *testing.T) {
	h := startHAL(t)
	serveOne(t, h, func(hal.SetupPacket, []byte) ([]byte, bool) {
		return nil, false
	})

	_, err := h.Control(0xA1, 0x02, 0x0100, 0x0400, make([]byte, 14))
	assert.ErrorIs(t, err, pkg.ErrStall)
}

func TestControlTimeout(t *testing.T) {
	h := startHAL(t)
	h.controlTimeout = 20 * time.Millisecond

	_, err := h.Control(0xA1, 0x01, 0x0100, 0x0400, make([]byte, 4))
	assert.ErrorIs(t, err, pkg.ErrTimeout)
}

func TestControlDisconnected(t *testing.T) {
	h := New()
	_, err := h.Control(0x80, 0x06, 0x0100, 0, make([]byte, 18))
	assert.ErrorIs(t, err, pkg.ErrNoDevice)
}

func TestBusEvents(t *testing.T) {
	h := startHAL(t)

	tests := []struct {
		name   string
		inject func()
		want   error
	}{
		{"reset", h.BusReset, pkg.ErrReset},
		{"suspend", h.Suspend, pkg.ErrSuspend},
		{"resume", h.Resume, pkg.ErrResume},
		{"unplug", h.Unplug, pkg.ErrNoDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.inject()
			var setup hal.SetupPacket
			assert.ErrorIs(t, h.ReadSetup(context.Background(), &setup), tt.want)
		})
	}
}

func TestEndpointQueues(t *testing.T) {
	h := startHAL(t)
	ctx := context.Background()

	_, err := h.WriteOut(0x01, []byte{1, 2})
	assert.ErrorIs(t, err, pkg.ErrInvalidEndpoint, "closed endpoint")

	require.NoError(t, h.ConfigureEndpoints([]hal.EndpointConfig{
		{Address: 0x01, Attributes: 0x09, MaxPacketSize: 192},
		{Address: 0x82, Attributes: 0x05, MaxPacketSize: 192},
	}))

	_, err = h.WriteOut(0x01, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = h.WriteOut(0x01, []byte{5, 6})
	require.NoError(t, err)
	assert.Equal(t, 6, h.Available(0x01))

	buf := make([]byte, 5)
	n, err := h.Read(ctx, 0x01, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, buf)
	assert.Equal(t, 1, h.Available(0x01))

	n, err = h.Write(ctx, 0x82, []byte{9, 8, 7})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	in := make([]byte, 8)
	n, err = h.ReadIn(0x82, in)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, in[:n])

	n, err = h.ReadIn(0x82, in)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, h.ConfigureEndpoints(nil))
	assert.Zero(t, h.Available(0x01))
}

func TestQueueLimitDropsOldest(t *testing.T) {
	h := startHAL(t)
	h.SetQueueLimit(8)
	require.NoError(t, h.ConfigureEndpoints([]hal.EndpointConfig{{Address: 0x82, Attributes: 0x05}}))

	for i := byte(0); i < 4; i++ {
		_, err := h.Write(context.Background(), 0x82, []byte{i, i, i, i})
		require.NoError(t, err)
	}
	assert.Equal(t, 8, h.Dropped(0x82))

	buf := make([]byte, 16)
	n, err := h.ReadIn(0x82, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 2, 2, 2, 3, 3, 3, 3}, buf[:n])
}

func TestSetAddress(t *testing.T) {
	h := New()
	require.NoError(t, h.SetAddress(7))
	assert.Equal(t, uint8(7), h.Address())
}
