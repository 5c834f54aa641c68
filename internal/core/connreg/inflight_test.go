package connreg

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func TestCoordinateFirstCallerDials(t *testing.T) {
	set := NewInFlightSet()
	clk := clock.NewMock()
	ep := meshnet.NewV4([]byte{1, 1, 1, 1}, 80)

	dialed := false
	rec, err := Coordinate(context.Background(), set, clk, time.Second, ep,
		func() (*meshnet.ConnectionRecord, error) {
			dialed = true
			return &meshnet.ConnectionRecord{RemoteEndpoint: ep}, nil
		},
		func() (*meshnet.ConnectionRecord, bool) { return nil, false },
	)
	require.NoError(t, err)
	require.True(t, dialed)
	require.Equal(t, ep, rec.RemoteEndpoint)
}

func TestCoordinateSecondCallerWaitsThenLooksUp(t *testing.T) {
	set := NewInFlightSet()
	clk := clock.NewMock()
	ep := meshnet.NewV4([]byte{2, 2, 2, 2}, 80)

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		_, _ = Coordinate(context.Background(), set, clk, time.Second, ep,
			func() (*meshnet.ConnectionRecord, error) {
				close(started)
				<-release
				return &meshnet.ConnectionRecord{RemoteEndpoint: ep}, nil
			},
			func() (*meshnet.ConnectionRecord, bool) { return nil, false },
		)
	}()
	<-started

	// Finish the first dial only after the second caller has started
	// waiting on it.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	resolved := &meshnet.ConnectionRecord{RemoteEndpoint: ep, PeerId: meshnet.PeerId{7}}
	rec, err := Coordinate(context.Background(), set, clk, time.Second, ep,
		func() (*meshnet.ConnectionRecord, error) {
			t.Fatal("second caller must not dial")
			return nil, nil
		},
		func() (*meshnet.ConnectionRecord, bool) { return resolved, true },
	)
	wg.Wait()

	require.NoError(t, err)
	require.Equal(t, resolved, rec)
}

func TestCoordinateWaiterTimesOut(t *testing.T) {
	set := NewInFlightSet()
	clk := clock.NewMock()
	ep := meshnet.NewV4([]byte{3, 3, 3, 3}, 80)

	started := make(chan struct{})
	block := make(chan struct{})
	defer close(block)
	go Coordinate(context.Background(), set, clk, time.Second, ep,
		func() (*meshnet.ConnectionRecord, error) {
			close(started)
			<-block
			return nil, nil
		},
		func() (*meshnet.ConnectionRecord, bool) { return nil, false },
	)
	<-started

	done := make(chan error, 1)
	go func() {
		_, err := Coordinate(context.Background(), set, clk, time.Second, ep,
			func() (*meshnet.ConnectionRecord, error) { t.Errorf("unreachable"); return nil, nil },
			func() (*meshnet.ConnectionRecord, bool) { return nil, false },
		)
		done <- err
	}()

	require.Eventually(t, func() bool {
		clk.Add(100 * time.Millisecond)
		select {
		case err := <-done:
			done <- err
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	err := <-done
	require.ErrorIs(t, err, meshnet.ErrConnectInProgress)
}
