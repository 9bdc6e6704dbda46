package ports

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHost = "127.0.0.1"

// occupyPort grabs a system-assigned port and keeps it bound for the test.
func occupyPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", testHost+":0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	return ln.Addr().(*net.TCPAddr).Port
}

// freePort finds a port that was free a moment ago. Inherently racy, which is
// acceptable for loopback tests.
func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", testHost+":0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	return port
}

func TestIsPortInUse_OccupiedPort(t *testing.T) {
	port := occupyPort(t)

	inUse, err := IsPortInUse(testHost, port)
	require.NoError(t, err)
	assert.True(t, inUse)
}

func TestAddrInUse_ClassifiesBindConflict(t *testing.T) {
	port := occupyPort(t)

	_, err := net.Listen("tcp", testHost+":"+strconv.Itoa(port))
	require.Error(t, err)
	assert.True(t, addrInUse(err), "bind conflict must map to in-use on this platform")

	assert.False(t, addrInUse(assert.AnError))
	assert.False(t, addrInUse(nil))
}

func TestIsPortInUse_FreePort(t *testing.T) {
	port := freePort(t)

	inUse, err := IsPortInUse(testHost, port)
	require.NoError(t, err)
	assert.False(t, inUse)
}

func TestIsPortInUse_DoesNotHoldPort(t *testing.T) {
	port := freePort(t)

	inUse, err := IsPortInUse(testHost, port)
	require.NoError(t, err)
	require.False(t, inUse)

	// The probe must have released the port.
	ln, err := net.Listen("tcp", testHost+":"+strconv.Itoa(port))
	require.NoError(t, err)
	ln.Close()
}

func TestFindAvailable_NoFallback_FreePort(t *testing.T) {
	port := freePort(t)

	got, err := FindAvailable(testHost, port, false)
	require.NoError(t, err)
	assert.Equal(t, port, got)
}

func TestFindAvailable_NoFallback_OccupiedPort(t *testing.T) {
	port := occupyPort(t)

	_, err := FindAvailable(testHost, port, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPortInUse)
}

func TestFindAvailable_Fallback_DefaultPortWins(t *testing.T) {
	port := freePort(t)

	got, err := FindAvailable(testHost, port, true)
	require.NoError(t, err)
	assert.Equal(t, port, got)
}

func TestFindAvailable_Fallback_SkipsOccupiedPort(t *testing.T) {
	port := occupyPort(t)

	got, err := FindAvailable(testHost, port, true)
	require.NoError(t, err)
	assert.Greater(t, got, port)
	assert.Less(t, got, port+MaxFallbackAttempts)
}

func TestFindAvailable_Fallback_Exhausted(t *testing.T) {
	base := freePort(t)

	// Occupy the entire fallback range ourselves. Another process may grab
	// one of the candidates first; that invalidates the setup, not the code
	// under test.
	listeners := make([]net.Listener, 0, MaxFallbackAttempts)
	defer func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}()
	for i := 0; i < MaxFallbackAttempts; i++ {
		ln, err := net.Listen("tcp", testHost+":"+strconv.Itoa(base+i))
		if err != nil {
			t.Skipf("could not occupy port %d for exhaustion setup: %v", base+i, err)
		}
		listeners = append(listeners, ln)
	}

	_, err := FindAvailable(testHost, base, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFallbackExhausted)
}
