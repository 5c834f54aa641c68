package handshake

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshnet-io/meshconn/internal/core/connreg"
	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var logger = log.Logger("core/handshake")

// CrossedConnectSleep is the pragmatic wait-for-peer-insertion delay on
// the cancelled side of a crossed connect (spec §4.6, §9 design notes).
const CrossedConnectSleep = 500 * time.Millisecond

// DhtDispatchFunc hands a demux-shunted stream to the DHT manager (C4)
// for the given observed remote endpoint.
type DhtDispatchFunc func(stream meshnet.Stream, remoteEndpoint meshnet.Endpoint) error

// Initiate runs the client side of the connection-initiate protocol
// (spec §4.6 "Client side (initiate)") over stream, which must already
// be connected to remoteEndpoint. isVirtual marks a relay-tunneled
// attempt.
func Initiate(
	stream meshnet.Stream,
	local Identity,
	remoteEndpoint meshnet.Endpoint,
	isVirtual bool,
	registry *connreg.Registry,
	clk clock.Clock,
) (*meshnet.ConnectionRecord, error) {
	if err := WriteHello(stream, local); err != nil {
		return nil, wrapBadHandshake(err)
	}

	code, remotePeerId, err := ReadResponse(stream)
	if err != nil {
		return nil, wrapBadHandshake(err)
	}

	switch code {
	case ResponseAccept:
		wrapped := withPersistentTimeouts(stream)
		rec := meshnet.ConnectionRecord{
			PeerId:         remotePeerId,
			RemoteEndpoint: remoteEndpoint,
			IsVirtual:      isVirtual,
			Stream:         wrapped,
		}
		inserted, err := registry.Insert(rec)
		if err == nil {
			return inserted, nil
		}
		if errors.Is(err, meshnet.ErrDuplicateVirtual) || errors.Is(err, meshnet.ErrDuplicateReal) {
			_ = stream.Close()
			if existing, ok := registry.LookupEither(remotePeerId, remoteEndpoint); ok {
				return existing, nil
			}
			return nil, meshnet.ErrDuplicateNotReconciled
		}
		return nil, err

	case ResponseCancel:
		// Give the peer's own concurrently-initiated handshake time to
		// finish inserting on this side before we look it up (spec §9:
		// "a pragmatic wait-for-peer-insertion", not a correctness
		// requirement — the upper layer retries the lookup if needed).
		clk.Sleep(CrossedConnectSleep)
		if existing, ok := registry.LookupEither(remotePeerId, remoteEndpoint); ok {
			return existing, nil
		}
		return nil, meshnet.ErrDuplicateRejected

	default:
		return nil, wrapBadHandshake(errBadResponseCode(code))
	}
}

// Accept runs the server side of the connection-initiate protocol (spec
// §4.6 "Server side (accept)") over a freshly-accepted stream.
// observedRemote is the endpoint derived from the raw socket (its port is
// the inbound ephemeral port and gets rewritten before use). dhtDispatch
// is invoked, and its error returned, when the version byte demuxes to
// the DHT channel. On VersionPeer success, the returned record is the one
// just registered — callers use it to start servicing the connection's
// post-handshake control channel (spec §4.8).
func Accept(
	stream meshnet.Stream,
	observedRemote meshnet.Endpoint,
	local Identity,
	registry *connreg.Registry,
	dhtDispatch DhtDispatchFunc,
) (*meshnet.ConnectionRecord, error) {
	version, err := ReadVersion(stream)
	if err != nil {
		return nil, wrapBadHandshake(err)
	}

	switch version {
	case VersionDemux:
		return nil, dhtDispatch(stream, observedRemote)

	case VersionPeer:
		remote, err := ReadPeerHello(stream)
		if err != nil {
			return nil, wrapBadHandshake(err)
		}
		remoteEndpoint := rewritePort(observedRemote, remote.ServicePort)

		wrapped := withPersistentTimeouts(stream)
		rec := meshnet.ConnectionRecord{
			PeerId:         remote.PeerId,
			RemoteEndpoint: remoteEndpoint,
			Stream:         wrapped,
		}
		inserted, insertErr := registry.Insert(rec)
		if insertErr == nil {
			if err := WriteResponse(stream, ResponseAccept, local.PeerId); err != nil {
				return nil, wrapBadHandshake(err)
			}
			return inserted, nil
		}

		logger.Debug("server-side insert arbitration rejected connection",
			"remote", remoteEndpoint.String(), "err", insertErr)
		if err := WriteResponse(stream, ResponseCancel, local.PeerId); err != nil {
			return nil, wrapBadHandshake(err)
		}
		_ = stream.Close()
		return nil, insertErr

	default:
		return nil, meshnet.ErrUnsupportedProtoVersion
	}
}

type badResponseCodeError struct{ code byte }

func (e badResponseCodeError) Error() string {
	return fmt.Sprintf("handshake: unexpected response code %d", e.code)
}

func errBadResponseCode(code byte) error { return badResponseCodeError{code: code} }
