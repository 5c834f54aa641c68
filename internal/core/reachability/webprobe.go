package reachability

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// webProbe performs an unauthenticated GET against url and reports only
// whether it succeeded (spec §4.7 step 6: "run an unauthenticated ...
// web probe"). The probe's body is not interpreted — its only signal is
// reachability of the outbound path itself.
func webProbe(ctx context.Context, client *http.Client, url string) bool {
	if url == "" {
		// No probe configured: nothing in this module can fabricate that
		// verification, so it is treated as passing (documented in
		// config.go).
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode == http.StatusOK
}

// incomingCheckResult is the outcome of the incoming-connection web-check
// (spec §6): the reachability service attempts to connect back to
// localPort and reports what it observed.
type incomingCheckResult struct {
	ok       bool
	endpoint meshnet.Endpoint
}

// runIncomingCheck performs the GET described in spec §6: a query
// `port=<localPort>` against the IPv4 reachability service, whose
// response is `0x01` + an observed external endpoint on success or
// `0x00` on failure. The endpoint is encoded the same family-tagged way
// as a bootstrap-blob entry.
func runIncomingCheck(ctx context.Context, client *http.Client, url string, localPort uint16) (incomingCheckResult, error) {
	if url == "" {
		return incomingCheckResult{}, ErrNoDefaultInterface
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return incomingCheckResult{}, err
	}
	q := req.URL.Query()
	q.Set("port", strconv.Itoa(int(localPort)))
	req.URL.RawQuery = q.Encode()

	resp, err := client.Do(req)
	if err != nil {
		return incomingCheckResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return incomingCheckResult{}, err
	}
	if len(body) == 0 || body[0] == 0x00 {
		return incomingCheckResult{ok: false}, nil
	}
	ep, err := decodeSingleEndpoint(body[1:])
	if err != nil {
		return incomingCheckResult{}, err
	}
	return incomingCheckResult{ok: true, endpoint: ep}, nil
}

// decodeSingleEndpoint parses one family-tagged IPv4 or IPv6 endpoint
// ([family byte][addr][port u16 LE]), the same wire shape a bootstrap-blob
// entry uses. Domain endpoints are rejected with ErrUnsupportedDomainProbe.
func decodeSingleEndpoint(b []byte) (meshnet.Endpoint, error) {
	if len(b) < 1 {
		return meshnet.Endpoint{}, ErrNoDefaultInterface
	}
	switch meshnet.Family(b[0]) {
	case meshnet.AddrV4:
		if len(b) < 7 {
			return meshnet.Endpoint{}, ErrNoDefaultInterface
		}
		port := uint16(b[5]) | uint16(b[6])<<8
		return meshnet.NewV4(b[1:5], port), nil
	case meshnet.AddrV6:
		if len(b) < 19 {
			return meshnet.Endpoint{}, ErrNoDefaultInterface
		}
		port := uint16(b[17]) | uint16(b[18])<<8
		return meshnet.NewV6(b[1:17], port), nil
	default:
		return meshnet.Endpoint{}, ErrUnsupportedDomainProbe
	}
}
