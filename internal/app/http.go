package app

import (
	"net"
	"net/http"
	"time"
)

// newSnapshotHTTPClient returns the transport used for fetching page
// snapshots. The per-host pool matches the input parallelism.
func newSnapshotHTTPClient(parallel int) *http.Client {
	if parallel <= 0 {
		parallel = 1
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   parallel,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
