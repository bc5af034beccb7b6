// Package server hosts the Fiber HTTP service, the request middleware chain
// and the site routing glue that turns a Host header into a cache host.
// NewApp bootstraps Fiber with recover and request-id middleware, resolves the
// effective cache host (HostOverride or the Host header) and hands page
// requests to the injected ProxyHandler. Paths under /-/ are reserved for the
// admin and diagnostics routes registered by the routes subpackage.
package server
