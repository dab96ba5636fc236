// Package middleware provides the HTTP middleware of the publisher API:
// W3C Extended Log Format access logging, request ids, Prometheus request
// metrics, bearer-token authentication and gzip compression of JSON
// listings.
package middleware
