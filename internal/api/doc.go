// Package api hosts the public gateway and the admin listener. Routes:
//   - POST /cf-clearance-scraper accepts jobs; everything else on the public
//     router answers 404 with an envelope.
//   - GET /metrics, /healthz, /readyz and /debug/jobs live on the admin router
//     so they never shadow the public contract.
package api
