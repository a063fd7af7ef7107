// Package server exposes the broodpress HTTP API.
//
// Every route except the metrics endpoint passes through the API key
// request gate. The health path is exempt from the gate and the whole
// gate can be bypassed for local development.
//
// Routes:
//
//	GET    /health                      no key needed
//	GET    /metrics                     no key needed, when enabled
//	GET    /api/me                      any valid key
//	GET    /api/articles                read
//	GET    /api/articles/{id}           read (?format=html renders the body)
//	POST   /api/articles                write
//	POST   /api/articles/{id}/review    write
//	POST   /api/articles/{id}/publish   write
//	GET    /api/keys                    admin
//	POST   /api/keys                    admin
//	POST   /api/keys/{id}/revoke        admin
//	DELETE /api/keys/{id}               admin
//	GET    /api/audit                   admin
package server
