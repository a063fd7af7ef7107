// Package auth provides API key authentication and authorization for broodpress.
//
// # Keys
//
// Keyring mints keys of the form "<prefix>_<64 hex chars>" from 32 bytes of
// crypto/rand output. Only the hex SHA-256 digest of the full token is
// stored; the plaintext is returned once from Issue and never again.
// Validate hashes a presented token and looks it up. Unknown and revoked keys
// produce the same invalid Result.
//
// # HTTP
//
// APIKeyMiddleware reads the key from
//
//	Authorization: Bearer <key>
//	X-API-Key: <key>
//
// in that order and attaches an AuthContext to the request context.
// RequirePermissionHTTP then checks a single permission on that context:
//
//	mux.Handle("POST /api/articles",
//	    auth.RequirePermissionHTTP("write", cfg)(handler))
//
// Both take a GateConfig. With Bypass set every request passes. The health
// path is exempt from the request gate regardless.
//
// # Responses
//
//	401 {"error":"Unauthorized","message":"API key required. ..."}
//	401 {"error":"Unauthorized","message":"Invalid or revoked API key"}
//	403 {"error":"Forbidden","message":"API key does not have 'write' permission"}
package auth
