// Package admin implements the administrative operations behind both the
// broodpress-admin CLI and the /api HTTP routes.
//
// # Keys
//
// KeyService issues, lists, revokes and deletes API keys. Issue requests are
// validated here (non-empty name of at most 100 characters, permissions drawn
// from read, write and admin) before the auth.Keyring mints the token.
// Revocation cannot be undone; a revoked key has to be deleted and reissued.
//
// # Articles
//
// ArticleService tracks drafted articles through review:
//
//	draft ──approve──▶ approved ──publish──▶ published
//	  │  ◀──reopen──┐
//	  └──reject──▶ rejected
//
// Any other move fails with ErrInvalidTransition. Status changes are
// compare-and-set in the store, so two reviewers acting at once cannot both win.
//
// # Audit
//
// Every successful change appends an audit entry naming the actor (the
// calling key's name, "cli" for the admin binary, or "anonymous" when
// authentication is disabled). Audit failures are logged and do not fail the
// operation.
package admin
