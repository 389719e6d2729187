// Package password hashes and verifies principal passwords.
//
// New hashes are Argon2id in PHC form:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Stored bcrypt hashes ($2a$, $2b$, $2y$) still verify, and [Hasher.NeedsRehash]
// reports them so callers can upgrade on the next successful login.
//
// The package never stores passwords and never logs them.
package password
