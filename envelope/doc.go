// Package envelope encrypts sensitive text columns with AES-256-GCM under a
// rotatable key ring.
//
// # Format
//
//	enc::<key-id>:<nonce>:<tag>:<ciphertext>
//
// All binary parts are standard base64. Values written before key ids existed
// (enc::<nonce>:<tag>:<ciphertext>) are still accepted on decrypt and tried
// against every key in the ring.
//
// # Rotation
//
// New values are always written with the primary key. Older keys stay in the
// ring for reads until data is rewrapped.
package envelope
