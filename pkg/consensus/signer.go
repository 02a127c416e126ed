package consensus

// Signer is an opaque signing capability. When a deployment configures one,
// the leader signs each replication request digest and followers verify it
// before accepting entries. Key handling stays entirely behind the
// implementation; the engine never interprets the signature bytes.
type Signer interface {
    Sign(data []byte) ([]byte, error)
    Verify(data, sig []byte) bool
}
