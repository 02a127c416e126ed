// Package discovery abstracts how gossip seed addresses are obtained.
package discovery

// Discovery supplies the seed addresses a node joins through. Backends
// exist for static lists, files/environment, and DNS (SRV or A/AAAA).
type Discovery interface {
    Seeds() []string
}
