package dns

import (
    "strings"
    "testing"
    "time"
)

func TestSplitSRVName(t *testing.T) {
    s, p, n, ok := splitSRVName("_ledger._tcp.example.com")
    if !ok || s != "ledger" || p != "tcp" || n != "example.com" {
        t.Fatalf("splitSRVName failed: got (%q,%q,%q,%v)", s, p, n, ok)
    }
    for _, bad := range []string{"bad.srv", "_onlyservice.example.com", "plainhost"} {
        if _, _, _, ok := splitSRVName(bad); ok {
            t.Fatalf("expected %q to be rejected", bad)
        }
    }
}

func TestPassthroughHostPort(t *testing.T) {
    d := New(Options{Names: []string{"1.2.3.4:17946", "1.2.3.4:17946"}, Refresh: 5 * time.Millisecond})
    got := d.Seeds()
    if len(got) != 1 || got[0] != "1.2.3.4:17946" {
        t.Fatalf("unexpected seeds: %#v", got)
    }
}

func TestLookupHostLocalhost(t *testing.T) {
    d := New(Options{Names: []string{"localhost"}, Port: 12345, Refresh: 5 * time.Millisecond})
    got := d.Seeds()
    if len(got) == 0 {
        t.Fatalf("expected at least one resolved host:port, got %#v", got)
    }
    // Accept IPv4 or IPv6 formatting.
    ok := false
    for _, s := range got {
        if strings.HasSuffix(s, ":12345") || strings.HasSuffix(s, "]:12345") {
            ok = true
            break
        }
    }
    if !ok {
        t.Fatalf("expected port suffix in any result, got %#v", got)
    }
}

func TestCacheServesWithinRefresh(t *testing.T) {
    d := New(Options{Names: []string{"10.0.0.1:17946"}, Refresh: time.Hour})
    first := d.Seeds()
    second := d.Seeds()
    if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
        t.Fatalf("cache mismatch: %#v vs %#v", first, second)
    }
}
