// Package static provides a fixed-list discovery backend.
package static

import (
    "strings"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/discovery"
)

type staticSeeds struct {
    seeds []string
}

func (s *staticSeeds) Seeds() []string { return append([]string(nil), s.seeds...) }

// New returns a Discovery that always reports the given seeds. Blank
// entries are dropped.
func New(seeds ...string) discovery.Discovery {
    return &staticSeeds{seeds: clean(seeds)}
}

// Parse splits a comma-separated seed list, trimming blanks.
func Parse(csv string) []string {
    if csv == "" {
        return nil
    }
    return clean(strings.Split(csv, ","))
}

func clean(in []string) []string {
    out := make([]string, 0, len(in))
    for _, v := range in {
        if v = strings.TrimSpace(v); v != "" {
            out = append(out, v)
        }
    }
    if len(out) == 0 { return nil }
    return out
}
