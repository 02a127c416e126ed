// Package file provides file- and environment-backed seed discovery. A
// seeds file holds one address per line (comma-separated lists and #
// comments allowed); an environment variable, when set, wins over the
// file. Contents are re-read when the file changes or the cache ages out.
package file

import (
    "bufio"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/Aurigraph-DLT-Corp/Aurigraph-Developer-Toolkit-and-SDK-sub011/pkg/discovery"
)

const defaultRefresh = 5 * time.Second

// Options configures file/ENV-based discovery.
type Options struct {
    // Path to the seeds file. Globs are supported; matching files are
    // merged.
    Path string
    // Env names an environment variable that overrides the file when set.
    Env string
    // Refresh bounds cache staleness. Zero means 5s.
    Refresh time.Duration
}

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    mtime time.Time
    cache []string
}

func New(opts Options) discovery.Discovery {
    if opts.Refresh <= 0 { opts.Refresh = defaultRefresh }
    return &impl{opts: opts}
}

func (i *impl) Seeds() []string {
    i.mu.Lock()
    defer i.mu.Unlock()

    if i.opts.Env != "" {
        if v := strings.TrimSpace(os.Getenv(i.opts.Env)); v != "" {
            return normalize(strings.Split(v, ","))
        }
    }
    if i.opts.Path == "" {
        return nil
    }

    now := time.Now()
    if stat, err := os.Stat(i.opts.Path); err == nil {
        if stat.ModTime().After(i.mtime) || now.Sub(i.last) >= i.opts.Refresh {
            i.cache = loadFile(i.opts.Path)
            i.last = now
            i.mtime = stat.ModTime()
        }
        return append([]string(nil), i.cache...)
    }

    // Not a plain file; try it as a glob.
    if matches, _ := filepath.Glob(i.opts.Path); len(matches) > 0 {
        var all []string
        for _, m := range matches {
            all = append(all, loadFile(m)...)
        }
        i.cache = normalize(all)
        i.last = now
    }
    return append([]string(nil), i.cache...)
}

func loadFile(path string) []string {
    f, err := os.Open(path)
    if err != nil { return nil }
    defer f.Close()
    var seeds []string
    s := bufio.NewScanner(f)
    for s.Scan() {
        line := strings.TrimSpace(s.Text())
        if line == "" || strings.HasPrefix(line, "#") { continue }
        seeds = append(seeds, strings.Split(line, ",")...)
    }
    if err := s.Err(); err != nil { return nil }
    return normalize(seeds)
}

// normalize trims, de-duplicates and sorts.
func normalize(in []string) []string {
    set := make(map[string]struct{}, len(in))
    for _, v := range in {
        if v = strings.TrimSpace(v); v != "" {
            set[v] = struct{}{}
        }
    }
    if len(set) == 0 { return nil }
    out := make([]string, 0, len(set))
    for v := range set { out = append(out, v) }
    sort.Strings(out)
    return out
}
