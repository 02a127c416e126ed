package file

import (
    "os"
    "path/filepath"
    "reflect"
    "testing"
    "time"
)

func writeSeeds(t *testing.T, path, content string) {
    t.Helper()
    if err := os.WriteFile(path, []byte(content), 0o644); err != nil { t.Fatal(err) }
}

func TestEnvOverridesFile(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "seeds.txt")
    writeSeeds(t, f, "a:1\n")

    const envName = "TEST_LEDGER_SEEDS"
    t.Setenv(envName, "x:9,y:8")

    d := New(Options{Path: f, Env: envName, Refresh: 5 * time.Millisecond})
    if got := d.Seeds(); !reflect.DeepEqual(got, []string{"x:9", "y:8"}) {
        t.Fatalf("env override failed, got %#v", got)
    }
}

func TestFileReadAndCacheRefresh(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "seeds.txt")
    writeSeeds(t, f, "a:1\nb:2\n")

    d := New(Options{Path: f, Refresh: 10 * time.Millisecond})
    if got := d.Seeds(); !reflect.DeepEqual(got, []string{"a:1", "b:2"}) {
        t.Fatalf("unexpected initial seeds: %#v", got)
    }

    writeSeeds(t, f, "b:2\nc:3\n")
    time.Sleep(15 * time.Millisecond)

    if got := d.Seeds(); !reflect.DeepEqual(got, []string{"b:2", "c:3"}) {
        t.Fatalf("expected refreshed seeds, got %#v", got)
    }
}

func TestCommentsAndBlanksIgnored(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "seeds.txt")
    writeSeeds(t, f, "# gossip seeds\n\na:1, b:2\n\n# trailing\n")

    d := New(Options{Path: f, Refresh: 5 * time.Millisecond})
    if got := d.Seeds(); !reflect.DeepEqual(got, []string{"a:1", "b:2"}) {
        t.Fatalf("unexpected seeds: %#v", got)
    }
}

func TestGlobReadsUniqueSorted(t *testing.T) {
    dir := t.TempDir()
    writeSeeds(t, filepath.Join(dir, "a.txt"), "a:1\nb:2\n")
    writeSeeds(t, filepath.Join(dir, "b.txt"), "b:2\nc:3\n")

    d := New(Options{Path: filepath.Join(dir, "*.txt"), Refresh: 5 * time.Millisecond})
    if got := d.Seeds(); !reflect.DeepEqual(got, []string{"a:1", "b:2", "c:3"}) {
        t.Fatalf("unexpected merged seeds: %#v", got)
    }
}
