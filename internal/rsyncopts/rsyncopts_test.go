package rsyncopts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/oferchen/ocrsync/internal/rsyncos"
)

func parse(t *testing.T, args ...string) *Options {
	t.Helper()
	pc, err := ParseArguments(&rsyncos.Env{}, args)
	if err != nil {
		t.Fatalf("ParseArguments(%q): %v", args, err)
	}
	return pc.Options
}

func TestFilterRulesOrder(t *testing.T) {
	opts := parse(t, "--include", "special.tmp", "--exclude", "*.tmp")
	want := []string{"+ special.tmp", "- *.tmp"}
	if diff := cmp.Diff(want, opts.FilterRules()); diff != "" {
		t.Errorf("FilterRules: diff (-want +got):\n%s", diff)
	}
}

func TestFilterRuleVerbatim(t *testing.T) {
	opts := parse(t, "--filter", "-p *.cache", "-f", "+ keep.txt")
	want := []string{"-p *.cache", "+ keep.txt"}
	if diff := cmp.Diff(want, opts.FilterRules()); diff != "" {
		t.Errorf("FilterRules: diff (-want +got):\n%s", diff)
	}
}

func TestExcludePatternWithHashIsEscaped(t *testing.T) {
	opts := parse(t, "--exclude", "foo#bar")
	want := []string{`- foo\#bar`}
	if diff := cmp.Diff(want, opts.FilterRules()); diff != "" {
		t.Errorf("FilterRules: diff (-want +got):\n%s", diff)
	}
}

func TestCVSExcludePrepended(t *testing.T) {
	opts := parse(t, "-C", "--exclude", "*.o")
	want := []string{"-C", "- *.o"}
	if diff := cmp.Diff(want, opts.FilterRules()); diff != "" {
		t.Errorf("FilterRules: diff (-want +got):\n%s", diff)
	}
}

func TestExcludeFrom(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "excludes")
	if err := os.WriteFile(fn, []byte("*.tmp\n\n# comment\n; also a comment\nbuild/\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := parse(t, "--exclude-from", fn)
	want := []string{"- *.tmp", "- build/"}
	if diff := cmp.Diff(want, opts.FilterRules()); diff != "" {
		t.Errorf("FilterRules: diff (-want +got):\n%s", diff)
	}
}

func TestIncludeFromNulDelimited(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "includes")
	if err := os.WriteFile(fn, []byte("a.txt\x00b.txt\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := parse(t, "--from0", "--include-from", fn)
	want := []string{"+ a.txt", "+ b.txt"}
	if diff := cmp.Diff(want, opts.FilterRules()); diff != "" {
		t.Errorf("FilterRules: diff (-want +got):\n%s", diff)
	}
}

func TestFRepetition(t *testing.T) {
	opts := parse(t, "-F", "-F")
	want := []string{"dir-merge /.rsync-filter", "- .rsync-filter"}
	if diff := cmp.Diff(want, opts.FilterRules()); diff != "" {
		t.Errorf("FilterRules: diff (-want +got):\n%s", diff)
	}
}

func TestBwLimit(t *testing.T) {
	opts := parse(t, "--bwlimit=1024")
	if got, want := opts.BwLimitKBytes(), 1024; got != want {
		t.Errorf("BwLimitKBytes() = %d, want %d", got, want)
	}

	if _, err := ParseArguments(&rsyncos.Env{}, []string{"--bwlimit", "fast"}); err == nil {
		t.Error("ParseArguments(--bwlimit fast): expected error")
	}
}

func TestBlockSize(t *testing.T) {
	opts := parse(t, "--block-size=4096")
	if got, want := opts.BlockSize(), int64(4096); got != want {
		t.Errorf("BlockSize() = %d, want %d", got, want)
	}

	for _, bad := range []string{"0", "-700", "999999999"} {
		if _, err := ParseArguments(&rsyncos.Env{}, []string{"--block-size", bad}); err == nil {
			t.Errorf("ParseArguments(--block-size %s): expected error", bad)
		}
	}
}

func TestDeleteExcluded(t *testing.T) {
	opts := parse(t, "--delete", "--delete-excluded")
	if !opts.DeleteMode() {
		t.Error("DeleteMode() = false, want true")
	}
	if !opts.DeleteExcluded() {
		t.Error("DeleteExcluded() = false, want true")
	}
}
