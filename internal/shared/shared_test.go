package shared

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestChunk(t *testing.T) {
	ids := make([]int, 250)
	for i := range ids {
		ids[i] = i
	}

	tc := []struct {
		name  string
		items []int
		size  int
		want  []int
	}{
		{name: "empty input", items: nil, size: 100, want: nil},
		{name: "single partial chunk", items: ids[:3], size: 100, want: []int{3}},
		{name: "exact multiple", items: ids[:200], size: 100, want: []int{100, 100}},
		{name: "remainder", items: ids, size: 100, want: []int{100, 100, 50}},
		{name: "non-positive size", items: ids[:10], size: 0, want: []int{10}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunk(tt.items, tt.size)
			var got []int
			for _, c := range chunks {
				got = append(got, len(c))
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Chunk() sizes = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("preserves order", func(t *testing.T) {
		var flat []int
		for _, c := range Chunk(ids, 100) {
			flat = append(flat, c...)
		}
		if !reflect.DeepEqual(flat, ids) {
			t.Error("expected chunks to concatenate back to the input")
		}
	})
}

func TestUniqueAndDifference(t *testing.T) {
	t.Run("Unique keeps first occurrences", func(t *testing.T) {
		got := Unique([]string{"a", "b", "a", "c", "b"})
		want := []string{"a", "b", "c"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Unique() = %v, want %v", got, want)
		}
	})

	t.Run("Difference", func(t *testing.T) {
		got := Difference([]string{"a", "b", "c", "d"}, []string{"b", "d", "z"})
		want := []string{"a", "c"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Difference() = %v, want %v", got, want)
		}
	})

	t.Run("Intersect", func(t *testing.T) {
		got := Intersect([]string{"a", "b", "c", "d"}, []string{"d", "b", "z"})
		want := []string{"b", "d"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Intersect() = %v, want %v", got, want)
		}
	})

	t.Run("Difference returns empty, not nil", func(t *testing.T) {
		got := Difference([]string{"a"}, []string{"a"})
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty slice, got %#v", got)
		}
	})
}

func TestLogger(t *testing.T) {
	t.Run("SetLogLevel", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&buf)

		SetLogLevel(l, "warn")
		if l.GetLevel() != log.WarnLevel {
			t.Errorf("expected warn level, got %v", l.GetLevel())
		}

		SetLogLevel(l, "nonsense")
		if l.GetLevel() != log.InfoLevel {
			t.Errorf("expected fallback to info, got %v", l.GetLevel())
		}
	})

	t.Run("WithLogger adds fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := WithLogger(NewLogger(&buf), "component", "engine")
		l.Info("hello")
		if !strings.Contains(buf.String(), "component=engine") {
			t.Errorf("expected component field in output, got %q", buf.String())
		}
	})

	t.Run("NewFileLogger creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "tui.log")
		l, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger() error = %v", err)
		}
		l.Info("written")
	})
}

func TestErrors(t *testing.T) {
	t.Run("not found kinds share a parent", func(t *testing.T) {
		for _, err := range []error{ErrPlaylistNotFound, ErrTrackNotFound, ErrLabelNotFound, ErrUserNotFound} {
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected %v to match ErrNotFound", err)
			}
		}
	})

	t.Run("missing snapshot is a remote failure", func(t *testing.T) {
		if !errors.Is(ErrMissingSnapshot, ErrRemoteRequest) {
			t.Error("expected ErrMissingSnapshot to match ErrRemoteRequest")
		}
	})
}

func TestOpenBrowser(t *testing.T) {
	orig := getRuntime
	defer func() { getRuntime = orig }()

	getRuntime = func() string { return "plan9" }
	if err := OpenBrowser("http://localhost"); err == nil {
		t.Error("expected error for unsupported platform")
	}
}
