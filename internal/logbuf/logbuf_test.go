package logbuf

import (
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("default size", func(t *testing.T) {
		b := New(0)
		if b.Cap() != DefaultCapacity {
			t.Errorf("expected capacity %d, got %d", DefaultCapacity, b.Cap())
		}
	})

	t.Run("custom size", func(t *testing.T) {
		b := New(50)
		if b.Cap() != 50 {
			t.Errorf("expected capacity 50, got %d", b.Cap())
		}
	})
}

func TestBuffer_Write(t *testing.T) {
	t.Run("single line", func(t *testing.T) {
		b := New(10)
		n, err := b.Write([]byte("hello\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 6 {
			t.Errorf("expected 6 bytes written, got %d", n)
		}
		if b.Len() != 1 {
			t.Errorf("expected 1 line, got %d", b.Len())
		}
	})

	t.Run("multiple lines", func(t *testing.T) {
		b := New(10)
		b.Write([]byte("line1\nline2\nline3\n"))
		if b.Len() != 3 {
			t.Errorf("expected 3 lines, got %d", b.Len())
		}
	})

	t.Run("partial line held back", func(t *testing.T) {
		b := New(10)
		b.Write([]byte("partial"))
		if b.Len() != 0 {
			t.Errorf("expected 0 lines before newline, got %d", b.Len())
		}
		b.Write([]byte(" rest\n"))
		if b.Len() != 1 {
			t.Errorf("expected 1 line after newline, got %d", b.Len())
		}
		tail := b.Tail(1)
		if tail[0].Line != "partial rest" {
			t.Errorf("expected joined line, got %q", tail[0].Line)
		}
	})
}

func TestBuffer_Flush(t *testing.T) {
	b := New(10)
	b.Write([]byte("no newline"))
	b.Flush()
	if b.Len() != 1 {
		t.Fatalf("expected 1 line after flush, got %d", b.Len())
	}
	if got := b.Tail(1)[0].Line; got != "no newline" {
		t.Errorf("expected %q, got %q", "no newline", got)
	}
}

func TestBuffer_DropsOldestWhenFull(t *testing.T) {
	b := New(3)
	for i := 1; i <= 5; i++ {
		b.Append(fmt.Sprintf("line%d", i))
	}

	if b.Len() != 3 {
		t.Fatalf("expected 3 lines, got %d", b.Len())
	}

	tail := b.Tail(0)
	want := []string{"line3", "line4", "line5"}
	for i, e := range tail {
		if e.Line != want[i] {
			t.Errorf("tail[%d] = %q, want %q", i, e.Line, want[i])
		}
	}
}

func TestBuffer_Tail(t *testing.T) {
	b := New(10)
	for i := 1; i <= 5; i++ {
		b.Append(fmt.Sprintf("line%d", i))
	}

	t.Run("window smaller than count", func(t *testing.T) {
		tail := b.Tail(2)
		if len(tail) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(tail))
		}
		if tail[0].Line != "line4" || tail[1].Line != "line5" {
			t.Errorf("unexpected tail %v", tail)
		}
	})

	t.Run("window larger than count", func(t *testing.T) {
		if got := len(b.Tail(100)); got != 5 {
			t.Errorf("expected 5 entries, got %d", got)
		}
	})

	t.Run("empty buffer", func(t *testing.T) {
		if got := New(10).Tail(5); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})
}

func TestBuffer_TailReturnsCopy(t *testing.T) {
	b := New(10)
	b.Append("original")

	tail := b.Tail(1)
	tail[0].Line = "mutated"

	if got := b.Tail(1)[0].Line; got != "original" {
		t.Errorf("internal state mutated through snapshot: %q", got)
	}
}
