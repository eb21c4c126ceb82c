package chunk

import (
	"strings"
	"testing"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"Valid", 100, 10, false},
		{"ZeroOverlap", 100, 0, false},
		{"ZeroSize", 0, 0, true},
		{"NegativeOverlap", 100, -1, true},
		{"OverlapEqualsSize", 100, 100, true},
		{"OverlapExceedsSize", 100, 150, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestSplitSingleChunk(t *testing.T) {
	c, err := New(100, 10)
	if err != nil {
		t.Fatal(err)
	}

	text := "short receipt text"
	chunks := c.Split(text)

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("chunk text = %q, want %q", chunks[0].Text, text)
	}
	if chunks[0].SequenceIndex != 0 || chunks[0].OverlapWithPrevious != 0 {
		t.Errorf("unexpected metadata: %+v", chunks[0])
	}
}

func TestSplitEmptyText(t *testing.T) {
	c, _ := New(10, 2)
	if chunks := c.Split(""); chunks != nil {
		t.Errorf("got %d chunks for empty text, want none", len(chunks))
	}
}

func TestSplitWindowsAndOverlap(t *testing.T) {
	c, _ := New(4, 2)
	chunks := c.Split("0123456789")

	wantTexts := []string{"0123", "2345", "4567", "6789"}
	if len(chunks) != len(wantTexts) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(wantTexts))
	}
	for i, ch := range chunks {
		if ch.Text != wantTexts[i] {
			t.Errorf("chunk %d text = %q, want %q", i, ch.Text, wantTexts[i])
		}
		if ch.SequenceIndex != i {
			t.Errorf("chunk %d sequence index = %d", i, ch.SequenceIndex)
		}
		wantOverlap := 2
		if i == 0 {
			wantOverlap = 0
		}
		if ch.OverlapWithPrevious != wantOverlap {
			t.Errorf("chunk %d overlap = %d, want %d", i, ch.OverlapWithPrevious, wantOverlap)
		}
	}
}

func TestSplitLossless(t *testing.T) {
	texts := []string{
		"SuperMart\n2024-03-01\nMilk 3.50\nBread 2.00\nTOTAL 5.50",
		strings.Repeat("receipt line with items and totals\n", 40),
		"über café — straße 12 ¥€£", // multi-byte runes
		"x",
	}

	for size := 2; size <= 12; size++ {
		for overlap := 0; overlap < size; overlap++ {
			c, err := New(size, overlap)
			if err != nil {
				t.Fatalf("New(%d, %d): %v", size, overlap, err)
			}
			for _, text := range texts {
				chunks := c.Split(text)
				if len(chunks) == 0 {
					t.Fatalf("size=%d overlap=%d: no chunks for non-empty text", size, overlap)
				}
				if got := Reconstruct(chunks); got != text {
					t.Errorf("size=%d overlap=%d: reconstruction mismatch\ngot:  %q\nwant: %q", size, overlap, got, text)
				}
				for _, ch := range chunks {
					if n := len([]rune(ch.Text)); n > size {
						t.Errorf("size=%d overlap=%d: chunk %d has %d runes", size, overlap, ch.SequenceIndex, n)
					}
				}
			}
		}
	}
}
