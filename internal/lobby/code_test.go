package lobby

import (
	"bytes"
	"errors"
	"testing"
	"testing/iotest"

	"github.com/Termdamp/MatchMixer/internal/domain/model"
)

func TestRandomCodes(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := RandomCodes{}.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !model.ValidCode(code) {
			t.Fatalf("malformed code %q", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 150 {
		t.Fatalf("only %d distinct codes in 200 draws", len(seen))
	}
}

func TestRandomCodes_Source(t *testing.T) {
	zeros := RandomCodes{Source: bytes.NewReader(make([]byte, 64))}
	code, err := zeros.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if code != "AAAA" {
		t.Fatalf("zero source gave %q, want AAAA", code)
	}

	boom := errors.New("boom")
	if _, err := (RandomCodes{Source: iotest.ErrReader(boom)}).Generate(); !errors.Is(err, boom) {
		t.Fatalf("Generate with failing source = %v, want boom", err)
	}
}
