package lobby

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/Termdamp/MatchMixer/internal/domain/model"
)

// CodeGenerator draws room codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodes draws each character independently and uniformly from
// model.CodeAlphabet.
type RandomCodes struct {
	// Source defaults to crypto/rand.Reader.
	Source io.Reader
}

// Generate returns a fresh code.
func (g RandomCodes) Generate() (string, error) {
	src := g.Source
	if src == nil {
		src = rand.Reader
	}
	alphabet := big.NewInt(int64(len(model.CodeAlphabet)))
	code := make([]byte, model.CodeLength)
	for i := range code {
		num, err := rand.Int(src, alphabet)
		if err != nil {
			return "", err
		}
		code[i] = model.CodeAlphabet[num.Int64()]
	}
	return string(code), nil
}
