package core

import (
	"math/rand/v2"

	"github.com/okomel/huddle/internal/domain"
)

// codeAlphabet excludes visually ambiguous characters (I/1, O/0).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeGenerator draws fixed-length room codes uniformly at random.
// Uniqueness against live rooms is the store's job, not the generator's.
type CodeGenerator struct {
	length int
}

func NewCodeGenerator(length int) *CodeGenerator {
	return &CodeGenerator{length: length}
}

func (g *CodeGenerator) Next() domain.RoomCode {
	buf := make([]byte, g.length)
	for i := range buf {
		buf[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return domain.RoomCode(buf)
}
