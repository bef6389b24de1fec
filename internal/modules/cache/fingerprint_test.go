package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "what is rag", Normalize("  What   IS\trag "))
	assert.Equal(t, "a b", Normalize("A\n\nB"))
	assert.Equal(t, "", Normalize("   "))
}

func TestFingerprintCollapsesCaseAndWhitespace(t *testing.T) {
	a := Fingerprint("What is RAG?")
	b := Fingerprint("  what   is rag? ")
	assert.Equal(t, a, b)
}

func TestFingerprintShape(t *testing.T) {
	fp := Fingerprint("transformer basics")
	assert.Len(t, fp, 32)
	assert.Regexp(t, "^[0-9a-f]{32}$", fp)
}

func TestFingerprintDistinctQueries(t *testing.T) {
	assert.NotEqual(t, Fingerprint("what is rag"), Fingerprint("what is a transformer"))
}

func TestFingerprintDeterministic(t *testing.T) {
	assert.Equal(t, Fingerprint("attention is all you need"), Fingerprint("attention is all you need"))
}
