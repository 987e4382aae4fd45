package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_AddToken(t *testing.T) {
	r := NewRecord(DeriveKey("did:x:1", "ctxA"), "ctxA")
	assert.True(t, r.IsNew())

	assert.True(t, r.AddToken("dev1"))
	assert.False(t, r.AddToken("dev1"))
	assert.True(t, r.AddToken("dev2"))

	assert.Equal(t, []string{"dev1", "dev2"}, r.Tokens())
}

func TestRecord_RemoveToken(t *testing.T) {
	r := NewRecord(DeriveKey("did:x:1", "ctxA"), "ctxA")
	r.AddToken("dev1")
	r.AddToken("dev2")

	assert.False(t, r.RemoveToken("dev9"))
	assert.True(t, r.RemoveToken("dev1"))
	assert.Equal(t, []string{"dev2"}, r.Tokens())

	assert.True(t, r.RemoveToken("dev2"))
	assert.Empty(t, r.Tokens())
	assert.NotNil(t, r.DeviceTokens)
}

func TestRecord_TokensIsCopy(t *testing.T) {
	r := NewRecord("k", "ctx")
	r.AddToken("dev1")

	tokens := r.Tokens()
	tokens[0] = "mutated"
	assert.Equal(t, []string{"dev1"}, r.Tokens())
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Dedupe([]string{"a", "b", "a", "c", "b"}))
	assert.Empty(t, Dedupe(nil))
}

func TestNextRevision(t *testing.T) {
	first := NextRevision("")
	assert.Regexp(t, `^1-[0-9a-f]{32}$`, first)

	second := NextRevision(first)
	assert.Regexp(t, `^2-[0-9a-f]{32}$`, second)
	assert.NotEqual(t, NextRevision(first), second)

	assert.Regexp(t, `^1-`, NextRevision("garbage"))
}
