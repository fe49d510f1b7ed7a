package service

import (
	"certify_backend/internal/util"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, ttl time.Duration) *AnswersTokenCodec {
	t.Helper()
	c, err := NewAnswersTokenCodec("unit-test-secret", ttl)
	require.NoError(t, err)
	return c
}

func TestAnswersTokenRoundTrip(t *testing.T) {
	c := newTestCodec(t, time.Hour)

	token, err := c.Encode(AnswersPayload{UserID: 7, Course: "trafego-pago", Attempt: 2, Answers: []int{0, 3, 1, 2}})
	require.NoError(t, err)

	assert.NotContains(t, token, "trafego-pago", "token must not expose the payload")

	p, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), p.UserID)
	assert.Equal(t, "trafego-pago", p.Course)
	assert.Equal(t, 2, p.Attempt)
	assert.Equal(t, []int{0, 3, 1, 2}, p.Answers)
	assert.Equal(t, answersTokenVersion, p.Version)
}

func TestAnswersTokenEncodingIsRandomized(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	payload := AnswersPayload{UserID: 1, Course: "x", Attempt: 1, Answers: []int{1}}

	a, err := c.Encode(payload)
	require.NoError(t, err)
	b, err := c.Encode(payload)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAnswersTokenRejectsTampering(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	token, err := c.Encode(AnswersPayload{UserID: 1, Course: "x", Attempt: 1, Answers: []int{1, 2}})
	require.NoError(t, err)

	// 改写密文中间的一个字符
	mid := len(token) / 2
	repl := "A"
	if token[mid] == 'A' {
		repl = "B"
	}
	tampered := token[:mid] + repl + token[mid+1:]

	cases := map[string]string{
		"tampered":  tampered,
		"truncated": token[:10],
		"garbage":   "not a token!",
		"empty":     "",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode(tok)
			assert.ErrorIs(t, err, util.ErrInvalidAnswersToken)
		})
	}
}

func TestAnswersTokenRejectsOtherSecret(t *testing.T) {
	token, err := newTestCodec(t, time.Hour).Encode(AnswersPayload{UserID: 1, Course: "x", Attempt: 1, Answers: []int{1}})
	require.NoError(t, err)

	other, err := NewAnswersTokenCodec("another-secret", time.Hour)
	require.NoError(t, err)

	_, err = other.Decode(token)
	assert.ErrorIs(t, err, util.ErrInvalidAnswersToken)
}

func TestAnswersTokenExpires(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return issued }

	token, err := c.Encode(AnswersPayload{UserID: 1, Course: "x", Attempt: 1, Answers: []int{1}})
	require.NoError(t, err)

	c.now = func() time.Time { return issued.Add(59 * time.Minute) }
	_, err = c.Decode(token)
	require.NoError(t, err)

	c.now = func() time.Time { return issued.Add(61 * time.Minute) }
	_, err = c.Decode(token)
	require.ErrorIs(t, err, util.ErrInvalidAnswersToken)
	assert.True(t, strings.Contains(err.Error(), "expired"))
}

func TestAnswersTokenRejectsOutOfRangeAnswers(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	token, err := c.Encode(AnswersPayload{UserID: 1, Course: "x", Attempt: 1, Answers: []int{0, 4}})
	require.NoError(t, err)

	_, err = c.Decode(token)
	assert.ErrorIs(t, err, util.ErrInvalidAnswersToken)
}

func TestNewAnswersTokenCodecRequiresSecret(t *testing.T) {
	_, err := NewAnswersTokenCodec("", time.Hour)
	assert.Error(t, err)
}
