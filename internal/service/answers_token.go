package service

import (
	"certify_backend/internal/util"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	answersTokenVersion = 1
	answersTokenAAD     = "certify/answers-token/v1"
)

// AnswersPayload 答案令牌内容，客户端无法解读或篡改
type AnswersPayload struct {
	Version  int    `json:"v"`
	UserID   uint   `json:"uid"`
	Course   string `json:"c"`
	Attempt  int    `json:"a"`
	Answers  []int  `json:"k"`
	IssuedAt int64  `json:"iat"`
}

// AnswersTokenCodec 使用 XChaCha20-Poly1305 加密正确答案
type AnswersTokenCodec struct {
	aead cipher.AEAD
	ttl  time.Duration
	now  func() time.Time
}

func NewAnswersTokenCodec(secret string, ttl time.Duration) (*AnswersTokenCodec, error) {
	if secret == "" {
		return nil, errors.New("answers token secret is empty")
	}
	key := sha256.Sum256([]byte(secret))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	return &AnswersTokenCodec{aead: aead, ttl: ttl, now: time.Now}, nil
}

func (c *AnswersTokenCodec) Encode(p AnswersPayload) (string, error) {
	p.Version = answersTokenVersion
	if p.IssuedAt == 0 {
		p.IssuedAt = c.now().Unix()
	}
	plain, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, plain, []byte(answersTokenAAD))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode 解密并校验令牌，所有失败都归为 ErrInvalidAnswersToken
func (c *AnswersTokenCodec) Decode(token string) (*AnswersPayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed encoding", util.ErrInvalidAnswersToken)
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: too short", util.ErrInvalidAnswersToken)
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, []byte(answersTokenAAD))
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", util.ErrInvalidAnswersToken)
	}

	var p AnswersPayload
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, fmt.Errorf("%w: bad payload", util.ErrInvalidAnswersToken)
	}
	if p.Version != answersTokenVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", util.ErrInvalidAnswersToken, p.Version)
	}
	if len(p.Answers) == 0 {
		return nil, fmt.Errorf("%w: no answers", util.ErrInvalidAnswersToken)
	}
	for _, idx := range p.Answers {
		if idx < 0 || idx >= optionsPerQuestion {
			return nil, fmt.Errorf("%w: answer index out of range", util.ErrInvalidAnswersToken)
		}
	}
	if c.ttl > 0 && c.now().Sub(time.Unix(p.IssuedAt, 0)) > c.ttl {
		return nil, fmt.Errorf("%w: expired", util.ErrInvalidAnswersToken)
	}
	return &p, nil
}
