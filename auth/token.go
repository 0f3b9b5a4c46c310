// Package auth issues and validates the signed match tokens that spawned
// game servers present when reporting results, plus the password digest
// shared with the database collaborator's user records.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lobby-lab/domain"
	"lobby-lab/errors"
)

// MatchClaims scope a token to exactly one room and match, so a game
// server can only report the result of the match it was launched for.
type MatchClaims struct {
	RoomID  string `json:"room_id"`
	MatchID string `json:"match_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs match tokens with the lobby's secret. The secret is
// injected from configuration, never hardcoded.
type TokenIssuer struct {
	secret   []byte
	duration time.Duration
}

func NewTokenIssuer(secret string, duration time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), duration: duration}
}

// Issue creates a signed token for the game server launched for roomID.
func (i *TokenIssuer) Issue(roomID domain.RoomID, matchID string) (string, error) {
	now := time.Now()
	claims := &MatchClaims{
		RoomID:  string(roomID),
		MatchID: matchID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "lobby-lab",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate parses tokenString and checks its signature, expiry and that
// it was minted for roomID.
func (i *TokenIssuer) Validate(tokenString string, roomID domain.RoomID) (*MatchClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MatchClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidMatchToken, err)
	}

	claims, ok := token.Claims.(*MatchClaims)
	if !ok || !token.Valid {
		return nil, errors.ErrInvalidMatchToken
	}
	if claims.RoomID != string(roomID) {
		return nil, fmt.Errorf("%w: token is for another room", errors.ErrInvalidMatchToken)
	}
	return claims, nil
}
