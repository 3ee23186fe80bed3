// Package auth provides JWT based authenticate and authorize hooks for the file
// protocol handler.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"remotefs/protocol"
	ws "remotefs/websocket"
)

const claimsKey = "claims"

// Claims holds JWT token claims.
type Claims struct {
	// ReadOnly restricts the bearer to operations that do not modify storage.
	ReadOnly bool `json:"read_only,omitempty"`
	jwt.RegisteredClaims
}

// JWT validates HMAC signed tokens presented when a connection opens.
type JWT struct {
	secret []byte
	log    *zap.Logger
}

func NewJWT(secret string, log *zap.Logger) (*JWT, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JWT{secret: []byte(secret), log: log.Named("auth")}, nil
}

// Authenticate is a websocket.AuthenticateFunc. Valid claims are stored on the session.
func (a *JWT) Authenticate(sess *ws.Session) bool {
	tokenStr := extractToken(sess.Request)
	if tokenStr == "" {
		a.log.Debug("missing token", zap.String("remote", sess.RemoteAddr))
		return false
	}

	claims, err := a.Validate(tokenStr)
	if err != nil {
		a.log.Debug("invalid token", zap.String("remote", sess.RemoteAddr), zap.Error(err))
		return false
	}
	sess.Set(claimsKey, claims)
	return true
}

// Authorize is an fs.AuthorizeFunc honoring the read-only claim.
func (a *JWT) Authorize(op protocol.Op, _ string, sess *ws.Session) bool {
	claims := GetClaims(sess)
	if claims == nil {
		return false
	}
	if claims.ReadOnly && (op.Mutating() || op == protocol.OpDelete) {
		return false
	}
	return true
}

// GetClaims returns the claims stored by Authenticate, or nil.
func GetClaims(sess *ws.Session) *Claims {
	v, ok := sess.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

func (a *JWT) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func extractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	// Bearer token from Authorization header
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Browsers cannot set headers on a WebSocket handshake.
	return r.URL.Query().Get("token")
}
