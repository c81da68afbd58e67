package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HubTokens signs the login token the hub's JWT authenticator accepts
// through ?auth_token=. The same token authenticates the notebook client
// against the webservice and the gradeservice.
type HubTokens struct{ secret []byte }

func NewHubTokens(secret string) *HubTokens { return &HubTokens{secret: []byte(secret)} }

type hubClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Sign returns an HS256 token carrying {"name": user}.
func (h *HubTokens) Sign(user string) (string, error) {
	if user == "" {
		return "", errors.New("hub token: empty user")
	}
	c := hubClaims{
		Name:             user,
		RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now())},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(h.secret)
}

// Verify checks the signature and returns the name claim.
func (h *HubTokens) Verify(tok string) (string, error) {
	tok = strings.TrimSpace(strings.TrimPrefix(tok, "Bearer "))
	var c hubClaims
	_, err := jwt.ParseWithClaims(tok, &c, func(*jwt.Token) (interface{}, error) {
		return h.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if c.Name == "" {
		return "", errors.New("hub token: missing name")
	}
	return c.Name, nil
}
