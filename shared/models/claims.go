package models

import "github.com/golang-jwt/jwt/v5"

// Claims - полезная нагрузка JWT, выдаваемого внешним auth-коллаборатором.
// Черновиковый сервис только проверяет подпись и пробрасывает wallet/role в контекст;
// никаких решений об авторизации внутри draft-логики не принимается.
type Claims struct {
	Wallet string `json:"wallet,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Gin context keys used by the auth middleware.
const (
	ContextKeyWallet = "authWallet"
	ContextKeyRole   = "authRole"
)
