package token

import "github.com/golang-jwt/jwt"

// Claims is the JWT body carried by signed bearer tokens.
// The user id travels in the standard "sub" claim; no expiry is set.
type Claims struct {
	jwt.StandardClaims
}
