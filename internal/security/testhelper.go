package security

// testSecret is a fixed HS256 secret for unit tests only. Do not use in production.
const testSecret = "test-secret-0123456789abcdefghijklmnop"

// NewTestTokenIssuer returns a TokenIssuer using the embedded test secret.
// For unit tests only. Callers must not use in production.
func NewTestTokenIssuer() *TokenIssuer {
	p, err := NewTokenIssuer(IssuerConfig{Secret: []byte(testSecret), Issuer: "test-issuer", Audience: "test-central"})
	if err != nil {
		panic(err)
	}
	return p
}
