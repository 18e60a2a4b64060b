package security

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sso-identity-provider/internal/permission"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails signature, issuer, audience or kind checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned at construction when the signing secret is shorter than MinSecretLen bytes.
	ErrWeakSecret = errors.New("jwt signing secret too short")
	// ErrIssuerConfig is returned at construction when issuer or audience is empty.
	ErrIssuerConfig = errors.New("jwt issuer and audience are required")
)

// MinSecretLen is the minimum HMAC-SHA256 secret length in bytes.
const MinSecretLen = 32

// Kind distinguishes central session tokens from system-scoped access tokens.
type Kind string

const (
	KindSession Kind = "session"
	KindAccess  Kind = "access"
)

// ParseKind maps a client-supplied kind string to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSession:
		return KindSession, true
	case KindAccess:
		return KindAccess, true
	}
	return "", false
}

// PermissionClaim is the encoded module bitfield for one system, serialized as "Access:<SystemCode>": "<decimal>".
type PermissionClaim struct {
	SystemCode string
	Value      string
}

// Claims is the claim set of both token kinds. Fields that do not apply to a kind are omitted.
type Claims struct {
	jwt.RegisteredClaims
	SessionID      string   `json:"sid,omitempty"`
	Email          string   `json:"email,omitempty"`
	TokenType      Kind     `json:"token_type"`
	Scope          string   `json:"scope,omitempty"`
	Systems        []string `json:"system,omitempty"`
	DocumentType   string   `json:"document_type,omitempty"`
	DocumentNumber string   `json:"document_number,omitempty"`
	Username       string   `json:"username,omitempty"`
	FullName       string   `json:"name,omitempty"`
	SystemName     string   `json:"system_name,omitempty"`
	Roles          []string `json:"role,omitempty"`

	Permission *PermissionClaim `json:"-"`
}

type plainClaims Claims

// MarshalJSON adds the dynamically named permission claim next to the static fields.
func (c Claims) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(plainClaims(c))
	if err != nil || c.Permission == nil || c.Permission.SystemCode == "" {
		return b, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	v, err := json.Marshal(c.Permission.Value)
	if err != nil {
		return nil, err
	}
	fields[permission.ClaimName(c.Permission.SystemCode)] = v
	return json.Marshal(fields)
}

// UnmarshalJSON reads the static fields and picks up an "Access:<code>" claim if present.
func (c *Claims) UnmarshalJSON(b []byte) error {
	var p plainClaims
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = Claims(p)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	prefix := permission.ClaimName("")
	for k, raw := range fields {
		if !strings.HasPrefix(k, prefix) || len(k) == len(prefix) {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		c.Permission = &PermissionClaim{SystemCode: strings.TrimPrefix(k, prefix), Value: v}
		break
	}
	return nil
}

// Subject is the identity a token is issued for. TokenID becomes the jti and is generated when empty.
type Subject struct {
	UserID          string
	TokenID         string
	SessionRecordID string
	Email           string
	DocumentType    string
	DocumentNumber  string
	Username        string
	FullName        string
}

// Target selects the token kind and its kind-specific claims. It is either Central or System.
type Target interface {
	kind() Kind
}

// Central targets the identity provider itself; Systems lists the codes the subject may upgrade to.
type Central struct {
	Systems []string
	Scope   string
}

// System targets one downstream application; the token audience is Name.
type System struct {
	Name       string
	Code       string
	Scope      string
	Roles      []string
	Permission string
}

func (Central) kind() Kind { return KindSession }
func (System) kind() Kind  { return KindAccess }

// Issued is a signed token and the metadata the caller needs to record it in the session ledger.
type Issued struct {
	Token     string
	TokenID   string
	Kind      Kind
	Audience  string
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssuerConfig is the immutable signing configuration, read once at startup.
type IssuerConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// TokenIssuer mints and validates HS256 tokens. It holds no mutable state.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenIssuer validates cfg and returns a TokenIssuer. A bad configuration is a startup failure.
func NewTokenIssuer(cfg IssuerConfig) (*TokenIssuer, error) {
	if len(cfg.Secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, ErrIssuerConfig
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &TokenIssuer{secret: secret, issuer: cfg.Issuer, audience: cfg.Audience}, nil
}

// Audience returns the configured audience of central tokens.
func (p *TokenIssuer) Audience() string { return p.audience }

// Issue signs a token for subject with the claim set selected by target, valid for validity from now.
func (p *TokenIssuer) Issue(subject Subject, target Target, validity time.Duration) (Issued, error) {
	if subject.UserID == "" || target == nil || validity <= 0 {
		return Issued{}, ErrInvalidToken
	}
	jti := subject.TokenID
	if jti == "" {
		jti = uuid.New().String()
	}
	now := time.Now().UTC()
	expiresAt := now.Add(validity)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject.UserID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: subject.SessionRecordID,
		Email:     subject.Email,
		TokenType: target.kind(),
	}
	switch t := target.(type) {
	case Central:
		claims.Audience = jwt.ClaimStrings{p.audience}
		claims.Scope = t.Scope
		claims.Systems = append([]string(nil), t.Systems...)
	case System:
		if t.Name == "" {
			return Issued{}, ErrInvalidToken
		}
		claims.Audience = jwt.ClaimStrings{t.Name}
		claims.Scope = t.Scope
		claims.DocumentType = subject.DocumentType
		claims.DocumentNumber = subject.DocumentNumber
		claims.Username = subject.Username
		claims.FullName = subject.FullName
		claims.SystemName = t.Name
		claims.Roles = append([]string(nil), t.Roles...)
		if t.Permission != "" && t.Code != "" {
			claims.Permission = &PermissionClaim{SystemCode: t.Code, Value: t.Permission}
		}
	default:
		return Issued{}, ErrInvalidToken
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		Token:     token,
		TokenID:   jti,
		Kind:      claims.TokenType,
		Audience:  claims.Audience[0],
		Scope:     claims.Scope,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// IssueCentralToken issues a session token listing the systems the subject is authorized for.
func (p *TokenIssuer) IssueCentralToken(userID, sessionTokenID, sessionRecordID, email string, systemCodes []string, scope string, validity time.Duration) (Issued, error) {
	return p.Issue(Subject{
		UserID:          userID,
		TokenID:         sessionTokenID,
		SessionRecordID: sessionRecordID,
		Email:           email,
	}, Central{Systems: systemCodes, Scope: scope}, validity)
}

// IssueSystemToken issues an access token whose audience is systemName and which carries the subject's roles there.
func (p *TokenIssuer) IssueSystemToken(subject Subject, roleNames []string, systemName, scope string, validity time.Duration) (Issued, error) {
	return p.Issue(subject, System{Name: systemName, Scope: scope, Roles: roleNames}, validity)
}

// Parse validates signature, expiry, issuer, token kind and audience. An empty audience
// defaults to the central audience for session tokens and skips the check for access tokens.
func (p *TokenIssuer) Parse(tokenString string, kind Kind, audience string) (*Claims, error) {
	claims, err := p.ParseAny(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != kind {
		return nil, ErrInvalidToken
	}
	if audience == "" && kind == KindSession {
		audience = p.audience
	}
	if audience != "" && !hasAudience(claims.Audience, audience) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseAny validates signature, expiry and issuer of a token of either kind.
func (p *TokenIssuer) ParseAny(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
