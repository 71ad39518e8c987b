package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"docchat/internal/docchat"
	"docchat/internal/model"
)

const restTimeout = 30 * time.Second

// RESTProvider talks to an Identity Toolkit compatible REST API
// (accounts:signInWithPassword, accounts:signUp and the secure token
// endpoint).
type RESTProvider struct {
	accountsURL string
	tokenURL    string
	apiKey      string
	httpClient  *http.Client
	clock       docchat.Clock
}

var _ docchat.IdentityProvider = (*RESTProvider)(nil)

// RESTOptions configures a RESTProvider.
type RESTOptions struct {
	URL        string // accounts API root, e.g. https://identitytoolkit.googleapis.com/v1
	TokenURL   string // secure token API root, e.g. https://securetoken.googleapis.com/v1
	APIKey     string
	HTTPClient *http.Client // optional
}

// NewRESTProvider creates a RESTProvider.
func NewRESTProvider(opts RESTOptions, clock docchat.Clock) (*RESTProvider, error) {
	if opts.URL == "" || opts.TokenURL == "" {
		return nil, fmt.Errorf("identity url and token_url are required")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("identity api_key is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: restTimeout}
	}
	return &RESTProvider{
		accountsURL: strings.TrimRight(opts.URL, "/"),
		tokenURL:    strings.TrimRight(opts.TokenURL, "/"),
		apiKey:      opts.APIKey,
		httpClient:  client,
		clock:       clock,
	}, nil
}

type accountResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
}

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

func (p *RESTProvider) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	return p.account(ctx, "accounts:signInWithPassword", email, password)
}

func (p *RESTProvider) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	return p.account(ctx, "accounts:signUp", email, password)
}

func (p *RESTProvider) account(ctx context.Context, method, email, password string) (*model.Session, error) {
	body, err := json.Marshal(map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	var resp accountResponse
	endpoint := p.accountsURL + "/" + method + "?key=" + url.QueryEscape(p.apiKey)
	if err := p.post(ctx, endpoint, "application/json", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}

	return p.session(resp.IDToken, resp.RefreshToken, resp.ExpiresIn, model.User{ID: resp.LocalID, Email: resp.Email})
}

func (p *RESTProvider) Refresh(ctx context.Context, session *model.Session) (*model.Session, error) {
	if session.RefreshToken == "" {
		return nil, &docchat.AuthError{Code: docchat.AuthSessionExpired}
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {session.RefreshToken},
	}

	var resp tokenResponse
	endpoint := p.tokenURL + "/token?key=" + url.QueryEscape(p.apiKey)
	if err := p.post(ctx, endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &resp); err != nil {
		return nil, err
	}

	user := session.User
	if resp.UserID != "" {
		user.ID = resp.UserID
	}
	return p.session(resp.IDToken, resp.RefreshToken, resp.ExpiresIn, user)
}

// SignOut is local only: the REST API has no sign-out endpoint and ID tokens
// simply expire.
func (p *RESTProvider) SignOut(ctx context.Context, session *model.Session) error {
	return nil
}

func (p *RESTProvider) session(idToken, refreshToken, expiresIn string, user model.User) (*model.Session, error) {
	if idToken == "" {
		return nil, &docchat.AuthError{Code: "auth/internal-error", Cause: fmt.Errorf("response carried no id token")}
	}

	fallback := p.clock.Now().Add(time.Hour)
	if secs, err := strconv.Atoi(expiresIn); err == nil {
		fallback = p.clock.Now().Add(time.Duration(secs) * time.Second)
	}

	expiresAt := fallback
	if claims, err := ParseUnverified(idToken); err == nil {
		expiresAt = claims.expiry(fallback)
		if user.ID == "" {
			user.ID = claims.Subject
		}
		if user.Email == "" {
			user.Email = claims.Email
		}
	}

	return &model.Session{
		User:         user,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func (p *RESTProvider) post(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("building identity request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &docchat.AuthError{Code: "auth/network-request-failed", Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &docchat.AuthError{Code: "auth/network-request-failed", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(data, &payload)
		return &docchat.AuthError{
			Code:  errorCode(payload.Error.Message),
			Cause: fmt.Errorf("%s: %s", resp.Status, payload.Error.Message),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding identity response: %w", err)
	}
	return nil
}

// restErrorCodes maps REST error messages to client error codes.
var restErrorCodes = map[string]string{
	"EMAIL_NOT_FOUND":             docchat.AuthUserNotFound,
	"INVALID_PASSWORD":            docchat.AuthWrongPassword,
	"INVALID_LOGIN_CREDENTIALS":   docchat.AuthInvalidCredential,
	"TOO_MANY_ATTEMPTS_TRY_LATER": docchat.AuthTooManyRequests,
	"EMAIL_EXISTS":                docchat.AuthEmailInUse,
	"INVALID_EMAIL":               docchat.AuthInvalidEmail,
	"MISSING_EMAIL":               docchat.AuthInvalidEmail,
	"WEAK_PASSWORD":               docchat.AuthWeakPassword,
	"TOKEN_EXPIRED":               docchat.AuthSessionExpired,
	"INVALID_REFRESH_TOKEN":       docchat.AuthSessionExpired,
	"USER_NOT_FOUND":              docchat.AuthUserNotFound,
	"USER_DISABLED":               "auth/user-disabled",
}

// errorCode maps a REST error message such as "WEAK_PASSWORD : Password
// should be at least 6 characters" to a client error code.
func errorCode(message string) string {
	key, _, _ := strings.Cut(message, " ")
	key = strings.TrimSpace(key)
	if code, ok := restErrorCodes[key]; ok {
		return code
	}
	return "auth/internal-error"
}
