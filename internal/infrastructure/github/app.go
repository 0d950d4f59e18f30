package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/infrastructure/credentials"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

// App issues installation tokens with the app's own JWT.
type App struct {
	client *Client
	appId  int64
	key    []byte
	now    func() time.Time
}

func NewApp(client *Client, appId int64, privateKeyPEM string) *App {
	return &App{
		client: client,
		appId:  appId,
		key:    []byte(privateKeyPEM),
		now:    time.Now,
	}
}

func (a *App) appToken() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(a.key)
	if err != nil {
		return "", domain.WrapError(err, errcodes.InternalServerError, "invalid github app private key")
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		// backdated against clock drift between us and GitHub
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    strconv.FormatInt(a.appId, 10),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", domain.WrapError(err, errcodes.InternalServerError, "failed to sign github app jwt")
	}
	return signed, nil
}

// IssueInstallationToken exchanges the app JWT for an installation access token.
func (a *App) IssueInstallationToken(ctx context.Context, installationId int64) (credentials.Token, error) {
	appJWT, err := a.appToken()
	if err != nil {
		return credentials.Token{}, err
	}

	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	path := fmt.Sprintf("/app/installations/%d/access_tokens", installationId)
	if _, err := a.client.send(ctx, "Bearer "+appJWT, http.MethodPost, path, nil, &resp, http.StatusCreated); err != nil {
		return credentials.Token{}, err
	}

	return credentials.Token{Value: resp.Token, ExpiresAt: resp.ExpiresAt}, nil
}
