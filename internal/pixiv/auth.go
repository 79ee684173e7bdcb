package pixiv

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/icceey/pixivbot-sub000/internal/provider"
)

// App client constants, lifted from the app's own hardcoded OAuth
// credentials (pixivpy's reverse-engineering of the iOS app).
const (
	clientID     = "MOBrBDS8blbauoSck0ZfDbtuzpyT"
	clientSecret = "lsACyCD94FhDUtGTXi3QzcFE2uU1hqtDaKeqrdwj"
	hashSecret   = "28c1fdd170a5204386cb1313c7077b34f83e4aaf4aa829ce78c231e05b0bae2c"
	authURL      = "https://oauth.secure.pixiv.net/auth/token"
	userAgent    = "PixivIOSApp/7.13.3 (iOS 14.6; iPhone13,2)"
)

type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// clientTimeHash computes the X-Client-Time/X-Client-Hash pair the app API
// requires on every auth request: md5(rfc3339-ish-timestamp + hashSecret).
func clientTimeHash(now time.Time) (clientTime, hash string) {
	clientTime = now.UTC().Format("2006-01-02T15:04:05+00:00")
	sum := md5.Sum([]byte(clientTime + hashSecret))
	return clientTime, hex.EncodeToString(sum[:])
}

// authWithRefreshToken exchanges a refresh token for a fresh access token.
func authWithRefreshToken(ctx context.Context, httpClient *http.Client, refreshToken string) (authResponse, error) {
	clientTime, hash := clientTimeHash(time.Now())

	form := url.Values{
		"get_secure_url": {"1"},
		"client_id":      {clientID},
		"client_secret":  {clientSecret},
		"grant_type":     {"refresh_token"},
		"refresh_token":  {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return authResponse{}, fmt.Errorf("pixiv: build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Client-Time", clientTime)
	req.Header.Set("X-Client-Hash", hash)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("App-OS", "ios")
	req.Header.Set("App-OS-Version", "14.6")

	resp, err := httpClient.Do(req)
	if err != nil {
		return authResponse{}, &provider.Error{
			Provider: "pixiv", Code: provider.ErrCodeNetworkError,
			Message: err.Error(), Temporary: true, Cause: err,
		}
	}
	defer resp.Body.Close()

	return decodeAuthResponse(resp)
}
