package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// VerifyTelegramInitData validates the HMAC signature of a Telegram Mini App
// initData payload. The secret key is HMAC-SHA256("WebAppData", botToken) per
// the Telegram Web App spec.
func VerifyTelegramInitData(initData, botToken string) bool {
	if botToken == "" {
		return false
	}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return false
	}
	gotHash := values.Get("hash")
	if gotHash == "" {
		return false
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	checkString := strings.Join(pairs, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))
	want := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(want), []byte(gotHash))
}
