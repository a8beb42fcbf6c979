package widget

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// tokenTTL bounds how long a generated token stays valid.
const tokenTTL = time.Hour

type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

type tokenUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	ID    string `json:"id"`
}

type tokenContext struct {
	User     tokenUser       `json:"user"`
	Features map[string]bool `json:"features"`
}

type tokenPayload struct {
	Issuer    string       `json:"iss"`
	Audience  string       `json:"aud"`
	ExpiresAt int64        `json:"exp"`
	NotBefore int64        `json:"nbf"`
	IssuedAt  int64        `json:"iat"`
	Room      string       `json:"room"`
	Subject   string       `json:"sub"`
	Context   tokenContext `json:"context"`
	Moderator bool         `json:"moderator"`
}

// Token builds an unsigned demo JWT identifying the user to the widget and
// granting host-only features to moderators. Servers requiring real
// authentication will reject it; the token is configuration, not security.
func Token(room, userName, domain string, host bool) string {
	now := time.Now().Unix()
	payload := tokenPayload{
		Issuer:    "embedmeet",
		Audience:  "jitsi",
		ExpiresAt: now + int64(tokenTTL.Seconds()),
		NotBefore: now,
		IssuedAt:  now,
		Room:      room,
		Subject:   domain,
		Context: tokenContext{
			User: tokenUser{
				Name:  userName,
				Email: strings.ToLower(strings.ReplaceAll(userName, " ", "")) + "@guest.jitsi",
				ID:    uuid.NewString(),
			},
			Features: map[string]bool{
				"livestreaming": host,
				"recording":     host,
				"transcription": host,
				"outbound-call": host,
			},
		},
		Moderator: host,
	}

	headerJSON, _ := json.Marshal(tokenHeader{Alg: "HS256", Typ: "JWT"})
	payloadJSON, _ := json.Marshal(payload)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(headerJSON) + "." + enc.EncodeToString(payloadJSON) + ".unsigned"
}
