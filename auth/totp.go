package auth

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	codePeriod = 30
	// Codes up to two periods early or late are accepted.
	codeSkew = 2
	qrSize   = 200
)

var validateOpts = totp.ValidateOpts{
	Period:    codePeriod,
	Skew:      codeSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Enrollment is shown to the admin once, to load the new secret into an authenticator app.
type Enrollment struct {
	// PNG data URL of the otpauth:// QR code.
	QRCode string `json:"qrCode"`
	// Base32 secret, the plaintext fallback for manual entry.
	Secret string `json:"secret"`
	URL    string `json:"-"`
}

func newEnrollment(issuer, account string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      codePeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return Enrollment{}, fmt.Errorf("qr image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Enrollment{}, fmt.Errorf("png encode: %w", err)
	}

	return Enrollment{
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Secret: key.Secret(),
		URL:    key.URL(),
	}, nil
}

// ValidCode reports whether code is the one-time code for secret at t, within the skew window.
func validCode(code, secret string, t time.Time) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.UTC(), validateOpts)
	return err == nil && ok
}
