package otp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/url"
	"strconv"
	"strings"

	pqotp "github.com/pquerna/otp"
)

const defaultQRSize = 200

// ProvisioningURI builds an otpauth://totp URI for QR presentation. Label and
// issuer are percent-encoded as URI components.
func (m *Manager) ProvisioningURI(secret, label, issuer string) string {
	var b strings.Builder
	b.WriteString("otpauth://totp/")
	b.WriteString(encodeComponent(label))
	b.WriteString("?secret=")
	b.WriteString(secret)
	b.WriteString("&issuer=")
	b.WriteString(encodeComponent(issuer))
	b.WriteString("&digits=")
	b.WriteString(strconv.Itoa(m.config.Digits))
	b.WriteString("&period=")
	b.WriteString(strconv.Itoa(m.config.Period))
	if m.config.Algorithm != "SHA1" {
		b.WriteString("&algorithm=")
		b.WriteString(m.config.Algorithm)
	}
	return b.String()
}

// QRCodeDataURI renders uri as a PNG QR code and returns it as a data URI.
func QRCodeDataURI(uri string, size int) (string, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	key, err := pqotp.NewKeyFromURL(uri)
	if err != nil {
		return "", fmt.Errorf("parse provisioning uri: %w", err)
	}
	img, err := key.Image(size, size)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
