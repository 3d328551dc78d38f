package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// UploadTicketSigner binds a storage key to the application it was issued for,
// so a key handed out to one applicant cannot be attached to another application.
type UploadTicketSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewUploadTicketSigner constructs a signer with the provided secret and TTL.
func NewUploadTicketSigner(secret string, ttl time.Duration) *UploadTicketSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &UploadTicketSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue returns a ticket for the application and storage key.
func (s *UploadTicketSigner) Issue(applicationID, storageKey string) (string, time.Time, error) {
	if applicationID == "" || storageKey == "" {
		return "", time.Time{}, fmt.Errorf("applicationID and storageKey required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(storageKey))
	ts := fmt.Sprintf("%d", expiresAt.Unix())
	signature := s.sign(applicationID, ts, encodedKey)
	return strings.Join([]string{applicationID, ts, encodedKey, signature}, "."), expiresAt, nil
}

// Verify checks the ticket signature and expiry and that it was issued for the
// given application and storage key.
func (s *UploadTicketSigner) Verify(ticket, applicationID, storageKey string) error {
	parts := strings.Split(ticket, ".")
	if len(parts) != 4 {
		return fmt.Errorf("invalid ticket format")
	}
	ticketApp, ts, encodedKey, signature := parts[0], parts[1], parts[2], parts[3]

	rawKey, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return fmt.Errorf("decode storage key: %w", err)
	}
	expUnix, err := parseUnix(ts)
	if err != nil {
		return err
	}
	expected := s.sign(ticketApp, ts, encodedKey)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("invalid ticket signature")
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return fmt.Errorf("ticket expired")
	}
	if ticketApp != applicationID || string(rawKey) != storageKey {
		return fmt.Errorf("ticket was issued for another upload")
	}
	return nil
}

func (s *UploadTicketSigner) sign(applicationID, ts, encodedKey string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(fmt.Sprintf("%s|%s|%s", applicationID, ts, encodedKey)))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseUnix(raw string) (int64, error) {
	var ts int64
	_, err := fmt.Sscanf(raw, "%d", &ts)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp")
	}
	return ts, nil
}
