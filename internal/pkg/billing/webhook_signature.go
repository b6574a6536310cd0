package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	signatureTimestampKey = "t"
	signatureSchemeV1     = "v1"
)

// VerifySignature checks a "t=<unix>,v1=<hex>" signature header against the raw
// request body. The digest is HMAC-SHA256 over "<t>.<payload>". Several v1
// entries may be present while a secret is being rotated. A tolerance of zero
// disables the replay window check.
func VerifySignature(payload []byte, signatureHeader, secret string, tolerance time.Duration, now time.Time) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("%w: webhook secret is not configured", ErrSignatureInvalid)
	}

	ts, sigs, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return err
	}

	if tolerance > 0 && now.Sub(ts) > tolerance {
		return fmt.Errorf("%w: timestamp %s outside tolerance %s", ErrSignatureInvalid, ts.UTC().Format(time.RFC3339), tolerance)
	}

	expected := computeSignature(ts, payload, secret)
	for _, sig := range sigs {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", ErrSignatureInvalid)
}

// SignPayload produces a header VerifySignature accepts. Used by tests and by
// local tooling that replays webhooks.
func SignPayload(payload []byte, secret string, ts time.Time) string {
	sig := computeSignature(ts, payload, secret)
	return fmt.Sprintf("%s=%d,%s=%s", signatureTimestampKey, ts.Unix(), signatureSchemeV1, hex.EncodeToString(sig))
}

func computeSignature(ts time.Time, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (time.Time, [][]byte, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return time.Time{}, nil, fmt.Errorf("%w: missing signature header", ErrSignatureInvalid)
	}

	var (
		ts      time.Time
		haveTS  bool
		entries [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case signatureTimestampKey:
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return time.Time{}, nil, fmt.Errorf("%w: bad timestamp", ErrSignatureInvalid)
			}
			ts = time.Unix(unix, 0)
			haveTS = true
		case signatureSchemeV1:
			sig, err := hex.DecodeString(value)
			if err != nil {
				// Unknown encodings are skipped, other entries may still match.
				continue
			}
			entries = append(entries, sig)
		}
	}

	if !haveTS {
		return time.Time{}, nil, fmt.Errorf("%w: missing timestamp", ErrSignatureInvalid)
	}
	if len(entries) == 0 {
		return time.Time{}, nil, fmt.Errorf("%w: no v1 signature", ErrSignatureInvalid)
	}
	return ts, entries, nil
}
