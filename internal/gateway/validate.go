package gateway

import (
	"fmt"
	"regexp"
	"strings"
)

// banks is the closed whitelist of 4-digit issuer codes the gateway accepts.
var banks = map[string]string{
	"0102": "Banco de Venezuela",
	"0104": "Venezolano de Crédito",
	"0105": "Banco Mercantil",
	"0108": "BBVA Provincial",
	"0114": "Bancaribe",
	"0115": "Banco Exterior",
	"0128": "Banco Caroní",
	"0134": "Banesco",
	"0137": "Sofitasa",
	"0138": "Banco Plaza",
	"0151": "BFC Banco Fondo Común",
	"0156": "100% Banco",
	"0157": "DelSur",
	"0163": "Banco del Tesoro",
	"0166": "Banco Agrícola de Venezuela",
	"0168": "Bancrecer",
	"0169": "Mi Banco",
	"0171": "Banco Activo",
	"0172": "Bancamiga",
	"0174": "Banplus",
	"0175": "Banco Bicentenario",
	"0177": "Banfanb",
	"0191": "BNC Banco Nacional de Crédito",
}

// mobilePrefixes are the Venezuelan mobile carrier prefixes.
var mobilePrefixes = map[string]bool{
	"0412": true,
	"0414": true,
	"0416": true,
	"0424": true,
	"0426": true,
}

var nationalIDPattern = regexp.MustCompile(`^[VEJG]\d{7,9}$`)

// ValidateBankCode checks the code against the whitelist and returns the
// bank's display name.
func ValidateBankCode(code string) (string, error) {
	name, ok := banks[code]
	if !ok {
		return "", fmt.Errorf("bank code %q is not in the accepted list", code)
	}
	return name, nil
}

// NormalizePhone converts a buyer phone to the local mobile format
// 0XXXXXXXXXX, accepting +58 / 58 international forms and stray separators.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, strings.TrimPrefix(strings.TrimSpace(phone), "+"))

	switch {
	case len(cleaned) == 12 && strings.HasPrefix(cleaned, "58"):
		cleaned = "0" + cleaned[2:]
	case len(cleaned) == 10 && !strings.HasPrefix(cleaned, "0"):
		cleaned = "0" + cleaned
	}

	if len(cleaned) != 11 {
		return "", fmt.Errorf("phone %q does not normalize to 11 digits", phone)
	}
	if !mobilePrefixes[cleaned[:4]] {
		return "", fmt.Errorf("phone prefix %q is not a Venezuelan mobile prefix", cleaned[:4])
	}
	return cleaned, nil
}

// NormalizeNationalID uppercases and strips separators, defaulting the V
// prefix when the caller sent digits only. Result matches [VEJG]\d{7,9}.
func NormalizeNationalID(id string) (string, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(id))
	cleaned = strings.NewReplacer(".", "", "-", "", " ", "").Replace(cleaned)

	if cleaned != "" && cleaned[0] >= '0' && cleaned[0] <= '9' {
		cleaned = "V" + cleaned
	}

	if !nationalIDPattern.MatchString(cleaned) {
		return "", fmt.Errorf("national id %q is not valid", id)
	}
	return cleaned, nil
}

// FormatAmount renders the fixed two-decimal amount string the gateway
// expects.
func FormatAmount(amount float64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("amount must be positive, got %.2f", amount)
	}
	return fmt.Sprintf("%.2f", amount), nil
}
