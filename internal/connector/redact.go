package connector

import "strings"

// SecretMask replaces secret values in surfaced messages
const SecretMask = "***"

// Redact returns message with every literal occurrence of each secret replaced by SecretMask
func Redact(message string, secrets []string) string {
	if message == "" {
		return ""
	}
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		message = strings.ReplaceAll(message, secret, SecretMask)
	}
	return message
}
