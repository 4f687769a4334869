// redact — маскирование чувствительных значений в логах.
//
// BFF проксирует чужие секреты (google id_token, access/refresh-токены бэкенда),
// поэтому в логи попадают только литералы-заглушки и усечённые e-mail.
package redact

import "strings"

// Email маскирует локальную часть адреса, сохраняя домен:
// "foobar@example.com" -> "fo***@example.com". Невалидный формат -> "***".
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := parts[0], parts[1]
	if r := []rune(local); len(r) > 2 {
		local = string(r[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token — литерал вместо любого bearer/refresh/id-токена.
func Token() string { return "[REDACTED_TOKEN]" }

// Present — признак наличия секрета без его значения (для диагностических логов).
func Present(s string) string {
	if s == "" {
		return "absent"
	}

	return "present"
}
