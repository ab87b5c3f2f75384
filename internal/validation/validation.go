// Package validation содержит функции валидации входных данных.
package validation

const (
	minOrderIDLen = 6
	maxOrderIDLen = 64

	minUsernameLen = 3
	maxUsernameLen = 32
)

// IsValidOrderID проверяет формат внешнего идентификатора заказа:
// латиница, цифры, дефис и подчёркивание, длина от 6 до 64 символов.
func IsValidOrderID(id string) bool {
	if len(id) < minOrderIDLen || len(id) > maxOrderIDLen {
		return false
	}

	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}

	return true
}

// IsValidUsername проверяет имя пользователя: латиница в нижнем регистре,
// цифры и подчёркивание, первый символ — буква, длина от 3 до 32 символов.
func IsValidUsername(username string) bool {
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return false
	}

	if username[0] < 'a' || username[0] > 'z' {
		return false
	}

	for i := 1; i < len(username); i++ {
		c := username[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return false
		}
	}

	return true
}
