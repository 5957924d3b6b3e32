package utils

// Server-side messages only: health text and localized API error messages.
// UI strings live in the frontend.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":                "ok",
		"error.validation":         "The request is invalid",
		"error.not_found":          "Not found",
		"error.forbidden":          "You cannot change this audit",
		"error.conflict":           "The audit changed, reload and try again",
		"error.unauthorized":       "Sign in to continue",
		"error.no_active_audit":    "No audit is open",
		"error.snapshot_creation":  "Could not create the audit from the catalog",
		"error.remote_io":          "The server could not save your changes, try again",
		"error.internal":           "Unexpected error",
		"error.method_not_allowed": "Method not allowed",
	},
	"es": {
		"health.ok":                "ok",
		"error.validation":         "La solicitud no es válida",
		"error.not_found":          "No encontrado",
		"error.forbidden":          "No puede modificar esta auditoría",
		"error.conflict":           "La auditoría cambió, recargue e intente de nuevo",
		"error.unauthorized":       "Inicie sesión para continuar",
		"error.no_active_audit":    "No hay una auditoría abierta",
		"error.snapshot_creation":  "No se pudo crear la auditoría a partir del catálogo",
		"error.remote_io":          "No se pudieron guardar los cambios, intente de nuevo",
		"error.internal":           "Error inesperado",
		"error.method_not_allowed": "Método no permitido",
	},
}

// Locales lists the locales with server-side translations.
var Locales = []string{"en", "es"}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations["en"]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}
