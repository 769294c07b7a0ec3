package xrouter

import "encoding/json"

// ToErrorJSON renders err as the {"error": "...", "uuid"?: "..."} shape
// every client-facing error reply uses. id may be empty when no query
// was ever created.
func ToErrorJSON(err error, id QueryID) string {
	obj := map[string]string{"error": err.Error()}
	if id != "" {
		obj["uuid"] = string(id)
	}
	b, mErr := json.Marshal(obj)
	if mErr != nil {
		return `{"error":"internal: failed to encode error"}`
	}
	return string(b)
}

// connectorMissingJSON renders the error object replied when a currency
// has no registered connector.
func connectorMissingJSON(currency string) string {
	b, _ := json.Marshal(map[string]string{"error": "No connector for currency " + currency})
	return string(b)
}
