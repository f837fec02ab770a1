package logger

// RedactPhone masks a phone number for safe logging.
// "+16175551234" → "+1617***234"
// Short values (≤6 digits) are fully masked.
func RedactPhone(phone string) string {
	if len(phone) <= 6 {
		return "***"
	}
	return phone[:5] + "***" + phone[len(phone)-3:]
}
