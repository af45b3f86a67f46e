package scoring

import "github.com/bantai/bantai-service/internal/domain"

const DefaultLocale = "en"

var riskMessages = map[domain.RiskLevel]map[string]string{
	domain.RiskLow: {
		"en": "Your HIV risk is LOW. Keep protecting yourself: use condoms every time and get tested regularly. " +
			"Prevention services like free condoms and counseling are available at your nearest health center.",
		"tl": "Ang iyong HIV risk ay MABABA. Patuloy na protektahan ang sarili: gumamit ng condom sa bawat pagtatalik " +
			"at magpa-test nang regular. May libreng condom at counseling para sa prevention sa pinakamalapit na health center.",
	},
	domain.RiskModerate: {
		"en": "Your HIV risk is MODERATE. An HIV test is recommended within the next 2 weeks. " +
			"Bring your referral code to a partner testing center for free, confidential testing.",
		"tl": "Ang iyong HIV risk ay KATAMTAMAN. Inirerekomenda ang HIV test sa loob ng susunod na 2 linggo. " +
			"Dalhin ang iyong referral code sa isang testing center para sa libre at kumpidensyal na pagsusuri.",
	},
	domain.RiskHigh: {
		"en": "Your HIV risk is HIGH. Please get tested immediately. Show your referral code at a partner " +
			"testing center for priority, free and confidential testing and counseling.",
		"tl": "Ang iyong HIV risk ay MATAAS. Magpa-test agad (immediately). Ipakita ang iyong referral code sa " +
			"testing center para sa priority, libre at kumpidensyal na pagsusuri at counseling.",
	},
}

// RiskMessage returns the patient-facing message for level, falling back to
// English for unknown locales.
func RiskMessage(level domain.RiskLevel, locale string) string {
	return localized(riskMessages[level], locale)
}

func localized(m map[string]string, locale string) string {
	if v, ok := m[locale]; ok {
		return v
	}
	return m[DefaultLocale]
}
