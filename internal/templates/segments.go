package templates

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

type Encoding string

const (
	EncodingGSM7 Encoding = "GSM-7"
	EncodingUCS2 Encoding = "UCS-2"

	gsm7SegmentLength = 160
	ucs2SegmentLength = 70
)

// gsm7Extended characters are sent as an escape plus a code, costing two septets.
const gsm7Extended = "^{}\\[~]|"

type MessageInfo struct {
	Valid     bool     `json:"valid"`
	Length    int      `json:"length"`
	Segments  int      `json:"segments"`
	Encoding  Encoding `json:"encoding"`
	MaxLength int      `json:"maxLength"`
	Warning   string   `json:"warning,omitempty"`
}

// ValidateMessage reports the encoding and segment count of an SMS body. Any
// non-ASCII character (accented letters, emoji) forces UCS-2.
func ValidateMessage(body string) MessageInfo {
	info := MessageInfo{Encoding: EncodingGSM7, MaxLength: gsm7SegmentLength}

	ascii := true
	for _, r := range body {
		if r > 127 {
			ascii = false
			break
		}
	}

	if ascii {
		info.Length = len(body)
		for _, r := range body {
			if strings.ContainsRune(gsm7Extended, r) {
				info.Length++
			}
		}
	} else {
		info.Encoding = EncodingUCS2
		info.MaxLength = ucs2SegmentLength
		info.Length = len(utf16.Encode([]rune(body)))
	}

	if info.Length == 0 {
		info.Warning = "message body is empty"
		return info
	}

	info.Valid = true
	info.Segments = (info.Length + info.MaxLength - 1) / info.MaxLength
	if info.Segments > 1 {
		info.Warning = fmt.Sprintf(
			"message will be sent as %d %s segments and billed per segment",
			info.Segments, info.Encoding,
		)
	}

	return info
}
