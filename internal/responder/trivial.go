package responder

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// fillerTokens are acknowledgement/laughter fillers across the locales the
// responder has been used in. Matched case-insensitively against the whole
// trimmed message.
var fillerTokens = map[string]struct{}{
	"ok": {}, "okay": {}, "okey": {}, "k": {}, "kk": {},
	"thanks": {}, "thank you": {}, "thx": {}, "ty": {},
	"yes": {}, "yep": {}, "yeah": {}, "nice": {}, "cool": {}, "sure": {},
	"lol": {}, "lmao": {}, "haha": {}, "hehe": {},
	"jaja": {}, "jeje": {}, "vale": {},
	"ок": {}, "окей": {}, "ага": {}, "угу": {}, "хаха": {}, "спасибо": {},
	"ㅋㅋ": {}, "ㅋㅋㅋ": {}, "ㅎㅎ": {}, "ㅎㅎㅎ": {},
	"네": {}, "넵": {}, "응": {}, "ㅇㅇ": {}, "감사합니다": {}, "고마워": {},
}

// isTrivial classifies messages not worth a profile update: empty, too
// short, a known filler token, or pure emoji/symbols and whitespace.
func isTrivial(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	if utf8.RuneCountInString(trimmed) < 3 {
		return true
	}
	if _, ok := fillerTokens[strings.ToLower(trimmed)]; ok {
		return true
	}
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
