package allanime

import "strings"

// Embedded source URLs arrive obfuscated: "--" followed by hex pairs,
// each pair standing for one URL character. This is the site's fixed
// substitution table.
var sourceCharTable = map[string]byte{
	"79": 'A', "7a": 'B', "7b": 'C', "7c": 'D', "7d": 'E', "7e": 'F',
	"7f": 'G', "70": 'H', "71": 'I', "72": 'J', "73": 'K', "74": 'L',
	"75": 'M', "76": 'N', "77": 'O', "68": 'P', "69": 'Q', "6a": 'R',
	"6b": 'S', "6c": 'T', "6d": 'U', "6e": 'V', "6f": 'W', "60": 'X',
	"61": 'Y', "62": 'Z',
	"59": 'a', "5a": 'b', "5b": 'c', "5c": 'd', "5d": 'e', "5e": 'f',
	"5f": 'g', "50": 'h', "51": 'i', "52": 'j', "53": 'k', "54": 'l',
	"55": 'm', "56": 'n', "57": 'o', "48": 'p', "49": 'q', "4a": 'r',
	"4b": 's', "4c": 't', "4d": 'u', "4e": 'v', "4f": 'w', "40": 'x',
	"41": 'y', "42": 'z',
	"08": '0', "09": '1', "0a": '2', "0b": '3', "0c": '4', "0d": '5',
	"0e": '6', "0f": '7', "00": '8', "01": '9',
	"15": '-', "16": '.', "67": '_', "46": '~', "02": ':', "17": '/',
	"07": '?', "1b": '#', "63": '[', "65": ']', "78": '@', "19": '!',
	"1c": '$', "1e": '&', "10": '(', "11": ')', "12": '*', "13": '+',
	"14": ',', "03": ';', "05": '=', "1d": '%',
}

// decodeSourcePath turns an obfuscated source URL into a fetchable path.
// Paths pointing at the clock endpoint gain the ".json" suffix the API
// actually serves.
func decodeSourcePath(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "--") {
		return "", false
	}
	hex := raw[2:]
	if len(hex)%2 != 0 {
		return "", false
	}

	var b strings.Builder
	b.Grow(len(hex) / 2)
	for i := 0; i < len(hex); i += 2 {
		ch, ok := sourceCharTable[strings.ToLower(hex[i:i+2])]
		if !ok {
			return "", false
		}
		b.WriteByte(ch)
	}

	decoded := b.String()
	if strings.Contains(decoded, "/clock") && !strings.Contains(decoded, ".json") {
		decoded = strings.Replace(decoded, "/clock", "/clock.json", 1)
	}
	return decoded, true
}
