package variants

const vowels = "aeiou"

// homoglyphTable maps a substring to the visually similar strings it may be
// swapped for.
var homoglyphTable = map[string][]string{
	"o":  {"0", "ó", "ö", "ò"},
	"0":  {"o"},
	"l":  {"1", "i"},
	"1":  {"l", "i"},
	"i":  {"1", "l", "í", "ï"},
	"a":  {"@", "à", "á", "â", "ä"},
	"m":  {"rn"},
	"rn": {"m"},
	"e":  {"3", "é", "è", "ë"},
	"s":  {"5"},
	"u":  {"ü", "ú"},
	"w":  {"vv"},
	"vv": {"w"},
	"d":  {"cl"},
	"cl": {"d"},
	"g":  {"q"},
	"q":  {"g"},
}

// keyboardNeighbors is QWERTY adjacency for the characters allowed in a
// host name label.
var keyboardNeighbors = map[rune][]rune{
	'1': []rune("2q"), '2': []rune("13qw"), '3': []rune("24we"), '4': []rune("35er"),
	'5': []rune("46rt"), '6': []rune("57ty"), '7': []rune("68yu"), '8': []rune("79ui"),
	'9': []rune("80io"), '0': []rune("9op"),
	'q': []rune("12wa"), 'w': []rune("23qeas"), 'e': []rune("34wrsd"), 'r': []rune("45etdf"),
	't': []rune("56ryfg"), 'y': []rune("67tugh"), 'u': []rune("78yihj"), 'i': []rune("89uojk"),
	'o': []rune("90ipkl"), 'p': []rune("0ol"),
	'a': []rune("qwsz"), 's': []rune("weadzx"), 'd': []rune("erfsxc"), 'f': []rune("rtgdcv"),
	'g': []rune("tyhfvb"), 'h': []rune("yujgbn"), 'j': []rune("uikhnm"), 'k': []rune("ioljm"),
	'l': []rune("opk"),
	'z': []rune("asx"), 'x': []rune("zsdc"), 'c': []rune("xdfv"), 'v': []rune("cfgb"),
	'b': []rune("vghn"), 'n': []rune("bhjm"), 'm': []rune("njk"),
}
