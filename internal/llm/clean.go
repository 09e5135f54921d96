package llm

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reCodeFence = regexp.MustCompile("(?s)```.*?```")
	reInline    = regexp.MustCompile("`([^`]*)`")
	reMDLink    = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	reBold      = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	reItalic    = regexp.MustCompile(`(^|[\s(])[*_]([^*_\n]+)[*_]`)
	reHeading   = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	reNewlines  = regexp.MustCompile(`\n{3,}`)
	reSpaces    = regexp.MustCompile(`[ \t]{2,}`)

	reEmoji    = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B50}\x{2B55}\x{FE0F}\x{200D}]`)
	reEmoticon = regexp.MustCompile(`(^|\s)(?::\)|:\(|:D|:P|:/|;\)|\^_\^|<3)(?:\s|$)`)

	reLeadIn = regexp.MustCompile(`(?i)^\s*(?:here is the translation|translation|chinese translation|以下是翻译|以下是中文翻译|中文翻译|翻译|译文)\s*[:：]?\s*`)
)

// CleanEnglish strips what should not be read aloud: code, markdown markup,
// emoji and ASCII emoticons. Paragraph breaks are kept, runs of blank lines
// are collapsed.
func CleanEnglish(s string) string {
	s = reCodeFence.ReplaceAllString(s, "")
	s = reInline.ReplaceAllString(s, "$1")
	s = reMDLink.ReplaceAllString(s, "$1")
	s = reBold.ReplaceAllString(s, "$2")
	s = reItalic.ReplaceAllString(s, "$1$2")
	s = reHeading.ReplaceAllString(s, "")
	s = reEmoji.ReplaceAllString(s, "")
	// Applied twice: adjacent emoticons share the separating space.
	s = reEmoticon.ReplaceAllString(s, "$1")
	s = reEmoticon.ReplaceAllString(s, "$1")
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = reNewlines.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ExtractChinese keeps the Chinese part of a translation answer: lead-ins
// such as "翻译：" and wrapping quotes are removed, and lines where Han
// characters make up 30% or less of the letters are dropped.
func ExtractChinese(s string) string {
	var kept []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		line = reLeadIn.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.Trim(line, "\"'“”‘’「」『』 ")
		if line == "" {
			continue
		}
		if hanRatio(line) > 0.3 {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func hanRatio(s string) float64 {
	var han, total int
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsDigit(r) {
			continue
		}
		total++
		if unicode.Is(unicode.Han, r) {
			han++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(han) / float64(total)
}
